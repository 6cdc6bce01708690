package bindings

import (
	"context"
	"fmt"
	"strings"

	"github.com/openloom/openloom/pkg/core"
)

// BuiltinStrategies returns the builtin strategies in their documented
// registration order. Order is load-bearing: dispatch is first-match.
func BuiltinStrategies() []core.BindingStrategy {
	return []core.BindingStrategy{
		&QueueAccessStrategy{},
		&StorageAccessStrategy{},
		&ServiceEndpointStrategy{},
	}
}

// accessAllows reports whether the requested access mode covers the
// capability kind (the part after the colon).
func accessAllows(access core.AccessMode, kind string) bool {
	switch kind {
	case "read":
		return access == core.AccessRead || access == core.AccessReadWrite || access == core.AccessAdmin
	case "write":
		return access == core.AccessWrite || access == core.AccessReadWrite || access == core.AccessAdmin
	default:
		return true
	}
}

// capabilityKind returns the "<kind>" part of a "<domain>:<kind>" key.
func capabilityKind(capability string) string {
	if i := strings.IndexByte(capability, ':'); i >= 0 {
		return capability[i+1:]
	}
	return capability
}

// envName derives the injected variable name for a binding:
// "<TARGET>_<SUFFIX>" with the target name upper-cased and hyphens
// mapped to underscores. Directive env overrides take precedence.
func envName(directive core.BindingDirective, target, suffix string) string {
	if v, ok := directive.Env[suffix]; ok {
		return v
	}
	return strings.ToUpper(strings.ReplaceAll(target, "-", "_")) + "_" + suffix
}

// bindingDetails assembles the common result details for the builtin
// strategies: the capability value published by the target plus the
// environment variables the source should receive.
func bindingDetails(bc *core.BindContext, env map[string]string) map[string]interface{} {
	details := map[string]interface{}{
		"capabilityValue": bc.Target.Capabilities[bc.Directive.Capability],
		"env":             env,
	}
	if len(bc.Directive.Options) > 0 {
		details["options"] = bc.Directive.Options
	}
	return details
}

// QueueAccessStrategy grants a service access to a messaging queue by
// injecting the queue coordinates into the service's environment.
type QueueAccessStrategy struct{}

func (s *QueueAccessStrategy) Name() string { return "queue-access" }

func (s *QueueAccessStrategy) CanHandle(sourceType, capability string) bool {
	return sourceType == "compute.service" && MatchCapability("queue:*", capability)
}

// Supports feeds the registry's compatibility matrix.
func (s *QueueAccessStrategy) Supports() []Support {
	return []Support{{SourceType: "compute.service", Capability: "queue:*"}}
}

func (s *QueueAccessStrategy) Bind(ctx context.Context, bc *core.BindContext) (*core.BindingResult, error) {
	directive := bc.Directive
	if !accessAllows(directive.Access, capabilityKind(directive.Capability)) {
		return nil, fmt.Errorf("access mode %q does not cover capability %q",
			directive.Access, directive.Capability)
	}

	target := bc.Target.Spec.Name
	env := map[string]string{
		envName(directive, target, "QUEUE_URL"): fmt.Sprintf("%v",
			bc.Target.Capabilities[directive.Capability]),
		envName(directive, target, "QUEUE_ACCESS"): string(directive.Access),
	}

	return &core.BindingResult{
		Source:     bc.Source.Spec.Name,
		Target:     target,
		Capability: directive.Capability,
		Access:     directive.Access,
		Strategy:   s.Name(),
		Outcome:    core.OutcomeApplied,
		Details:    bindingDetails(bc, env),
	}, nil
}

// StorageAccessStrategy grants a service access to a storage bucket.
type StorageAccessStrategy struct{}

func (s *StorageAccessStrategy) Name() string { return "storage-access" }

func (s *StorageAccessStrategy) CanHandle(sourceType, capability string) bool {
	return sourceType == "compute.service" && MatchCapability("storage:*", capability)
}

func (s *StorageAccessStrategy) Supports() []Support {
	return []Support{{SourceType: "compute.service", Capability: "storage:*"}}
}

func (s *StorageAccessStrategy) Bind(ctx context.Context, bc *core.BindContext) (*core.BindingResult, error) {
	directive := bc.Directive
	if !accessAllows(directive.Access, capabilityKind(directive.Capability)) {
		return nil, fmt.Errorf("access mode %q does not cover capability %q",
			directive.Access, directive.Capability)
	}

	target := bc.Target.Spec.Name
	env := map[string]string{
		envName(directive, target, "BUCKET"): fmt.Sprintf("%v",
			bc.Target.Capabilities[directive.Capability]),
		envName(directive, target, "BUCKET_ACCESS"): string(directive.Access),
	}

	return &core.BindingResult{
		Source:     bc.Source.Spec.Name,
		Target:     target,
		Capability: directive.Capability,
		Access:     directive.Access,
		Strategy:   s.Name(),
		Outcome:    core.OutcomeApplied,
		Details:    bindingDetails(bc, env),
	}, nil
}

// ServiceEndpointStrategy wires service-to-service calls: the source
// receives the target's published HTTP endpoint.
type ServiceEndpointStrategy struct{}

func (s *ServiceEndpointStrategy) Name() string { return "service-endpoint" }

func (s *ServiceEndpointStrategy) CanHandle(sourceType, capability string) bool {
	return sourceType == "compute.service" && capability == "http:endpoint"
}

func (s *ServiceEndpointStrategy) Supports() []Support {
	return []Support{{SourceType: "compute.service", Capability: "http:endpoint"}}
}

func (s *ServiceEndpointStrategy) Bind(ctx context.Context, bc *core.BindContext) (*core.BindingResult, error) {
	directive := bc.Directive
	target := bc.Target.Spec.Name

	env := map[string]string{
		envName(directive, target, "ENDPOINT"): fmt.Sprintf("%v",
			bc.Target.Capabilities[directive.Capability]),
	}

	return &core.BindingResult{
		Source:     bc.Source.Spec.Name,
		Target:     target,
		Capability: directive.Capability,
		Access:     directive.Access,
		Strategy:   s.Name(),
		Outcome:    core.OutcomeApplied,
		Details:    bindingDetails(bc, env),
	}, nil
}
