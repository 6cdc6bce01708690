package providers

import (
	"context"
	"fmt"

	"github.com/openloom/openloom/pkg/core"
)

// TypeQueue is the messaging queue component type.
const TypeQueue = "messaging.queue"

// QueueCreator builds queue provisioners.
type QueueCreator struct{}

func (c *QueueCreator) Type() string { return TypeQueue }

func (c *QueueCreator) Fallbacks() map[string]interface{} {
	return map[string]interface{}{
		"queue": map[string]interface{}{
			"visibilityTimeout": 30,
			"retentionSeconds":  3600,
		},
		"encryption": map[string]interface{}{
			"enabled": true,
		},
		"deadLetter": map[string]interface{}{
			"enabled": false,
		},
	}
}

func (c *QueueCreator) New(spec core.ComponentSpec, cfg *core.EffectiveConfig) (core.Provisioner, error) {
	return &QueueProvisioner{spec: spec, cfg: cfg}, nil
}

// QueueProvisioner synthesizes a messaging queue and publishes
// queue:read and queue:write capabilities.
type QueueProvisioner struct {
	spec core.ComponentSpec
	cfg  *core.EffectiveConfig

	handle       core.ArtifactHandle
	capabilities core.CapabilityMap
}

func (p *QueueProvisioner) Type() string { return TypeQueue }

func (p *QueueProvisioner) ValidateSpec(cfg *core.EffectiveConfig) core.ValidationResult {
	var errs []string

	for _, field := range []string{"queue.visibilityTimeout", "queue.retentionSeconds"} {
		v, ok := cfg.Get(field)
		if !ok {
			errs = append(errs, field+" is required")
			continue
		}
		if n, isNum := intValue(v); !isNum || n <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be a positive integer, got %v", field, v))
		}
	}

	if !cfg.GetBool("encryption.enabled") {
		errs = append(errs, "encryption.enabled must be true")
	}

	return core.ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func (p *QueueProvisioner) Synthesize(ctx context.Context, sc *core.SynthesisContext) (core.ArtifactHandle, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	name := sc.Component
	p.handle = NewHandle("queue-template", name)
	p.capabilities = core.CapabilityMap{
		"queue:read":  fmt.Sprintf("loom://queues/%s", name),
		"queue:write": fmt.Sprintf("loom://queues/%s", name),
	}
	return p.handle, nil
}

func (p *QueueProvisioner) GetCapabilities() core.CapabilityMap {
	return p.capabilities
}

func (p *QueueProvisioner) GetConstructHandle(name string) (core.ArtifactHandle, bool) {
	if name == "main" && p.handle != nil {
		return p.handle, true
	}
	return nil, false
}
