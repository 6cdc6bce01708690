package providers

import (
	"context"
	"fmt"

	"github.com/openloom/openloom/pkg/core"
)

// TypeService is the compute service component type.
const TypeService = "compute.service"

// ServiceCreator builds service provisioners.
type ServiceCreator struct{}

func (c *ServiceCreator) Type() string { return TypeService }

func (c *ServiceCreator) Fallbacks() map[string]interface{} {
	return map[string]interface{}{
		"service": map[string]interface{}{
			"replicas": 1,
			"port":     8080,
		},
		"resources": map[string]interface{}{
			"cpu":    "100m",
			"memory": "128Mi",
		},
		"logging": map[string]interface{}{
			"level": "info",
		},
	}
}

func (c *ServiceCreator) New(spec core.ComponentSpec, cfg *core.EffectiveConfig) (core.Provisioner, error) {
	return &ServiceProvisioner{spec: spec, cfg: cfg}, nil
}

// ServiceProvisioner synthesizes a compute service and publishes its
// http:endpoint capability.
type ServiceProvisioner struct {
	spec core.ComponentSpec
	cfg  *core.EffectiveConfig

	handle       core.ArtifactHandle
	capabilities core.CapabilityMap
}

func (p *ServiceProvisioner) Type() string { return TypeService }

func (p *ServiceProvisioner) ValidateSpec(cfg *core.EffectiveConfig) core.ValidationResult {
	var errs []string

	if v, ok := cfg.Get("service.replicas"); !ok {
		errs = append(errs, "service.replicas is required")
	} else if n, isNum := intValue(v); !isNum || n < 1 {
		errs = append(errs, fmt.Sprintf("service.replicas must be at least 1, got %v", v))
	}

	if v, ok := cfg.Get("service.port"); !ok {
		errs = append(errs, "service.port is required")
	} else if n, isNum := intValue(v); !isNum || n < 1 || n > 65535 {
		errs = append(errs, fmt.Sprintf("service.port must be in 1-65535, got %v", v))
	}

	return core.ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func (p *ServiceProvisioner) Synthesize(ctx context.Context, sc *core.SynthesisContext) (core.ArtifactHandle, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	name := sc.Component
	port := 8080
	if v, ok := p.cfg.Get("service.port"); ok {
		if n, isNum := intValue(v); isNum {
			port = n
		}
	}

	p.handle = NewHandle("service-template", name)
	p.capabilities = core.CapabilityMap{
		"http:endpoint": fmt.Sprintf("http://%s:%d", name, port),
	}
	return p.handle, nil
}

func (p *ServiceProvisioner) GetCapabilities() core.CapabilityMap {
	return p.capabilities
}

func (p *ServiceProvisioner) GetConstructHandle(name string) (core.ArtifactHandle, bool) {
	if name == "main" && p.handle != nil {
		return p.handle, true
	}
	return nil, false
}
