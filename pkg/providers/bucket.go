package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/openloom/openloom/pkg/core"
)

// TypeBucket is the storage bucket component type.
const TypeBucket = "storage.bucket"

// BucketCreator builds bucket provisioners. The fallbacks are the
// safest baseline: encryption on, public access off. A fallback never
// disables a compliance-relevant control.
type BucketCreator struct{}

func (c *BucketCreator) Type() string { return TypeBucket }

func (c *BucketCreator) Fallbacks() map[string]interface{} {
	return map[string]interface{}{
		"storage": map[string]interface{}{
			"size": 1,
			"type": "standard",
		},
		"encryption": map[string]interface{}{
			"enabled": true,
			"kind":    "provider-managed",
		},
		"versioning":   false,
		"publicAccess": false,
	}
}

func (c *BucketCreator) New(spec core.ComponentSpec, cfg *core.EffectiveConfig) (core.Provisioner, error) {
	return &BucketProvisioner{spec: spec, cfg: cfg}, nil
}

// HardenedBucketCreator is the bucket variant for the strictest
// frameworks: versioning and audit logging are on by default and a
// public bucket never validates, regardless of policy overrides.
type HardenedBucketCreator struct{}

func (c *HardenedBucketCreator) Type() string { return TypeBucket }

func (c *HardenedBucketCreator) Fallbacks() map[string]interface{} {
	return map[string]interface{}{
		"storage": map[string]interface{}{
			"size": 1,
			"type": "hardened",
		},
		"encryption": map[string]interface{}{
			"enabled": true,
			"kind":    "customer-managed",
		},
		"versioning":   true,
		"publicAccess": false,
		"audit": map[string]interface{}{
			"accessLogs": true,
		},
	}
}

func (c *HardenedBucketCreator) New(spec core.ComponentSpec, cfg *core.EffectiveConfig) (core.Provisioner, error) {
	return &BucketProvisioner{spec: spec, cfg: cfg, hardened: true}, nil
}

// BucketProvisioner synthesizes a storage bucket and publishes
// storage:read and storage:write capabilities.
type BucketProvisioner struct {
	spec     core.ComponentSpec
	cfg      *core.EffectiveConfig
	hardened bool

	handle       core.ArtifactHandle
	capabilities core.CapabilityMap
}

func (p *BucketProvisioner) Type() string { return TypeBucket }

func (p *BucketProvisioner) ValidateSpec(cfg *core.EffectiveConfig) core.ValidationResult {
	var errs []string

	if size, ok := cfg.Get("storage.size"); ok {
		if n, isNum := intValue(size); !isNum || n <= 0 {
			errs = append(errs, fmt.Sprintf("storage.size must be a positive integer, got %v", size))
		}
	} else {
		errs = append(errs, "storage.size is required")
	}

	if !cfg.GetBool("encryption.enabled") {
		errs = append(errs, "encryption.enabled must be true")
	}

	if p.hardened && cfg.GetBool("publicAccess") {
		errs = append(errs, "public access is forbidden under this framework")
	}

	return core.ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func (p *BucketProvisioner) Synthesize(ctx context.Context, sc *core.SynthesisContext) (core.ArtifactHandle, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	name := sc.Component
	p.handle = NewHandle("bucket-template", name)
	p.capabilities = core.CapabilityMap{
		"storage:read":  fmt.Sprintf("loom://buckets/%s", name),
		"storage:write": fmt.Sprintf("loom://buckets/%s", name),
		"storage:meta": map[string]interface{}{
			"type":         p.cfg.GetString("storage.type"),
			"versioned":    p.cfg.GetBool("versioning"),
			"synthesizedAt": time.Now().UTC().Format(time.RFC3339),
		},
	}
	return p.handle, nil
}

func (p *BucketProvisioner) GetCapabilities() core.CapabilityMap {
	return p.capabilities
}

func (p *BucketProvisioner) GetConstructHandle(name string) (core.ArtifactHandle, bool) {
	if name == "main" && p.handle != nil {
		return p.handle, true
	}
	return nil, false
}
