package factory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openloom/openloom/pkg/core"
	"github.com/openloom/openloom/pkg/profiles"
)

// mockHandle implements core.ArtifactHandle.
type mockHandle struct {
	id   string
	kind string
}

func (h *mockHandle) ID() string   { return h.id }
func (h *mockHandle) Kind() string { return h.kind }

// mockProvisioner implements core.Provisioner.
type mockProvisioner struct {
	componentType string
	validation    core.ValidationResult
	capabilities  core.CapabilityMap
}

func (m *mockProvisioner) Type() string { return m.componentType }
func (m *mockProvisioner) ValidateSpec(cfg *core.EffectiveConfig) core.ValidationResult {
	return m.validation
}
func (m *mockProvisioner) Synthesize(ctx context.Context, sc *core.SynthesisContext) (core.ArtifactHandle, error) {
	return &mockHandle{id: sc.Component, kind: "mock"}, nil
}
func (m *mockProvisioner) GetCapabilities() core.CapabilityMap { return m.capabilities }
func (m *mockProvisioner) GetConstructHandle(name string) (core.ArtifactHandle, bool) {
	return nil, false
}

// mockCreator implements Creator.
type mockCreator struct {
	componentType string
	fallbacks     map[string]interface{}
	validation    core.ValidationResult
	newErr        error
	hardened      bool
}

func (m *mockCreator) Type() string                      { return m.componentType }
func (m *mockCreator) Fallbacks() map[string]interface{} { return m.fallbacks }
func (m *mockCreator) New(spec core.ComponentSpec, cfg *core.EffectiveConfig) (core.Provisioner, error) {
	if m.newErr != nil {
		return nil, m.newErr
	}
	return &mockProvisioner{componentType: m.componentType, validation: m.validation}, nil
}

func validCreator(componentType string) *mockCreator {
	return &mockCreator{
		componentType: componentType,
		fallbacks: map[string]interface{}{
			"encryption": map[string]interface{}{"enabled": true},
		},
		validation: core.ValidationResult{Valid: true},
	}
}

func newProvider(t *testing.T, creators ...Creator) *Provider {
	t.Helper()
	p := NewProvider(profiles.NewRegistry(zerolog.Nop()), zerolog.Nop())
	for _, c := range creators {
		if err := p.RegisterCreator(c); err != nil {
			t.Fatalf("RegisterCreator failed: %v", err)
		}
	}
	return p
}

func devEnv() *core.EnvironmentProfile {
	return &core.EnvironmentProfile{Name: "dev"}
}

func TestCreateFactoryUnknownFramework(t *testing.T) {
	p := newProvider(t, validCreator("storage.bucket"))

	_, err := p.CreateFactory("fedramp")
	if !core.HasCode(err, core.ErrCodeUnknownFramework) {
		t.Fatalf("expected UNKNOWN_FRAMEWORK, got %v", err)
	}

	var ce *core.CoreError
	if !errors.As(err, &ce) {
		t.Fatal("expected a CoreError")
	}
	if len(ce.Candidates) == 0 {
		t.Error("expected known frameworks enumerated")
	}
}

func TestCreateComponent(t *testing.T) {
	p := newProvider(t, validCreator("storage.bucket"))
	f, err := p.CreateFactory("baseline")
	if err != nil {
		t.Fatalf("CreateFactory failed: %v", err)
	}
	reg := f.CreateRegistry()

	inst, err := reg.CreateComponent(core.ComponentSpec{Name: "data", Type: "storage.bucket"}, devEnv())
	if err != nil {
		t.Fatalf("CreateComponent failed: %v", err)
	}
	if inst.Spec.Name != "data" || inst.Provisioner == nil || inst.Config == nil {
		t.Fatalf("incomplete instance: %+v", inst)
	}
	if inst.Synthesized() {
		t.Error("fresh instance must not be synthesized")
	}
	if inst.Config.Framework != "baseline" || inst.Config.Environment != "dev" {
		t.Errorf("config scope wrong: %+v", inst.Config)
	}
}

func TestCreateComponentNoFactory(t *testing.T) {
	p := newProvider(t, validCreator("storage.bucket"), validCreator("messaging.queue"))
	f, _ := p.CreateFactory("baseline")
	reg := f.CreateRegistry()

	_, err := reg.CreateComponent(core.ComponentSpec{Name: "api", Type: "compute.cluster"}, devEnv())
	if !core.HasCode(err, core.ErrCodeNoFactory) {
		t.Fatalf("expected NO_FACTORY, got %v", err)
	}

	var ce *core.CoreError
	errors.As(err, &ce)
	want := []string{"messaging.queue", "storage.bucket"}
	if !reflect.DeepEqual(ce.Candidates, want) {
		t.Errorf("expected known types %v, got %v", want, ce.Candidates)
	}
	if ce.Component != "api" {
		t.Errorf("expected offending component named, got %q", ce.Component)
	}
}

func TestCreateComponentInvalidSpec(t *testing.T) {
	c := validCreator("storage.bucket")
	c.validation = core.ValidationResult{Valid: false, Errors: []string{"storage.size must be positive"}}

	p := newProvider(t, c)
	f, _ := p.CreateFactory("baseline")

	_, err := f.CreateRegistry().CreateComponent(
		core.ComponentSpec{Name: "data", Type: "storage.bucket"}, devEnv())
	if !core.HasCode(err, core.ErrCodeInvalidSpec) {
		t.Fatalf("expected INVALID_SPEC, got %v", err)
	}
}

func TestCreateComponentCreatorFailure(t *testing.T) {
	c := validCreator("storage.bucket")
	c.newErr = errors.New("boom")

	p := newProvider(t, c)
	f, _ := p.CreateFactory("baseline")

	_, err := f.CreateRegistry().CreateComponent(
		core.ComponentSpec{Name: "data", Type: "storage.bucket"}, devEnv())
	if !core.HasCode(err, core.ErrCodeProvisionerFailed) {
		t.Fatalf("expected PROVISIONER_FAILED, got %v", err)
	}
	if !errors.Is(err, c.newErr) {
		t.Error("expected underlying creator error in chain")
	}
}

func TestRegistryScopedByAllowedTypes(t *testing.T) {
	registry := profiles.NewRegistry(zerolog.Nop())
	if err := registry.Register(&core.FrameworkProfile{
		Name:         "restricted",
		Version:      "1.0.0",
		AllowedTypes: []string{"storage.bucket"},
		Defaults: map[string]map[string]interface{}{
			"storage.bucket": {"storage": map[string]interface{}{"size": 5}},
		},
	}); err != nil {
		t.Fatal(err)
	}

	p := NewProvider(registry, zerolog.Nop())
	_ = p.RegisterCreator(validCreator("storage.bucket"))
	_ = p.RegisterCreator(validCreator("messaging.queue"))

	f, err := p.CreateFactory("restricted")
	if err != nil {
		t.Fatalf("CreateFactory failed: %v", err)
	}
	reg := f.CreateRegistry()

	if got := reg.SupportedTypes(); !reflect.DeepEqual(got, []string{"storage.bucket"}) {
		t.Errorf("expected only permitted types, got %v", got)
	}

	_, err = reg.CreateComponent(core.ComponentSpec{Name: "jobs", Type: "messaging.queue"}, devEnv())
	if !core.HasCode(err, core.ErrCodeTypeNotPermitted) {
		t.Fatalf("expected TYPE_NOT_PERMITTED, got %v", err)
	}
}

func TestHardenedCreatorVariant(t *testing.T) {
	base := validCreator("storage.bucket")
	hard := validCreator("storage.bucket")
	hard.hardened = true

	p := newProvider(t, base)
	if err := p.RegisterHardenedCreator("maximum", hard); err != nil {
		t.Fatalf("RegisterHardenedCreator failed: %v", err)
	}

	t.Run("baseline uses default creator", func(t *testing.T) {
		f, _ := p.CreateFactory("baseline")
		reg := f.CreateRegistry()
		if reg.creators["storage.bucket"].(*mockCreator).hardened {
			t.Error("baseline registry must use the default creator")
		}
	})

	t.Run("maximum swaps in hardened variant", func(t *testing.T) {
		f, _ := p.CreateFactory("maximum")
		reg := f.CreateRegistry()
		if !reg.creators["storage.bucket"].(*mockCreator).hardened {
			t.Error("maximum registry must use the hardened creator")
		}
	})
}

func TestRegistryIsFallbackSource(t *testing.T) {
	p := newProvider(t, validCreator("storage.bucket"))
	f, _ := p.CreateFactory("baseline")
	reg := f.CreateRegistry()

	fb, ok := reg.Fallbacks("storage.bucket")
	if !ok {
		t.Fatal("expected fallbacks for registered type")
	}
	enc, _ := fb["encryption"].(map[string]interface{})
	if enc["enabled"] != true {
		t.Errorf("unexpected fallbacks: %v", fb)
	}
	if _, ok := reg.Fallbacks("compute.cluster"); ok {
		t.Error("unknown type must report no fallbacks")
	}
}
