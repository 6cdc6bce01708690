package factory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openloom/openloom/pkg/core"
	"github.com/openloom/openloom/pkg/resolver"
)

// Creator builds provisioners for one component type.
type Creator interface {
	// Type returns the component type this creator handles
	// (e.g., "storage.bucket").
	Type() string

	// Fallbacks returns the type's hardcoded layer-1 configuration
	// baseline. Fallbacks must be safe, not merely minimal: a
	// compliance-relevant field is never defaulted to its unsafe value.
	Fallbacks() map[string]interface{}

	// New constructs the provisioner for a component instance.
	New(spec core.ComponentSpec, cfg *core.EffectiveConfig) (core.Provisioner, error)
}

// Provider holds the known creators and produces framework-scoped
// factories. Read-mostly after initialization; safe for concurrent
// CreateFactory calls.
type Provider struct {
	logger   zerolog.Logger
	profiles core.ProfileSource

	mu       sync.RWMutex
	creators map[string]Creator
	// hardened maps framework name to per-type creator overrides.
	hardened map[string]map[string]Creator
}

// NewProvider creates a provider resolving framework names against the
// given profile source.
func NewProvider(profiles core.ProfileSource, logger zerolog.Logger) *Provider {
	return &Provider{
		logger:   logger.With().Str("component", "factory-provider").Logger(),
		profiles: profiles,
		creators: make(map[string]Creator),
		hardened: make(map[string]map[string]Creator),
	}
}

// RegisterCreator adds a creator for its component type.
func (p *Provider) RegisterCreator(c Creator) error {
	if c == nil || c.Type() == "" {
		return core.NewInstantiationError(core.ErrCodeNoFactory,
			"cannot register a creator without a component type", nil)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.creators[c.Type()]; exists {
		return core.NewInstantiationError(core.ErrCodeNoFactory,
			fmt.Sprintf("creator for type %q already registered", c.Type()), nil)
	}
	p.creators[c.Type()] = c

	p.logger.Debug().Str("type", c.Type()).Msg("Component creator registered")
	return nil
}

// RegisterHardenedCreator installs a framework-specific creator variant
// that replaces the default creator for its type when that framework is
// active.
func (p *Provider) RegisterHardenedCreator(framework string, c Creator) error {
	if c == nil || c.Type() == "" {
		return core.NewInstantiationError(core.ErrCodeNoFactory,
			"cannot register a creator without a component type", nil)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hardened[framework] == nil {
		p.hardened[framework] = make(map[string]Creator)
	}
	p.hardened[framework][c.Type()] = c

	p.logger.Debug().
		Str("type", c.Type()).
		Str("framework", framework).
		Msg("Hardened creator variant registered")
	return nil
}

// CreateFactory produces the factory scoped to a framework. An unknown
// framework is a hard failure enumerating the known names; the provider
// never silently defaults to a baseline framework.
func (p *Provider) CreateFactory(framework string) (*Factory, error) {
	profile, err := p.profiles.Lookup(framework)
	if err != nil {
		return nil, err
	}
	return &Factory{provider: p, profile: profile}, nil
}

// Factory binds the provider's creators to one framework profile.
type Factory struct {
	provider *Provider
	profile  *core.FrameworkProfile
}

// Framework returns the scoping framework name.
func (f *Factory) Framework() string {
	return f.profile.Name
}

// CreateRegistry builds the per-run registry: the provider's creators
// filtered by the framework's permitted types, with hardened variants
// swapped in where registered for this framework.
func (f *Factory) CreateRegistry() *Registry {
	f.provider.mu.RLock()
	defer f.provider.mu.RUnlock()

	reg := &Registry{
		logger:   f.provider.logger.With().Str("component", "factory-registry").Str("framework", f.profile.Name).Logger(),
		profile:  f.profile,
		creators: make(map[string]Creator),
	}

	overrides := f.provider.hardened[f.profile.Name]
	for t, c := range f.provider.creators {
		if !f.profile.PermitsType(t) {
			continue
		}
		if h, ok := overrides[t]; ok {
			c = h
		}
		reg.creators[t] = c
	}

	reg.resolver = resolver.New(reg, reg.logger)
	return reg
}

// Registry is the framework-scoped view of the creators, plus the
// resolver that produces effective configurations for them. It is the
// layer-1 fallback source: Fallbacks delegates to the owning creator.
type Registry struct {
	logger   zerolog.Logger
	profile  *core.FrameworkProfile
	creators map[string]Creator
	resolver *resolver.Resolver
}

// Register adds a creator directly to this registry. Types the
// framework does not permit are rejected.
func (r *Registry) Register(c Creator) error {
	if !r.profile.PermitsType(c.Type()) {
		return core.NewInstantiationError(core.ErrCodeTypeNotPermitted,
			fmt.Sprintf("framework %q does not permit component type %q", r.profile.Name, c.Type()), nil).
			WithCandidates(r.profile.AllowedTypes)
	}
	r.creators[c.Type()] = c
	return nil
}

// Fallbacks implements core.FallbackSource by delegating to the
// creator that owns the type.
func (r *Registry) Fallbacks(componentType string) (map[string]interface{}, bool) {
	c, ok := r.creators[componentType]
	if !ok {
		return nil, false
	}
	return c.Fallbacks(), true
}

// SupportedTypes lists the registered component types, sorted.
func (r *Registry) SupportedTypes() []string {
	types := make([]string, 0, len(r.creators))
	for t := range r.creators {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// CreateComponent resolves the spec's effective configuration, builds
// the provisioner and pairs the three into a ComponentInstance. Fails
// fast, naming the spec and the known types, when no creator is
// registered for the spec's type.
func (r *Registry) CreateComponent(spec core.ComponentSpec, env *core.EnvironmentProfile) (*core.ComponentInstance, error) {
	creator, ok := r.creators[spec.Type]
	if !ok {
		if !r.profile.PermitsType(spec.Type) {
			return nil, core.NewInstantiationError(core.ErrCodeTypeNotPermitted,
				fmt.Sprintf("framework %q does not permit component type %q", r.profile.Name, spec.Type), nil).
				WithComponent(spec.Name).
				WithCandidates(r.SupportedTypes())
		}
		return nil, core.NewInstantiationError(core.ErrCodeNoFactory,
			fmt.Sprintf("no factory registered for component type %q", spec.Type), nil).
			WithComponent(spec.Name).
			WithCandidates(r.SupportedTypes())
	}

	cfg, err := r.resolver.Resolve(spec, r.profile, env)
	if err != nil {
		return nil, err
	}

	prov, err := creator.New(spec, cfg)
	if err != nil {
		return nil, core.NewInstantiationError(core.ErrCodeProvisionerFailed,
			fmt.Sprintf("creator for type %q failed to construct a provisioner", spec.Type), err).
			WithComponent(spec.Name)
	}

	if result := prov.ValidateSpec(cfg); !result.Valid {
		return nil, core.NewInstantiationError(core.ErrCodeInvalidSpec,
			fmt.Sprintf("component %q failed spec validation: %s",
				spec.Name, strings.Join(result.Errors, "; ")), nil).
			WithComponent(spec.Name)
	}

	r.logger.Debug().
		Str("component", spec.Name).
		Str("type", spec.Type).
		Msg("Component instantiated")

	return &core.ComponentInstance{
		Spec:        spec,
		Config:      cfg,
		Provisioner: prov,
	}, nil
}
