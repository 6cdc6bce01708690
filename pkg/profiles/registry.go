package profiles

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/openloom/openloom/pkg/core"
)

// Registry holds the known framework profiles and serves lookups by
// name. It implements core.ProfileSource.
type Registry struct {
	logger   zerolog.Logger
	validate *validator.Validate
	mu       sync.RWMutex
	profiles map[string]*core.FrameworkProfile
}

// NewRegistry creates a registry pre-populated with the built-in
// profiles.
func NewRegistry(logger zerolog.Logger) *Registry {
	r := &Registry{
		logger:   logger.With().Str("component", "profile-registry").Logger(),
		validate: validator.New(),
		profiles: make(map[string]*core.FrameworkProfile),
	}
	for _, p := range GetBuiltinProfiles() {
		r.profiles[p.Name] = p
	}
	return r
}

// Register adds or replaces a profile after structural validation.
func (r *Registry) Register(profile *core.FrameworkProfile) error {
	if profile == nil {
		return core.NewConfigurationError(core.ErrCodeMalformedProfile,
			"cannot register a nil profile", nil)
	}
	if err := r.validate.Struct(profile); err != nil {
		return core.NewConfigurationError(core.ErrCodeMalformedProfile,
			fmt.Sprintf("profile %q failed validation", profile.Name), err)
	}

	r.mu.Lock()
	_, replaced := r.profiles[profile.Name]
	r.profiles[profile.Name] = profile
	r.mu.Unlock()

	r.logger.Info().
		Str("framework", profile.Name).
		Str("version", profile.Version).
		Bool("replaced", replaced).
		Int("sections", len(profile.Defaults)).
		Msg("Framework profile registered")

	return nil
}

// Lookup returns the profile for a framework name. An unknown name is a
// hard failure carrying the known names as candidates, raised before
// any component is instantiated.
func (r *Registry) Lookup(framework string) (*core.FrameworkProfile, error) {
	r.mu.RLock()
	profile, ok := r.profiles[framework]
	r.mu.RUnlock()

	if !ok {
		return nil, core.NewConfigurationError(core.ErrCodeUnknownFramework,
			fmt.Sprintf("unknown compliance framework %q", framework), nil).
			WithCandidates(r.Frameworks())
	}
	return profile, nil
}

// Frameworks lists the registered framework names, sorted.
func (r *Registry) Frameworks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnvironmentFor assembles the layer-3 environment profile for a run:
// the framework's own per-environment defaults overlaid with the
// manifest's environment block. The environment is protected when
// either side marks it so.
func EnvironmentFor(profile *core.FrameworkProfile, manifest *core.Manifest) *core.EnvironmentProfile {
	name := manifest.Environment

	defaults := make(map[string]interface{})
	for k, v := range profile.Environments[name] {
		defaults[k] = v
	}

	env := &core.EnvironmentProfile{
		Name:      name,
		Protected: profile.IsProtected(name),
		Defaults:  defaults,
	}

	if block, ok := manifest.Environments[name]; ok {
		env.Protected = env.Protected || block.Protected
		for k, v := range block.Defaults {
			env.Defaults[k] = v
		}
		if len(block.TypeDefaults) > 0 {
			env.TypeDefaults = make(map[string]map[string]interface{}, len(block.TypeDefaults))
			for t, m := range block.TypeDefaults {
				env.TypeDefaults[t] = m
			}
		}
	}

	return env
}
