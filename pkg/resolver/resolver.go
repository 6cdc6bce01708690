package resolver

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/openloom/openloom/pkg/core"
)

// Resolver produces one EffectiveConfig per ComponentSpec by merging the
// five precedence layers. Read-only after construction; safe to share
// across concurrent runs.
type Resolver struct {
	fallbacks core.FallbackSource
	logger    zerolog.Logger
}

// New creates a resolver drawing layer-1 fallbacks from the given source.
func New(fallbacks core.FallbackSource, logger zerolog.Logger) *Resolver {
	return &Resolver{
		fallbacks: fallbacks,
		logger:    logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve merges the five layers for one component. It never silently
// falls back past layer 1 on a hard failure in layers 2-5: those indicate
// a misconfigured platform, not a legitimately absent optional layer.
func (r *Resolver) Resolve(
	spec core.ComponentSpec,
	profile *core.FrameworkProfile,
	env *core.EnvironmentProfile,
) (*core.EffectiveConfig, error) {
	if spec.Name == "" || spec.Type == "" {
		return nil, core.NewConfigurationError(core.ErrCodeMalformedProfile,
			"component spec is missing name or type", nil).
			WithComponent(spec.Name)
	}
	if profile == nil {
		return nil, core.NewConfigurationError(core.ErrCodeUnknownFramework,
			"no framework profile supplied", nil).
			WithComponent(spec.Name)
	}
	if env == nil {
		return nil, core.NewConfigurationError(core.ErrCodeMalformedProfile,
			"no environment profile supplied", nil).
			WithComponent(spec.Name)
	}

	state := newMergeState()

	// Layer 1: hardcoded safe fallbacks from the type's factory.
	fallbacks, ok := r.fallbacks.Fallbacks(spec.Type)
	if !ok {
		return nil, core.NewInstantiationError(core.ErrCodeNoFactory,
			fmt.Sprintf("no fallbacks registered for component type %q", spec.Type), nil).
			WithComponent(spec.Name)
	}
	state.apply(core.LayerFallback, fallbacks)

	// Layer 2: framework profile defaults. A missing section is a hard
	// failure, never skipped.
	section, ok := profile.Defaults[spec.Type]
	if !ok {
		return nil, core.NewConfigurationError(core.ErrCodeMissingProfileSection,
			fmt.Sprintf("framework %q (version %s) has no defaults section for component type %q",
				profile.Name, profile.Version, spec.Type), nil).
			WithComponent(spec.Name).
			WithCandidates(sectionNames(profile))
	}
	state.apply(core.LayerFramework, section)

	// Layer 3: environment profile defaults.
	envLayer := env.LayerFor(spec.Type)
	state.apply(core.LayerEnvironment, envLayer)

	// Layer 4: the component's own config block.
	if len(spec.Config) > 0 {
		state.apply(core.LayerManifest, spec.Config)
	}

	// Layer 5: governance policy overrides. Rejected outright in
	// protected environments; the strict behavior is deliberate, see
	// DESIGN.md.
	if spec.Policy != nil && len(spec.Policy.Overrides) > 0 {
		if env.Protected || profile.IsProtected(env.Name) {
			return nil, core.NewConfigurationError(core.ErrCodePolicyViolation,
				fmt.Sprintf("policy overrides are not permitted in protected environment %q", env.Name), nil).
				WithComponent(spec.Name)
		}
		state.apply(core.LayerPolicy, spec.Policy.Overrides)
	}

	// Deferred interpolation against the environment layer.
	interpolate(state.values, envLayer)

	r.logger.Debug().
		Str("component", spec.Name).
		Str("type", spec.Type).
		Str("framework", profile.Name).
		Str("environment", env.Name).
		Int("traced_fields", len(state.trace)).
		Msg("Configuration resolved")

	return &core.EffectiveConfig{
		Component:   spec.Name,
		Type:        spec.Type,
		Framework:   profile.Name,
		Environment: env.Name,
		Values:      state.values,
		Trace:       state.trace,
	}, nil
}

// sectionNames lists the profile's defaults sections, sorted, for the
// MISSING_PROFILE_SECTION candidates enumeration.
func sectionNames(profile *core.FrameworkProfile) []string {
	names := make([]string, 0, len(profile.Defaults))
	for name := range profile.Defaults {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
