package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Manifest is the parsed, schema-validated input to an orchestration run.
// Parsing and schema validation happen in pkg/manifest; by the time a
// Manifest reaches the orchestrator it is structurally sound.
type Manifest struct {
	// Name identifies the manifest (e.g., the stack or application name).
	Name string `json:"name" yaml:"name" validate:"required"`

	// Framework is the compliance framework the run is scoped to
	// (e.g., "baseline", "enhanced", "maximum").
	Framework string `json:"framework" yaml:"framework" validate:"required"`

	// Environment is the active deployment environment (e.g., "dev",
	// "staging", "prod").
	Environment string `json:"environment" yaml:"environment" validate:"required"`

	// Tags are free-form run metadata propagated into the synthesis report.
	Tags map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Environments holds the manifest's own per-environment default blocks,
	// keyed by environment name. These feed layer 3 of resolution.
	Environments map[string]EnvironmentBlock `json:"environments,omitempty" yaml:"environments,omitempty"`

	// Components are the declared components, in declaration order.
	// Declaration order is significant: synthesis and binding process
	// components in this order.
	Components []ComponentSpec `json:"components" yaml:"components" validate:"required,min=1,dive"`

	// Dir is the directory the manifest was loaded from. Used to locate
	// the conventional patch hook (patches.star). Empty for in-memory
	// manifests.
	Dir string `json:"-" yaml:"-"`
}

// EnvironmentBlock is a manifest-level environment default section.
type EnvironmentBlock struct {
	// Protected marks the environment as protected: governance policy
	// overrides are rejected when it is active.
	Protected bool `json:"protected,omitempty" yaml:"protected,omitempty"`

	// Defaults apply to every component in this environment.
	Defaults map[string]interface{} `json:"defaults,omitempty" yaml:"defaults,omitempty"`

	// TypeDefaults apply to components of a specific type, keyed by type.
	TypeDefaults map[string]map[string]interface{} `json:"typeDefaults,omitempty" yaml:"typeDefaults,omitempty"`
}

// ComponentSpec is a single component as declared in the manifest.
// Immutable once parsed.
type ComponentSpec struct {
	// Name is the component name, unique within the manifest.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Type maps to a registered component creator (e.g., "storage.bucket").
	Type string `json:"type" yaml:"type" validate:"required"`

	// Config is the manifest-level partial configuration override (layer 4).
	Config map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`

	// Binds are the declared binding directives, in order.
	Binds []BindingDirective `json:"binds,omitempty" yaml:"binds,omitempty"`

	// Labels are key-value pairs used by selector-based binding resolution.
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`

	// Policy is the governance escape hatch (layer 5). Nil when absent.
	Policy *PolicyBlock `json:"policy,omitempty" yaml:"policy,omitempty"`
}

// PolicyBlock carries governance policy overrides for a component.
type PolicyBlock struct {
	// Overrides are applied as the highest-priority resolution layer,
	// and only outside protected environments.
	Overrides map[string]interface{} `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// AccessMode is the access level a binding directive requests.
type AccessMode string

const (
	AccessRead      AccessMode = "read"
	AccessWrite     AccessMode = "write"
	AccessReadWrite AccessMode = "readwrite"
	AccessAdmin     AccessMode = "admin"
)

// Validate checks that the access mode is one of the known values.
func (a AccessMode) Validate() error {
	switch a {
	case AccessRead, AccessWrite, AccessReadWrite, AccessAdmin:
		return nil
	default:
		return fmt.Errorf("invalid access mode: %s", a)
	}
}

// BindingDirective is a manifest-declared request for one component to
// connect to another component's capability. Exactly one of To and Select
// must be set.
type BindingDirective struct {
	// To is the target component name for direct resolution.
	To string `json:"to,omitempty" yaml:"to,omitempty"`

	// Select resolves the target dynamically by type and labels.
	Select *Selector `json:"select,omitempty" yaml:"select,omitempty"`

	// Capability is the namespaced capability key the target must expose
	// (e.g., "queue:write").
	Capability string `json:"capability" yaml:"capability"`

	// Access is the requested access level.
	Access AccessMode `json:"access" yaml:"access"`

	// Env are environment-variable overrides the strategy should apply to
	// the source component.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Options are strategy-specific settings, passed through opaquely.
	Options map[string]interface{} `json:"options,omitempty" yaml:"options,omitempty"`
}

// Validate checks the directive's structural invariants: exactly one
// targeting mode, a capability key, and a known access mode.
func (d BindingDirective) Validate() error {
	if d.To == "" && d.Select == nil {
		return fmt.Errorf("binding directive must set either 'to' or 'select'")
	}
	if d.To != "" && d.Select != nil {
		return fmt.Errorf("binding directive must not set both 'to' and 'select'")
	}
	if d.Capability == "" {
		return fmt.Errorf("binding directive must declare a capability")
	}
	return d.Access.Validate()
}

// Describe renders the directive for error messages and logs.
func (d BindingDirective) Describe() string {
	if d.To != "" {
		return fmt.Sprintf("to=%s capability=%s access=%s", d.To, d.Capability, d.Access)
	}
	if d.Select != nil {
		return fmt.Sprintf("select=%s capability=%s access=%s", d.Select.Describe(), d.Capability, d.Access)
	}
	return fmt.Sprintf("capability=%s access=%s", d.Capability, d.Access)
}

// Selector matches target components by type and exact label values.
type Selector struct {
	// Type is the component type to match. Required.
	Type string `json:"type" yaml:"type"`

	// WithLabels requires an exact match on every listed label.
	WithLabels map[string]string `json:"withLabels,omitempty" yaml:"withLabels,omitempty"`
}

// Matches reports whether the selector matches the given spec.
func (s *Selector) Matches(spec ComponentSpec) bool {
	if spec.Type != s.Type {
		return false
	}
	for k, v := range s.WithLabels {
		if spec.Labels[k] != v {
			return false
		}
	}
	return true
}

// Describe renders the selector for error messages.
func (s *Selector) Describe() string {
	if len(s.WithLabels) == 0 {
		return fmt.Sprintf("{type=%s}", s.Type)
	}
	keys := make([]string, 0, len(s.WithLabels))
	for k := range s.WithLabels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+s.WithLabels[k])
	}
	return fmt.Sprintf("{type=%s labels=%s}", s.Type, strings.Join(pairs, ","))
}

// ConfigLayer identifies which of the five precedence layers contributed a
// resolved configuration value. Higher layers win conflicts.
type ConfigLayer string

const (
	// LayerFallback is the component type's hardcoded safe baseline.
	LayerFallback ConfigLayer = "fallback"

	// LayerFramework is the compliance framework profile's defaults.
	LayerFramework ConfigLayer = "framework"

	// LayerEnvironment is the active environment profile's defaults.
	LayerEnvironment ConfigLayer = "environment"

	// LayerManifest is the component's own config block.
	LayerManifest ConfigLayer = "manifest"

	// LayerPolicy is the governance policy override escape hatch.
	LayerPolicy ConfigLayer = "policy"
)

// Layers lists the five layers lowest-priority first.
func Layers() []ConfigLayer {
	return []ConfigLayer{LayerFallback, LayerFramework, LayerEnvironment, LayerManifest, LayerPolicy}
}

// UnresolvedToken marks a deferred interpolation token (${env:<key>})
// whose key was absent from the environment layer. It is left in the
// effective configuration for later resolution instead of failing the run,
// and is distinguishable from a literal string value by type.
type UnresolvedToken struct {
	// Key is the lookup key inside the token (the part after "env:").
	Key string `json:"key"`

	// Raw is the original token text, e.g. "${env:region}".
	Raw string `json:"raw"`
}

// String returns the original token text.
func (t UnresolvedToken) String() string { return t.Raw }

// EffectiveConfig is the fully merged five-layer configuration for one
// component instance. Immutable after resolution: consumers must not
// mutate Values or Trace.
type EffectiveConfig struct {
	// Component is the component name this configuration belongs to.
	Component string `json:"component"`

	// Type is the component type.
	Type string `json:"type"`

	// Framework and Environment record the resolution inputs.
	Framework   string `json:"framework"`
	Environment string `json:"environment"`

	// Values is the merged configuration tree.
	Values map[string]interface{} `json:"values"`

	// Trace maps each dotted leaf path to the layer that contributed its
	// final value, for audit purposes.
	Trace map[string]ConfigLayer `json:"trace"`
}

// Get returns the value at a dotted path (e.g., "storage.size").
func (c *EffectiveConfig) Get(path string) (interface{}, bool) {
	cur := interface{}(c.Values)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// GetString returns the string value at a dotted path, or "" when the
// path is absent or not a string.
func (c *EffectiveConfig) GetString(path string) string {
	v, ok := c.Get(path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// GetBool returns the boolean value at a dotted path.
func (c *EffectiveConfig) GetBool(path string) bool {
	v, ok := c.Get(path)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// CapabilityMap holds the namespaced capability facts a synthesized
// component publishes ("<domain>:<kind>" keys). Read-only once published.
type CapabilityMap map[string]interface{}

// Keys returns the capability keys in sorted order.
func (m CapabilityMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the map.
func (m CapabilityMap) Clone() CapabilityMap {
	out := make(CapabilityMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ComponentInstance is the runtime pairing of a ComponentSpec with its
// EffectiveConfig and the provisioner produced by the factory. Instances
// live for a single orchestration run and are never persisted.
type ComponentInstance struct {
	// Spec is the declaring component spec.
	Spec ComponentSpec `json:"spec"`

	// Config is the resolved effective configuration.
	Config *EffectiveConfig `json:"config"`

	// Provisioner is the external collaborator that synthesizes the
	// component. Not serialized.
	Provisioner Provisioner `json:"-"`

	// Handle is the artifact handle returned by synthesis. Nil before
	// the synthesis phase.
	Handle ArtifactHandle `json:"-"`

	// Capabilities is the capability map read after synthesis.
	// Read-only once set.
	Capabilities CapabilityMap `json:"capabilities,omitempty"`

	// SynthesizedAt records when synthesis completed. Zero before.
	SynthesizedAt time.Time `json:"synthesized_at,omitzero"`
}

// Synthesized reports whether the instance has completed synthesis.
func (ci *ComponentInstance) Synthesized() bool {
	return !ci.SynthesizedAt.IsZero()
}

// AppendCapability adds a newly derived capability to the instance before
// its map is considered final. Already-published entries are immutable:
// appending an existing key is an error.
func (ci *ComponentInstance) AppendCapability(key string, value interface{}) error {
	if ci.Capabilities == nil {
		ci.Capabilities = make(CapabilityMap)
	}
	if _, exists := ci.Capabilities[key]; exists {
		return fmt.Errorf("capability %s already published on %s", key, ci.Spec.Name)
	}
	ci.Capabilities[key] = value
	return nil
}

// BindingOutcome describes how an applied binding concluded.
type BindingOutcome string

const (
	// OutcomeApplied indicates the strategy wired the binding.
	OutcomeApplied BindingOutcome = "applied"
)

// BindingResult records one successfully applied binding directive.
// Results are append-only and accumulate into the synthesis report.
type BindingResult struct {
	// Source and Target are component names.
	Source string `json:"source"`
	Target string `json:"target"`

	// Capability is the bound capability key.
	Capability string `json:"capability"`

	// Access is the granted access level.
	Access AccessMode `json:"access"`

	// Strategy is the name of the strategy that handled the binding.
	Strategy string `json:"strategy"`

	// Outcome is the binding outcome.
	Outcome BindingOutcome `json:"outcome"`

	// Details are strategy-specific facts about the applied wiring.
	Details map[string]interface{} `json:"details,omitempty"`
}

// ComponentReport summarizes one component in the synthesis report.
type ComponentReport struct {
	// Name and Type identify the component.
	Name string `json:"name"`
	Type string `json:"type"`

	// Capabilities lists the capability keys the component published.
	Capabilities []string `json:"capabilities"`

	// SynthesisDuration is how long the provisioner's synthesis took.
	SynthesisDuration time.Duration `json:"synthesis_duration"`
}

// SynthesisResult is the sole externally consumed output of an
// orchestration run.
type SynthesisResult struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// Manifest, Framework and Environment record the run inputs.
	Manifest    string `json:"manifest"`
	Framework   string `json:"framework"`
	Environment string `json:"environment"`

	// Phase is the terminal phase the run reached (Assembled or Failed).
	Phase RunPhase `json:"phase"`

	// Components reports every instantiated component.
	Components []ComponentReport `json:"components"`

	// Bindings reports every applied binding directive.
	Bindings []BindingResult `json:"bindings"`

	// PatchesApplied is true when the conventional patch hook existed and
	// ran. A missing hook is not an error.
	PatchesApplied bool `json:"patches_applied"`

	// Warnings are non-fatal findings collected during the run.
	Warnings []string `json:"warnings,omitempty"`

	// StartedAt, CompletedAt and Duration record run timing.
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`

	// Tags are the manifest's run metadata tags.
	Tags map[string]string `json:"tags,omitempty"`
}

// FrameworkProfile is a named, versioned bundle of default values and
// safety rules scoped to a compliance posture. Loaded once per run and
// treated as read-only input to resolution.
type FrameworkProfile struct {
	// Name is the framework name (e.g., "baseline").
	Name string `json:"name" yaml:"name" validate:"required"`

	// Version is the profile bundle version.
	Version string `json:"version" yaml:"version" validate:"required"`

	// Description is a human-readable summary of the posture.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// ProtectedEnvironments lists environments in which governance policy
	// overrides are rejected.
	ProtectedEnvironments []string `json:"protectedEnvironments,omitempty" yaml:"protectedEnvironments,omitempty"`

	// Defaults holds per-component-type default sections (layer 2).
	// Resolution fails when a component's type has no section here.
	Defaults map[string]map[string]interface{} `json:"defaults" yaml:"defaults" validate:"required"`

	// Environments holds framework-scoped per-environment defaults,
	// merged beneath the manifest's own environment block in layer 3.
	Environments map[string]map[string]interface{} `json:"environments,omitempty" yaml:"environments,omitempty"`

	// AllowedTypes restricts which component types the framework permits.
	// Empty means all registered types are permitted.
	AllowedTypes []string `json:"allowedTypes,omitempty" yaml:"allowedTypes,omitempty"`
}

// HasSection reports whether the profile carries a defaults section for
// the given component type.
func (p *FrameworkProfile) HasSection(componentType string) bool {
	_, ok := p.Defaults[componentType]
	return ok
}

// IsProtected reports whether the given environment is protected under
// this profile.
func (p *FrameworkProfile) IsProtected(environment string) bool {
	for _, env := range p.ProtectedEnvironments {
		if env == environment {
			return true
		}
	}
	return false
}

// PermitsType reports whether the framework permits the component type.
func (p *FrameworkProfile) PermitsType(componentType string) bool {
	if len(p.AllowedTypes) == 0 {
		return true
	}
	for _, t := range p.AllowedTypes {
		if t == componentType {
			return true
		}
	}
	return false
}

// EnvironmentProfile is the assembled layer-3 input for one resolution
// pass: framework-scoped environment defaults merged with the manifest's
// own environment block.
type EnvironmentProfile struct {
	// Name is the environment name (e.g., "dev").
	Name string `json:"name"`

	// Protected marks the environment as protected.
	Protected bool `json:"protected"`

	// Defaults apply to every component.
	Defaults map[string]interface{} `json:"defaults,omitempty"`

	// TypeDefaults apply per component type.
	TypeDefaults map[string]map[string]interface{} `json:"typeDefaults,omitempty"`
}

// LayerFor returns the merged environment-layer map for a component type:
// the shared defaults with the type-specific defaults merged over them.
// The returned map is freshly allocated at the top level.
func (e *EnvironmentProfile) LayerFor(componentType string) map[string]interface{} {
	out := make(map[string]interface{}, len(e.Defaults))
	for k, v := range e.Defaults {
		out[k] = v
	}
	for k, v := range e.TypeDefaults[componentType] {
		out[k] = v
	}
	return out
}
