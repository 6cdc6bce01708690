package core

import "context"

// ValidationResult is the outcome of a provisioner's spec validation.
type ValidationResult struct {
	// Valid is true when the spec is acceptable.
	Valid bool `json:"valid"`

	// Errors lists the validation failures when Valid is false.
	Errors []string `json:"errors,omitempty"`
}

// ArtifactHandle identifies a deployable artifact produced by synthesis.
// The concrete representation is provisioner-specific; the core only needs
// identity and kind.
type ArtifactHandle interface {
	// ID returns the artifact's unique identifier within the run.
	ID() string

	// Kind returns the artifact kind (e.g., "template", "container-spec").
	Kind() string
}

// SynthesisContext carries everything a provisioner needs to synthesize
// one component.
type SynthesisContext struct {
	// Component is the component name.
	Component string

	// Config is the resolved effective configuration.
	Config *EffectiveConfig

	// Framework and Environment record the run scope, letting a
	// provisioner harden its output per compliance posture.
	Framework   string
	Environment string

	// RunID identifies the orchestration run.
	RunID string
}

// Provisioner is the external collaborator that turns a component's
// effective configuration into a deployable artifact. Concrete
// provisioners live outside the core (pkg/providers ships the builtins).
type Provisioner interface {
	// Type returns the component type this provisioner handles.
	Type() string

	// ValidateSpec validates the resolved configuration before synthesis.
	ValidateSpec(cfg *EffectiveConfig) ValidationResult

	// Synthesize turns the configuration into a deployable artifact.
	// Called exactly once per instance per run.
	Synthesize(ctx context.Context, sc *SynthesisContext) (ArtifactHandle, error)

	// GetCapabilities returns the capability map the synthesized component
	// publishes. Only meaningful after Synthesize.
	GetCapabilities() CapabilityMap

	// GetConstructHandle returns a named construct handle for the patch
	// phase. The name "main" is the component's primary handle.
	GetConstructHandle(name string) (ArtifactHandle, bool)
}

// BindContext carries one binding dispatch: the already-synthesized source
// and target instances, the directive, and the run scope. Strategies may
// branch their wiring on the compliance framework.
type BindContext struct {
	// Source is the component declaring the directive.
	Source *ComponentInstance

	// Target is the resolved target component.
	Target *ComponentInstance

	// Directive is the declared binding directive.
	Directive BindingDirective

	// Framework and Environment record the run scope.
	Framework   string
	Environment string
}

// BindingStrategy wires one class of (source type, target capability)
// connections. Strategies may mutate the source instance (e.g., inject
// environment variables) and may append newly derived capabilities via
// ComponentInstance.AppendCapability, but must never mutate a target's
// already-published capability map entries.
type BindingStrategy interface {
	// Name returns a stable strategy name for reports and logs.
	Name() string

	// CanHandle reports whether the strategy handles the pair. The
	// capability may be matched exactly or by "<domain>:*" pattern.
	CanHandle(sourceType, capability string) bool

	// Bind applies the wiring and returns the binding record.
	Bind(ctx context.Context, bc *BindContext) (*BindingResult, error)
}

// ProfileSource looks up compliance framework profiles by name. Lookups
// are synchronous; the store is read-only during a run.
type ProfileSource interface {
	// Lookup returns the profile for the framework name, or an
	// UNKNOWN_FRAMEWORK configuration error listing known frameworks.
	Lookup(framework string) (*FrameworkProfile, error)

	// Frameworks enumerates the known framework names, sorted.
	Frameworks() []string
}

// FallbackSource supplies the hardcoded layer-1 fallbacks for a component
// type. Fallbacks must be safe, not merely minimal: a compliance-relevant
// control is never disabled by a fallback. The factory registry implements
// this.
type FallbackSource interface {
	// Fallbacks returns the safe baseline for the type, or false when the
	// type is unknown.
	Fallbacks(componentType string) (map[string]interface{}, bool)
}

// PatchContext is handed to the optional post-synthesis patch hook.
type PatchContext struct {
	// Instances is every component instance in the run, keyed by name.
	Instances map[string]*ComponentInstance

	// ConstructHandles indexes each component's declared "main" handle
	// by component name.
	ConstructHandles map[string]ArtifactHandle

	// RunMetadata carries run identity and scope.
	RunMetadata map[string]interface{}
}

// PatchHook is the optional escape hatch applied after binding. A hook
// error aborts the run; patch application is all-or-nothing.
type PatchHook interface {
	// Apply runs the hook against the assembled instances.
	Apply(ctx context.Context, pc *PatchContext) error
}

// ReportStore persists synthesis reports across runs. Component instances
// themselves are never persisted; only the report is.
type ReportStore interface {
	// SaveReport persists a completed synthesis result.
	SaveReport(ctx context.Context, result *SynthesisResult) error

	// GetReport retrieves a report by run ID.
	GetReport(ctx context.Context, runID string) (*SynthesisResult, error)

	// ListReports lists stored reports, newest first.
	ListReports(ctx context.Context, limit int) ([]SynthesisResult, error)
}
