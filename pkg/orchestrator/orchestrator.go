package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/openloom/openloom/pkg/bindings"
	"github.com/openloom/openloom/pkg/core"
	"github.com/openloom/openloom/pkg/factory"
	"github.com/openloom/openloom/pkg/policy"
	"github.com/openloom/openloom/pkg/profiles"
	"github.com/openloom/openloom/pkg/telemetry"
)

// PatchLoader locates the optional patch hook for a manifest directory.
// It returns the hook, whether one was found, and any load error.
type PatchLoader func(dir string, logger zerolog.Logger) (core.PatchHook, bool, error)

// Options configures an Orchestrator. Profiles, Factories and Bindings
// are required; everything else has a usable default.
type Options struct {
	// Profiles resolves compliance framework profiles.
	Profiles core.ProfileSource

	// Factories provides component creators.
	Factories *factory.Provider

	// Bindings dispatches binding directives to strategies.
	Bindings *bindings.Registry

	// Gate is the governance gate run between instantiation and
	// synthesis. Nil disables governance evaluation.
	Gate *policy.Gate

	// Store persists synthesis reports. Nil disables persistence.
	Store core.ReportStore

	// PatchLoader locates the patch hook. Defaults to the Starlark
	// patches.star convention.
	PatchLoader PatchLoader

	// Logger is the parent logger.
	Logger zerolog.Logger

	// Tracer and Metrics are optional; nil yields no-op instrumentation.
	Tracer  *telemetry.Tracer
	Metrics *telemetry.Metrics
}

// Orchestrator drives the five-phase run pipeline over a parsed
// manifest. Safe for concurrent runs; all run state is local to Run.
type Orchestrator struct {
	profiles    core.ProfileSource
	factories   *factory.Provider
	bindings    *bindings.Registry
	gate        *policy.Gate
	store       core.ReportStore
	patchLoader PatchLoader
	logger      zerolog.Logger
	tracer      *telemetry.Tracer
	metrics     *telemetry.Metrics
}

// New creates an orchestrator from options.
func New(opts Options) (*Orchestrator, error) {
	if opts.Profiles == nil {
		return nil, fmt.Errorf("orchestrator requires a profile source")
	}
	if opts.Factories == nil {
		return nil, fmt.Errorf("orchestrator requires a factory provider")
	}
	if opts.Bindings == nil {
		return nil, fmt.Errorf("orchestrator requires a binding registry")
	}

	tracer := opts.Tracer
	if tracer == nil {
		var err error
		tracer, err = telemetry.NewTracer(telemetry.TracingConfig{}, "openloom", "")
		if err != nil {
			return nil, err
		}
	}
	metrics := opts.Metrics
	if metrics == nil {
		var err error
		metrics, err = telemetry.NewMetrics(telemetry.MetricsConfig{})
		if err != nil {
			return nil, err
		}
	}
	patchLoader := opts.PatchLoader
	if patchLoader == nil {
		patchLoader = LoadPatchHook
	}

	return &Orchestrator{
		profiles:    opts.Profiles,
		factories:   opts.Factories,
		bindings:    opts.Bindings,
		gate:        opts.Gate,
		store:       opts.Store,
		patchLoader: patchLoader,
		logger:      opts.Logger.With().Str("component", "orchestrator").Logger(),
		tracer:      tracer,
		metrics:     metrics,
	}, nil
}

// run is the per-run working state. It lives for one Run call.
type run struct {
	manifest  *core.Manifest
	profile   *core.FrameworkProfile
	env       *core.EnvironmentProfile
	instances []*core.ComponentInstance
	byName    map[string]*core.ComponentInstance
	durations map[string]time.Duration
	phase     core.RunPhase
	result    *core.SynthesisResult
}

// advance moves the run to the next phase, enforcing the state machine.
func (r *run) advance(next core.RunPhase) error {
	if !r.phase.CanTransitionTo(next) {
		return fmt.Errorf("illegal phase transition %s -> %s", r.phase, next)
	}
	r.phase = next
	return nil
}

// Run executes the full pipeline for one manifest and returns the
// synthesis result. On failure the returned result carries the Failed
// phase and whatever was assembled before the abort, alongside the
// classified error.
func (o *Orchestrator) Run(ctx context.Context, m *core.Manifest) (*core.SynthesisResult, error) {
	started := time.Now()
	r := &run{
		manifest:  m,
		byName:    make(map[string]*core.ComponentInstance, len(m.Components)),
		durations: make(map[string]time.Duration, len(m.Components)),
		phase:     core.PhaseIdle,
		result: &core.SynthesisResult{
			RunID:       uuid.NewString(),
			Manifest:    m.Name,
			Framework:   m.Framework,
			Environment: m.Environment,
			StartedAt:   started,
			Tags:        m.Tags,
		},
	}

	logger := o.logger.With().
		Str("run_id", r.result.RunID).
		Str("manifest", m.Name).
		Str("framework", m.Framework).
		Str("environment", m.Environment).
		Logger()
	logger.Info().Int("components", len(m.Components)).Msg("Run started")

	ctx, span := o.tracer.StartRunSpan(ctx, r.result.RunID, m.Name, m.Framework, m.Environment)
	defer span.End()
	o.metrics.RunStarted(m.Framework, m.Environment)

	phases := []struct {
		phase core.RunPhase
		step  func(context.Context, *run) error
	}{
		{core.PhaseInstantiating, o.instantiate},
		{core.PhaseSynthesizing, o.synthesize},
		{core.PhaseBinding, o.bind},
		{core.PhasePatching, o.patch},
	}

	for _, p := range phases {
		if err := r.advance(p.phase); err != nil {
			return o.fail(ctx, r, span, err)
		}
		if err := ctx.Err(); err != nil {
			return o.fail(ctx, r, span, cancelled(r.phase, err))
		}

		phaseCtx, phaseSpan := o.tracer.StartPhaseSpan(ctx, string(p.phase))
		phaseStart := time.Now()
		err := p.step(phaseCtx, r)
		o.metrics.PhaseCompleted(string(p.phase), time.Since(phaseStart))
		if err != nil {
			telemetry.RecordError(phaseSpan, err)
			phaseSpan.End()
			return o.fail(ctx, r, span, err)
		}
		telemetry.RecordSuccess(phaseSpan)
		phaseSpan.End()
	}

	if err := r.advance(core.PhaseAssembled); err != nil {
		return o.fail(ctx, r, span, err)
	}
	o.assemble(r)

	o.metrics.RunCompleted(m.Framework, m.Environment, string(core.PhaseAssembled), r.result.Duration)
	telemetry.RecordSuccess(span)
	o.persist(ctx, r, logger)

	logger.Info().
		Dur("duration", r.result.Duration).
		Int("bindings", len(r.result.Bindings)).
		Bool("patches_applied", r.result.PatchesApplied).
		Msg("Run assembled")
	return r.result, nil
}

// instantiate is phase 1: profile lookup, environment assembly,
// per-component resolution and construction, then the governance gate.
func (o *Orchestrator) instantiate(ctx context.Context, r *run) error {
	profile, err := o.profiles.Lookup(r.manifest.Framework)
	if err != nil {
		return attachPhase(err, r.phase)
	}
	r.profile = profile
	r.env = profiles.EnvironmentFor(profile, r.manifest)

	fac, err := o.factories.CreateFactory(r.manifest.Framework)
	if err != nil {
		return attachPhase(err, r.phase)
	}
	registry := fac.CreateRegistry()

	for _, spec := range r.manifest.Components {
		if err := ctx.Err(); err != nil {
			return cancelled(r.phase, err)
		}
		inst, err := registry.CreateComponent(spec, r.env)
		if err != nil {
			return attachPhase(err, r.phase)
		}
		r.instances = append(r.instances, inst)
		r.byName[spec.Name] = inst
	}

	return o.checkGovernance(ctx, r)
}

// checkGovernance evaluates every resolved configuration against the
// governance gate. Blocking violations deny the run before any
// provisioner is invoked; warnings are attached to the result.
func (o *Orchestrator) checkGovernance(ctx context.Context, r *run) error {
	if o.gate == nil {
		return nil
	}

	configs := make([]*core.EffectiveConfig, len(r.instances))
	for i, inst := range r.instances {
		configs[i] = inst.Config
	}
	decision, err := o.gate.Evaluate(ctx, policy.GateInputs(configs, r.manifest.Components, r.env))
	if err != nil {
		return core.NewConfigurationError(core.ErrCodePolicyViolation,
			"governance gate evaluation failed", err).WithPhase(r.phase)
	}

	r.result.Warnings = append(r.result.Warnings, decision.Warnings...)

	var blocking []string
	for _, v := range decision.Violations {
		o.metrics.PolicyViolation(v.Rule, v.Severity)
		if policy.Severity(v.Severity).Blocking() {
			blocking = append(blocking, violationText(v))
			continue
		}
		r.result.Warnings = append(r.result.Warnings, "governance: "+violationText(v))
	}

	if !decision.Allowed {
		return core.NewConfigurationError(core.ErrCodePolicyViolation,
			fmt.Sprintf("governance gate denied the run: %s", strings.Join(blocking, "; ")), nil).
			WithPhase(r.phase)
	}
	return nil
}

// synthesize is phase 2: invoke each provisioner in declaration order
// and capture handles and capability maps.
func (o *Orchestrator) synthesize(ctx context.Context, r *run) error {
	for _, inst := range r.instances {
		if err := ctx.Err(); err != nil {
			return cancelled(r.phase, err)
		}

		provCtx, provSpan := o.tracer.StartProvisionerSpan(ctx, inst.Spec.Name, inst.Spec.Type)
		start := time.Now()
		handle, err := inst.Provisioner.Synthesize(provCtx, &core.SynthesisContext{
			Component:   inst.Spec.Name,
			Config:      inst.Config,
			Framework:   r.manifest.Framework,
			Environment: r.manifest.Environment,
			RunID:       r.result.RunID,
		})
		r.durations[inst.Spec.Name] = time.Since(start)
		if err != nil {
			telemetry.RecordError(provSpan, err)
			provSpan.End()
			return attachPhase(core.NewSynthesisError(
				fmt.Sprintf("synthesis of component %q failed", inst.Spec.Name), err).
				WithComponent(inst.Spec.Name), r.phase)
		}
		telemetry.RecordSuccess(provSpan)
		provSpan.End()

		inst.Handle = handle
		inst.Capabilities = inst.Provisioner.GetCapabilities().Clone()
		inst.SynthesizedAt = time.Now()
		o.metrics.ComponentSynthesized(inst.Spec.Type)
	}
	return nil
}

// bind is phase 3: resolve each directive's target, verify the
// requested capability exists, and dispatch to the strategy registry.
func (o *Orchestrator) bind(ctx context.Context, r *run) error {
	for _, inst := range r.instances {
		for _, directive := range inst.Spec.Binds {
			if err := ctx.Err(); err != nil {
				return cancelled(r.phase, err)
			}

			if err := directive.Validate(); err != nil {
				return core.NewBindingError(core.ErrCodeInvalidDirective,
					"invalid binding directive", err).
					WithComponent(inst.Spec.Name).
					WithDirective(directive.Describe()).
					WithPhase(r.phase)
			}

			target, err := o.resolveTarget(r, inst, directive)
			if err != nil {
				return attachPhase(err, r.phase)
			}

			if _, ok := target.Capabilities[directive.Capability]; !ok {
				return core.NewBindingError(core.ErrCodeCapabilityNotFound,
					fmt.Sprintf("component %q does not expose capability %q",
						target.Spec.Name, directive.Capability), nil).
					WithComponent(inst.Spec.Name).
					WithDirective(directive.Describe()).
					WithCandidates(target.Capabilities.Keys()).
					WithPhase(r.phase)
			}

			res, err := o.bindings.Bind(ctx, &core.BindContext{
				Source:      inst,
				Target:      target,
				Directive:   directive,
				Framework:   r.manifest.Framework,
				Environment: r.manifest.Environment,
			})
			if err != nil {
				return attachPhase(err, r.phase)
			}
			r.result.Bindings = append(r.result.Bindings, *res)
			o.metrics.BindingApplied(res.Strategy)
		}
	}
	return nil
}

// resolveTarget resolves a directive's target instance, by name or by
// selector. Selector resolution excludes the source itself and must
// match exactly one component.
func (o *Orchestrator) resolveTarget(r *run, source *core.ComponentInstance, d core.BindingDirective) (*core.ComponentInstance, error) {
	if d.To != "" {
		target, ok := r.byName[d.To]
		if !ok {
			return nil, core.NewBindingError(core.ErrCodeTargetNotFound,
				fmt.Sprintf("binding target %q is not declared in the manifest", d.To), nil).
				WithComponent(source.Spec.Name).
				WithDirective(d.Describe()).
				WithCandidates(declaredNames(r))
		}
		return target, nil
	}

	var matches []*core.ComponentInstance
	for _, candidate := range r.instances {
		if candidate.Spec.Name == source.Spec.Name {
			continue
		}
		if d.Select.Matches(candidate.Spec) {
			matches = append(matches, candidate)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, core.NewBindingError(core.ErrCodeTargetNotFound,
			fmt.Sprintf("selector %s matched no component", d.Select.Describe()), nil).
			WithComponent(source.Spec.Name).
			WithDirective(d.Describe())
	default:
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, m.Spec.Name)
		}
		sort.Strings(names)
		return nil, core.NewBindingError(core.ErrCodeAmbiguousSelector,
			fmt.Sprintf("selector %s matched %d components", d.Select.Describe(), len(matches)), nil).
			WithComponent(source.Spec.Name).
			WithDirective(d.Describe()).
			WithCandidates(names)
	}
}

// patch is phase 4: load and apply the conventional hook, if present.
func (o *Orchestrator) patch(ctx context.Context, r *run) error {
	hook, found, err := o.patchLoader(r.manifest.Dir, o.logger)
	if err != nil {
		return attachPhase(err, r.phase)
	}
	if !found {
		o.logger.Debug().Str("dir", r.manifest.Dir).Msg("No patch hook present")
		return nil
	}

	handles := make(map[string]core.ArtifactHandle, len(r.instances))
	for _, inst := range r.instances {
		if h, ok := inst.Provisioner.GetConstructHandle("main"); ok {
			handles[inst.Spec.Name] = h
		}
	}

	pc := &core.PatchContext{
		Instances:        r.byName,
		ConstructHandles: handles,
		RunMetadata: map[string]interface{}{
			"run_id":      r.result.RunID,
			"manifest":    r.manifest.Name,
			"framework":   r.manifest.Framework,
			"environment": r.manifest.Environment,
		},
	}
	if err := hook.Apply(ctx, pc); err != nil {
		return attachPhase(err, r.phase)
	}
	r.result.PatchesApplied = true
	return nil
}

// assemble is phase 5: finalize the synthesis result.
func (o *Orchestrator) assemble(r *run) {
	for _, inst := range r.instances {
		r.result.Components = append(r.result.Components, core.ComponentReport{
			Name:              inst.Spec.Name,
			Type:              inst.Spec.Type,
			Capabilities:      inst.Capabilities.Keys(),
			SynthesisDuration: r.durations[inst.Spec.Name],
		})
	}
	r.result.Phase = r.phase
	r.result.CompletedAt = time.Now()
	r.result.Duration = r.result.CompletedAt.Sub(r.result.StartedAt)
}

// fail finalizes the result after an abort. The partial result is
// returned alongside the error so callers can report what was built.
func (o *Orchestrator) fail(ctx context.Context, r *run, span trace.Span, err error) (*core.SynthesisResult, error) {
	telemetry.RecordError(span, err)
	r.phase = core.PhaseFailed
	o.assemble(r)

	kind, code := classify(err)
	o.metrics.RunError(kind, code)
	o.metrics.RunCompleted(r.manifest.Framework, r.manifest.Environment,
		string(core.PhaseFailed), r.result.Duration)

	logger := o.logger.With().Str("run_id", r.result.RunID).Logger()
	logger.Error().Err(err).Str("code", code).Msg("Run failed")
	o.persist(ctx, r, logger)
	return r.result, err
}

// persist saves the report when a store is configured. Persistence
// failures do not change the run outcome.
func (o *Orchestrator) persist(ctx context.Context, r *run, logger zerolog.Logger) {
	if o.store == nil {
		return
	}
	// The run's own context may already be cancelled; the report is
	// still worth keeping.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.store.SaveReport(saveCtx, r.result); err != nil {
		logger.Warn().Err(err).Msg("Failed to persist synthesis report")
	}
}

func declaredNames(r *run) []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func violationText(v policy.Violation) string {
	if v.Component != "" {
		return fmt.Sprintf("%s: %s (component %s)", v.Rule, v.Message, v.Component)
	}
	return fmt.Sprintf("%s: %s", v.Rule, v.Message)
}

// cancelled classifies a context cancellation by the phase it hit.
func cancelled(phase core.RunPhase, err error) *core.CoreError {
	return &core.CoreError{
		Kind:    kindForPhase(phase),
		Code:    core.ErrCodeCancelled,
		Message: "run cancelled",
		Phase:   phase,
		Err:     err,
	}
}

func kindForPhase(phase core.RunPhase) core.ErrorKind {
	switch phase {
	case core.PhaseSynthesizing:
		return core.KindSynthesis
	case core.PhaseBinding:
		return core.KindBinding
	case core.PhasePatching:
		return core.KindPatch
	default:
		return core.KindInstantiation
	}
}

// attachPhase stamps the run phase onto a classified error that does
// not carry one yet.
func attachPhase(err error, phase core.RunPhase) error {
	var ce *core.CoreError
	if errors.As(err, &ce) && ce.Phase == "" {
		ce.Phase = phase
	}
	return err
}

func classify(err error) (kind, code string) {
	var ce *core.CoreError
	if errors.As(err, &ce) {
		return string(ce.Kind), ce.Code
	}
	return "unknown", "UNKNOWN"
}
