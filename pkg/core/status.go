package core

import "fmt"

// RunPhase represents the run-scoped state machine of an orchestration run:
//
//	Idle -> Instantiating -> Synthesizing -> Binding -> Patching -> Assembled
//
// with a terminal Failed state reachable from any phase. Phases never
// interleave across components: a phase completes for all components
// before the next begins.
type RunPhase string

const (
	// PhaseIdle indicates the run has not started.
	PhaseIdle RunPhase = "idle"

	// PhaseInstantiating indicates configuration resolution and component
	// construction are in progress.
	PhaseInstantiating RunPhase = "instantiating"

	// PhaseSynthesizing indicates provisioner synthesis is in progress.
	PhaseSynthesizing RunPhase = "synthesizing"

	// PhaseBinding indicates binding directives are being resolved and
	// dispatched.
	PhaseBinding RunPhase = "binding"

	// PhasePatching indicates the optional patch hook is being applied.
	PhasePatching RunPhase = "patching"

	// PhaseAssembled indicates the run completed and the synthesis result
	// is final.
	PhaseAssembled RunPhase = "assembled"

	// PhaseFailed indicates the run aborted. No phase is retried.
	PhaseFailed RunPhase = "failed"
)

// phaseOrder encodes the legal forward progression of the pipeline.
var phaseOrder = map[RunPhase]RunPhase{
	PhaseIdle:          PhaseInstantiating,
	PhaseInstantiating: PhaseSynthesizing,
	PhaseSynthesizing:  PhaseBinding,
	PhaseBinding:       PhasePatching,
	PhasePatching:      PhaseAssembled,
}

// IsTerminal returns true if the phase is a final state.
func (p RunPhase) IsTerminal() bool {
	return p == PhaseAssembled || p == PhaseFailed
}

// CanTransitionTo reports whether moving from p to next is a legal
// transition. Failed is reachable from every non-terminal phase.
func (p RunPhase) CanTransitionTo(next RunPhase) bool {
	if p.IsTerminal() {
		return false
	}
	if next == PhaseFailed {
		return true
	}
	return phaseOrder[p] == next
}

// Validate checks if the phase is a known value.
func (p RunPhase) Validate() error {
	switch p {
	case PhaseIdle, PhaseInstantiating, PhaseSynthesizing,
		PhaseBinding, PhasePatching, PhaseAssembled, PhaseFailed:
		return nil
	default:
		return fmt.Errorf("invalid run phase: %s", p)
	}
}
