// Package orchestrator runs the five-phase synthesis pipeline:
//
//  1. Instantiation: resolve each component's effective configuration
//     and construct its provisioner through the framework-scoped
//     factory registry, then pass every configuration through the
//     governance gate.
//  2. Synthesis: invoke each provisioner in manifest declaration order
//     and collect the published capability maps.
//  3. Binding: resolve each directive's target (by name or selector),
//     check the requested capability and dispatch to the strategy
//     registry.
//  4. Patching: apply the conventional patches.star hook beside the
//     manifest, if present. A missing hook is a no-op.
//  5. Assembly: produce the SynthesisResult, the run's sole output.
//
// Phases are strictly sequential and never interleave across
// components. A failure in any component aborts the whole run; nothing
// is retried and partial artifacts are not rolled back here. The run
// state machine (core.RunPhase) tracks progress, with Failed terminal
// and reachable from every phase, including on caller cancellation.
package orchestrator
