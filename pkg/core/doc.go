// Package core defines the shared data model, collaborator contracts, and
// error taxonomy for the OpenLoom orchestration platform.
//
// The platform takes a manifest of named, typed infrastructure components,
// resolves each component's effective configuration through a five-layer
// precedence chain, synthesizes the components into deployable artifacts,
// wires capability-based bindings between them, and applies an optional
// post-synthesis patch phase.
//
// This package is dependency-light by design: it holds the types every
// other package exchanges (ComponentSpec, EffectiveConfig,
// ComponentInstance, BindingResult, SynthesisResult), the interfaces that
// decouple the orchestrator from its collaborators (Provisioner,
// BindingStrategy, ProfileSource, FallbackSource, PatchHook), the run
// state machine, and the classified CoreError type used for every fatal
// condition in the pipeline.
//
// Concrete behavior lives in the sibling packages:
//
//   - pkg/resolver      five-layer configuration resolution
//   - pkg/profiles      compliance-framework profile store
//   - pkg/factory       framework-scoped component factories
//   - pkg/bindings      binding strategy registry and dispatch
//   - pkg/policy        Rego governance gate
//   - pkg/orchestrator  the phased synthesis pipeline
package core
