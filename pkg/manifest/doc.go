// Package manifest parses and validates orchestration manifests. The
// core treats schema validation as this package's responsibility: a
// core.Manifest handed to the orchestrator is already structurally
// sound.
//
// Validation happens in three passes: YAML decoding, CUE schema
// unification against the built-in manifest schema, and semantic
// checks (unique component names, well-formed binding directives).
package manifest
