// Package factory maps component type names to creators capable of
// validating and instantiating those types, scoped to a compliance
// framework.
//
// A Provider holds the known creators and produces one Factory per
// framework; the Factory's Registry filters out types the framework
// does not permit and may swap in hardened creator variants. The
// Registry also serves as the layer-1 fallback source for
// configuration resolution, so a component's safe baseline always
// travels with the creator that owns the type.
package factory
