// Package resolver implements the five-layer configuration resolution
// chain. Each component's effective configuration is produced by merging,
// lowest priority first:
//
//  1. hardcoded safe fallbacks from the component type's factory
//  2. compliance framework profile defaults for the type
//  3. environment profile defaults (framework env section merged with the
//     manifest's own environment block)
//  4. the component's manifest config block
//  5. governance policy overrides (rejected in protected environments)
//
// Later layers win conflicts. Objects merge key by key; arrays and scalars
// are replaced wholesale, except that a key written with a trailing "+"
// (e.g. "rules+") appends to the lower-layer array instead of replacing
// it. Every resolved leaf is traced to the layer that contributed it.
//
// Strings of the form "${env:<key>}" are deferred interpolation tokens
// resolved against the environment layer. A token whose key is absent is
// left as a core.UnresolvedToken marker rather than failing the pass.
package resolver
