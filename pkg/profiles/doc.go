// Package profiles manages compliance framework profiles: named,
// versioned bundles of per-component-type defaults and safety rules
// (layer 2 of configuration resolution).
//
// Three profiles ship built in (baseline, enhanced, maximum); additional
// profiles load from YAML files or directories. A Registry serves
// lookups by framework name and enumerates the known names when a
// lookup misses, so callers can surface actionable errors before any
// component is instantiated.
package profiles
