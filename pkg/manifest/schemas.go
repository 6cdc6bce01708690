package manifest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages the CUE schemas manifests validate against.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the built-in schemas.
func NewSchemaRegistry() (*SchemaRegistry, error) {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	builtins := map[string]struct{ definition, source string }{
		"manifest":  {"#Manifest", builtinManifestSchema},
		"component": {"#Component", builtinComponentSchema},
		"binding":   {"#Binding", builtinBindingSchema},
	}
	for name, s := range builtins {
		if err := sr.RegisterSchema(name, s.definition, s.source); err != nil {
			return nil, err
		}
	}
	return sr, nil
}

// RegisterSchema compiles a schema and stores the named definition as
// the validation root.
func (sr *SchemaRegistry) RegisterSchema(name, definition, source string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	root := sr.ctx.CompileString(source)
	if err := root.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := root.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s does not define %s", name, definition)
	}

	sr.schemas[name] = def
	return nil
}

// ValidateAgainstSchema unifies data with a named schema definition.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	sr.mu.RLock()
	schema, ok := sr.schemas[schemaName]
	sr.mu.RUnlock()
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// ListSchemas returns the registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Built-in schema definitions.

const builtinBindingSchema = `
// Binding schema for component binding directives
#Binding: {
	// to is the target component name (mutually exclusive with select)
	to?: string & =~"^[a-z0-9-]+$"

	// select resolves the target dynamically
	select?: {
		// type is the component type to match
		type: string & =~"^[a-z0-9]+\\.[a-z0-9_]+$"

		// withLabels requires exact label matches
		withLabels?: {[string]: string}
	}

	// capability is the namespaced capability key ("domain:kind")
	capability: string & =~"^[a-z0-9]+:[a-z0-9_-]+$"

	// access is the requested access level
	access: "read" | "write" | "readwrite" | "admin"

	// env overrides injected variable names
	env?: {[string]: string}

	// options are strategy-specific settings
	options?: {...}
}
`

const builtinComponentSchema = builtinBindingSchema + `
// Component schema for declared components
#Component: {
	// name is the component name, unique within the manifest
	name: string & =~"^[a-z0-9-]+$"

	// type maps to a registered component creator
	type: string & =~"^[a-z0-9]+\\.[a-z0-9_]+$"

	// config is the manifest-level configuration override
	config?: {...}

	// binds are the declared binding directives
	binds?: [...#Binding]

	// labels are used by selector-based binding resolution
	labels?: {[string]: string}

	// policy is the governance override escape hatch
	policy?: {
		overrides: {...}
	}
}
`

const builtinManifestSchema = builtinComponentSchema + `
// Manifest schema for orchestration runs
#Manifest: {
	// name identifies the manifest
	name: string & =~"^[a-zA-Z0-9_-]+$"

	// framework is the compliance framework the run is scoped to
	framework: string & =~"^[a-z0-9-]+$"

	// environment is the active deployment environment
	environment: string & =~"^[a-z0-9-]+$"

	// tags are free-form run metadata
	tags?: {[string]: string}

	// environments holds per-environment default blocks
	environments?: {[string]: {
		protected?: bool
		defaults?: {...}
		typeDefaults?: {[string]: {...}}
	}}

	// components are the declared components, at least one
	components: [#Component, ...#Component]
}
`
