package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/openloom/openloom/pkg/core"
)

// Parser turns manifest files into validated core.Manifest values.
type Parser struct {
	logger   zerolog.Logger
	schemas  *SchemaRegistry
	validate *validator.Validate
}

// NewParser creates a parser with the built-in schemas.
func NewParser(logger zerolog.Logger) (*Parser, error) {
	schemas, err := NewSchemaRegistry()
	if err != nil {
		return nil, err
	}
	return &Parser{
		logger:   logger.With().Str("component", "manifest-parser").Logger(),
		schemas:  schemas,
		validate: validator.New(),
	}, nil
}

// Schemas exposes the schema registry (e.g., for `loom validate`).
func (p *Parser) Schemas() *SchemaRegistry {
	return p.schemas
}

// ParseFile loads, parses and validates a manifest file. The returned
// manifest records its directory so the orchestrator can find the
// conventional patch hook beside it.
func (p *Parser) ParseFile(ctx context.Context, path string) (*core.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewConfigurationError(core.ErrCodeMalformedManifest,
			fmt.Sprintf("failed to read manifest %s", path), err)
	}

	m, err := p.Parse(ctx, data)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	m.Dir = filepath.Dir(abs)

	p.logger.Info().
		Str("manifest", m.Name).
		Str("framework", m.Framework).
		Str("environment", m.Environment).
		Int("components", len(m.Components)).
		Msg("Manifest parsed")

	return m, nil
}

// Parse parses and validates manifest bytes.
func (p *Parser) Parse(ctx context.Context, data []byte) (*core.Manifest, error) {
	// Decode twice: the raw tree feeds CUE schema unification, the
	// typed struct feeds everything downstream.
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, core.NewConfigurationError(core.ErrCodeMalformedManifest,
			"failed to parse manifest YAML", err)
	}

	if err := p.schemas.ValidateAgainstSchema(ctx, "manifest", raw); err != nil {
		return nil, core.NewConfigurationError(core.ErrCodeMalformedManifest,
			"manifest failed schema validation", err)
	}

	var m core.Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, core.NewConfigurationError(core.ErrCodeMalformedManifest,
			"failed to decode manifest", err)
	}

	if err := p.validate.Struct(&m); err != nil {
		return nil, core.NewConfigurationError(core.ErrCodeMalformedManifest,
			"manifest failed structural validation", err)
	}

	if err := checkSemantics(&m); err != nil {
		return nil, err
	}

	return &m, nil
}

// checkSemantics enforces the invariants the schema cannot express:
// unique component names, well-formed directives, and binding targets
// that are resolvable in principle.
func checkSemantics(m *core.Manifest) error {
	seen := make(map[string]bool, len(m.Components))
	for _, spec := range m.Components {
		if seen[spec.Name] {
			return core.NewConfigurationError(core.ErrCodeMalformedManifest,
				fmt.Sprintf("duplicate component name %q", spec.Name), nil).
				WithComponent(spec.Name)
		}
		seen[spec.Name] = true
	}

	for _, spec := range m.Components {
		for _, d := range spec.Binds {
			if err := d.Validate(); err != nil {
				return core.NewConfigurationError(core.ErrCodeMalformedManifest,
					fmt.Sprintf("component %q declares an invalid binding", spec.Name), err).
					WithComponent(spec.Name).
					WithDirective(d.Describe())
			}
			if d.To != "" && !seen[d.To] {
				return core.NewConfigurationError(core.ErrCodeMalformedManifest,
					fmt.Sprintf("component %q binds to undeclared component %q", spec.Name, d.To), nil).
					WithComponent(spec.Name).
					WithDirective(d.Describe())
			}
			if d.To == spec.Name {
				return core.NewConfigurationError(core.ErrCodeMalformedManifest,
					fmt.Sprintf("component %q binds to itself", spec.Name), nil).
					WithComponent(spec.Name).
					WithDirective(d.Describe())
			}
		}
	}
	return nil
}
