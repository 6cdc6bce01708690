package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openloom/openloom/pkg/bindings"
	"github.com/openloom/openloom/pkg/factory"
	"github.com/openloom/openloom/pkg/manifest"
	"github.com/openloom/openloom/pkg/orchestrator"
	"github.com/openloom/openloom/pkg/policy"
	"github.com/openloom/openloom/pkg/profiles"
	"github.com/openloom/openloom/pkg/providers"
	"github.com/openloom/openloom/pkg/stores"
	"github.com/openloom/openloom/pkg/telemetry"
)

// runtime is the assembled engine behind the CLI commands: every
// collaborator the orchestrator needs, wired from the global flags.
type runtime struct {
	logger    zerolog.Logger
	parser    *manifest.Parser
	profiles  *profiles.Registry
	factories *factory.Provider
	gate      *policy.Gate
	store     stores.Store
	engine    *orchestrator.Orchestrator
}

// newRuntime builds the full stack: logger, profile registry (builtins
// plus --profiles), builtin providers, binding strategies, governance
// gate (builtins plus --rules), the optional report store, and the
// orchestrator on top.
func newRuntime(ctx context.Context) (*runtime, error) {
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  logLevel,
		Format: logFormat,
		Output: "stderr",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	parser, err := manifest.NewParser(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build manifest parser: %w", err)
	}

	registry := profiles.NewRegistry(logger)
	if len(profilePaths) > 0 {
		loader := profiles.NewLoader(registry, logger)
		if _, err := loader.LoadFromPaths(profilePaths); err != nil {
			return nil, fmt.Errorf("failed to load profiles: %w", err)
		}
	}

	provider := factory.NewProvider(registry, logger)
	if err := providers.RegisterBuiltins(provider); err != nil {
		return nil, fmt.Errorf("failed to register builtin providers: %w", err)
	}

	gate, err := policy.NewGate(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build governance gate: %w", err)
	}
	if len(rulePaths) > 0 {
		if err := gate.LoadRules(rulePaths); err != nil {
			return nil, fmt.Errorf("failed to load governance rules: %w", err)
		}
	}

	var store stores.Store
	if dbPath != "" {
		sqlStore, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
		if err != nil {
			return nil, fmt.Errorf("failed to create report store: %w", err)
		}
		if err := sqlStore.Init(ctx); err != nil {
			return nil, fmt.Errorf("failed to init report store: %w", err)
		}
		if err := sqlStore.Migrate(ctx); err != nil {
			_ = sqlStore.Close()
			return nil, fmt.Errorf("failed to migrate report store: %w", err)
		}
		store = sqlStore
	}

	opts := orchestrator.Options{
		Profiles:  registry,
		Factories: provider,
		Bindings:  bindings.NewDefaultRegistry(logger),
		Gate:      gate,
		Logger:    logger,
	}
	if store != nil {
		opts.Store = store
	}

	engine, err := orchestrator.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build orchestrator: %w", err)
	}

	return &runtime{
		logger:    logger,
		parser:    parser,
		profiles:  registry,
		factories: provider,
		gate:      gate,
		store:     store,
		engine:    engine,
	}, nil
}

// Close releases the runtime's resources.
func (r *runtime) Close() error {
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}

// openStore opens the report store alone, for history commands that do
// not need the full engine.
func openStore(ctx context.Context) (stores.Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("no database configured; pass --db")
	}
	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
