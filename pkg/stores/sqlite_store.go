package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/openloom/openloom/pkg/core"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrReportNotFound is returned when no report exists for a run ID.
var ErrReportNotFound = errors.New("report not found")

// Store is the persistence interface: lifecycle management plus the
// report operations the orchestrator and CLI consume.
type Store interface {
	core.ReportStore

	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	DeleteReport(ctx context.Context, runID string) error
	PruneReports(ctx context.Context, olderThan time.Time) (int64, error)
	HealthCheck(ctx context.Context) error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration. Zero pool values take the
// defaults.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// normalize fills unset pool fields with defaults.
func (c *Config) normalize() {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	cfg.normalize()
	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Connection-level setting, enforced explicitly.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs the embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SaveReport persists a completed synthesis result.
func (s *SQLiteStore) SaveReport(ctx context.Context, result *core.SynthesisResult) error {
	components, err := json.Marshal(result.Components)
	if err != nil {
		return fmt.Errorf("failed to marshal components: %w", err)
	}
	bindings, err := json.Marshal(result.Bindings)
	if err != nil {
		return fmt.Errorf("failed to marshal bindings: %w", err)
	}
	warnings, err := json.Marshal(result.Warnings)
	if err != nil {
		return fmt.Errorf("failed to marshal warnings: %w", err)
	}
	tags, err := json.Marshal(result.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
		INSERT INTO reports (run_id, manifest, framework, environment, phase,
			patches_applied, components, bindings, warnings, tags,
			started_at, completed_at, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		result.RunID,
		result.Manifest,
		result.Framework,
		result.Environment,
		string(result.Phase),
		result.PatchesApplied,
		string(components),
		string(bindings),
		string(warnings),
		string(tags),
		result.StartedAt.UTC(),
		result.CompletedAt.UTC(),
		int64(result.Duration),
	)
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", result.RunID, err)
	}
	return nil
}

// GetReport retrieves a report by run ID.
func (s *SQLiteStore) GetReport(ctx context.Context, runID string) (*core.SynthesisResult, error) {
	query := `
		SELECT run_id, manifest, framework, environment, phase,
			patches_applied, components, bindings, warnings, tags,
			started_at, completed_at, duration_ns
		FROM reports
		WHERE run_id = ?
	`
	result, err := scanReport(s.db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report %s: %w", runID, err)
	}
	return result, nil
}

// ListReports lists stored reports, newest first.
func (s *SQLiteStore) ListReports(ctx context.Context, limit int) ([]core.SynthesisResult, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT run_id, manifest, framework, environment, phase,
			patches_applied, components, bindings, warnings, tags,
			started_at, completed_at, duration_ns
		FROM reports
		ORDER BY started_at DESC, run_id
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []core.SynthesisResult
	for rows.Next() {
		result, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		results = append(results, *result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}
	return results, nil
}

// DeleteReport removes a report by run ID.
func (s *SQLiteStore) DeleteReport(ctx context.Context, runID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM reports WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("failed to delete report %s: %w", runID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrReportNotFound, runID)
	}
	return nil
}

// PruneReports removes reports whose run started before the cutoff and
// returns how many were deleted.
func (s *SQLiteStore) PruneReports(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM reports WHERE started_at < ?", olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune reports: %w", err)
	}
	return result.RowsAffected()
}

// HealthCheck verifies the database is reachable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*core.SynthesisResult, error) {
	var (
		result     core.SynthesisResult
		phase      string
		components string
		bindings   string
		warnings   string
		tags       string
		durationNS int64
	)
	err := row.Scan(
		&result.RunID,
		&result.Manifest,
		&result.Framework,
		&result.Environment,
		&phase,
		&result.PatchesApplied,
		&components,
		&bindings,
		&warnings,
		&tags,
		&result.StartedAt,
		&result.CompletedAt,
		&durationNS,
	)
	if err != nil {
		return nil, err
	}

	result.Phase = core.RunPhase(phase)
	result.Duration = time.Duration(durationNS)
	if err := json.Unmarshal([]byte(components), &result.Components); err != nil {
		return nil, fmt.Errorf("failed to unmarshal components: %w", err)
	}
	if err := json.Unmarshal([]byte(bindings), &result.Bindings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bindings: %w", err)
	}
	if err := json.Unmarshal([]byte(warnings), &result.Warnings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &result.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	return &result, nil
}
