package stores

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/openloom/openloom/pkg/core"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "loom.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return store
}

func sampleReport(runID string, started time.Time) *core.SynthesisResult {
	return &core.SynthesisResult{
		RunID:       runID,
		Manifest:    "demo-stack",
		Framework:   "baseline",
		Environment: "dev",
		Phase:       core.PhaseAssembled,
		Components: []core.ComponentReport{
			{Name: "data", Type: "storage.bucket", Capabilities: []string{"storage:meta", "storage:read", "storage:write"}},
			{Name: "api", Type: "compute.service", Capabilities: []string{"http:endpoint"}},
		},
		Bindings: []core.BindingResult{
			{
				Source:     "api",
				Target:     "data",
				Capability: "storage:write",
				Access:     core.AccessReadWrite,
				Strategy:   "storage-access",
				Outcome:    core.OutcomeApplied,
			},
		},
		PatchesApplied: true,
		Warnings:       []string{"governance: no-public-access: component data enables public access (component data)"},
		StartedAt:      started,
		CompletedAt:    started.Add(420 * time.Millisecond),
		Duration:       420 * time.Millisecond,
		Tags:           map[string]string{"team": "platform"},
	}
}

func TestStoreLifecycle(t *testing.T) {
	store := setupTestStore(t)

	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("health check failed: %v", err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Migrate(context.Background()); err != nil {
		t.Errorf("second migrate failed: %v", err)
	}
}

func TestSaveAndGetReport(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	want := sampleReport("run-1", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC))
	if err := store.SaveReport(ctx, want); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}

	got, err := store.GetReport(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}

	if got.RunID != want.RunID || got.Manifest != want.Manifest {
		t.Errorf("identity mismatch: got %s/%s", got.RunID, got.Manifest)
	}
	if got.Phase != core.PhaseAssembled {
		t.Errorf("expected phase assembled, got %s", got.Phase)
	}
	if !got.PatchesApplied {
		t.Error("expected patches_applied to round-trip")
	}
	if got.Duration != want.Duration {
		t.Errorf("expected duration %v, got %v", want.Duration, got.Duration)
	}
	if len(got.Components) != 2 || got.Components[0].Name != "data" {
		t.Errorf("unexpected components: %+v", got.Components)
	}
	if len(got.Bindings) != 1 || got.Bindings[0].Strategy != "storage-access" {
		t.Errorf("unexpected bindings: %+v", got.Bindings)
	}
	if len(got.Warnings) != 1 {
		t.Errorf("unexpected warnings: %v", got.Warnings)
	}
	if got.Tags["team"] != "platform" {
		t.Errorf("unexpected tags: %v", got.Tags)
	}
	if !got.StartedAt.Equal(want.StartedAt) {
		t.Errorf("expected started_at %v, got %v", want.StartedAt, got.StartedAt)
	}
}

func TestGetReportNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetReport(context.Background(), "no-such-run")
	if !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}
}

func TestSaveReportRejectsDuplicateRunID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	report := sampleReport("run-1", time.Now().UTC())
	if err := store.SaveReport(ctx, report); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := store.SaveReport(ctx, report); err == nil {
		t.Error("expected an error for a duplicate run ID")
	}
}

func TestListReportsNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		report := sampleReport(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))
		if err := store.SaveReport(ctx, report); err != nil {
			t.Fatalf("SaveReport %d failed: %v", i, err)
		}
	}

	reports, err := store.ListReports(ctx, 3)
	if err != nil {
		t.Fatalf("ListReports failed: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}
	for i, want := range []string{"run-4", "run-3", "run-2"} {
		if reports[i].RunID != want {
			t.Errorf("report %d: expected %s, got %s", i, want, reports[i].RunID)
		}
	}
}

func TestListReportsDefaultLimit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.SaveReport(ctx, sampleReport("run-1", time.Now().UTC())); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}

	reports, err := store.ListReports(ctx, 0)
	if err != nil {
		t.Fatalf("ListReports failed: %v", err)
	}
	if len(reports) != 1 {
		t.Errorf("expected 1 report, got %d", len(reports))
	}
}

func TestDeleteReport(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.SaveReport(ctx, sampleReport("run-1", time.Now().UTC())); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	if err := store.DeleteReport(ctx, "run-1"); err != nil {
		t.Fatalf("DeleteReport failed: %v", err)
	}
	if _, err := store.GetReport(ctx, "run-1"); !errors.Is(err, ErrReportNotFound) {
		t.Errorf("expected the report to be gone, got %v", err)
	}
	if err := store.DeleteReport(ctx, "run-1"); !errors.Is(err, ErrReportNotFound) {
		t.Errorf("expected ErrReportNotFound for a second delete, got %v", err)
	}
}

func TestPruneReports(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		report := sampleReport(fmt.Sprintf("run-%d", i), base.AddDate(0, 0, i))
		if err := store.SaveReport(ctx, report); err != nil {
			t.Fatalf("SaveReport %d failed: %v", i, err)
		}
	}

	pruned, err := store.PruneReports(ctx, base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("PruneReports failed: %v", err)
	}
	if pruned != 2 {
		t.Errorf("expected 2 pruned reports, got %d", pruned)
	}

	remaining, err := store.ListReports(ctx, 10)
	if err != nil {
		t.Fatalf("ListReports failed: %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("expected 2 remaining reports, got %d", len(remaining))
	}
}

func TestFailedRunReportRoundTrips(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	report := sampleReport("run-failed", time.Now().UTC())
	report.Phase = core.PhaseFailed
	report.Bindings = nil
	report.PatchesApplied = false

	if err := store.SaveReport(ctx, report); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	got, err := store.GetReport(ctx, "run-failed")
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if got.Phase != core.PhaseFailed {
		t.Errorf("expected failed phase, got %s", got.Phase)
	}
	if len(got.Bindings) != 0 {
		t.Errorf("expected no bindings, got %+v", got.Bindings)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected an error for an empty path")
	}
}

func TestNewSQLiteStoreNormalizesPool(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "loom.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if store.cfg.MaxOpenConns != 25 || store.cfg.MaxIdleConns != 5 || store.cfg.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("zero pool fields should take defaults, got %+v", store.cfg)
	}

	store, err = NewSQLiteStore(Config{
		Path:            filepath.Join(t.TempDir(), "loom.db"),
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if store.cfg.MaxOpenConns != 2 || store.cfg.MaxIdleConns != 1 || store.cfg.ConnMaxLifetime != time.Minute {
		t.Errorf("explicit pool fields should be kept, got %+v", store.cfg)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init with explicit pool settings failed: %v", err)
	}
	defer func() { _ = store.Close() }()
	if got := store.db.Stats().MaxOpenConnections; got != 2 {
		t.Errorf("expected MaxOpenConnections=2 on the pool, got %d", got)
	}
}
