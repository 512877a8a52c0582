package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aristath/frontbuild/internal/scheduler"
)

// testStore creates an in-memory store for testing and registers cleanup.
func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func startRun(t *testing.T, store *SQLiteStore, id, command string, started time.Time) {
	t.Helper()
	if err := store.StartRun(context.Background(), &Run{ID: id, Command: command, StartedAt: started}); err != nil {
		t.Fatalf("failed to start run %s: %v", id, err)
	}
}

func TestStartAndFinishRun(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	started := time.UnixMilli(1_700_000_000_000)
	startRun(t, store, "run-1", "build", started)

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != RunRunning {
		t.Errorf("Status mismatch: got %s, want %s", run.Status, RunRunning)
	}
	if !run.StartedAt.Equal(started) {
		t.Errorf("StartedAt mismatch: got %v, want %v", run.StartedAt, started)
	}
	if !run.FinishedAt.IsZero() || run.Duration() != 0 {
		t.Errorf("running run should have no finish time, got %v", run.FinishedAt)
	}

	finished := started.Add(1500 * time.Millisecond)
	if err := store.FinishRun(ctx, "run-1", RunFailed, errors.New("styles: 1 of 2 files failed"), finished); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	run, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != RunFailed {
		t.Errorf("Status mismatch: got %s, want %s", run.Status, RunFailed)
	}
	if run.Error != "styles: 1 of 2 files failed" {
		t.Errorf("Error mismatch: got %q", run.Error)
	}
	if run.Duration() != 1500*time.Millisecond {
		t.Errorf("Duration mismatch: got %v", run.Duration())
	}
}

func TestStartRunRequiresID(t *testing.T) {
	store := testStore(t)
	if err := store.StartRun(context.Background(), &Run{Command: "build"}); err == nil {
		t.Fatal("expected error for run without ID")
	}
}

func TestStartRunDuplicateID(t *testing.T) {
	store := testStore(t)
	startRun(t, store, "dup", "build", time.Now())
	if err := store.StartRun(context.Background(), &Run{ID: "dup", Command: "build", StartedAt: time.Now()}); err == nil {
		t.Fatal("expected error for duplicate run ID")
	}
}

func TestFinishUnknownRun(t *testing.T) {
	store := testStore(t)
	err := store.FinishRun(context.Background(), "missing", RunSucceeded, nil, time.Now())
	if err == nil || !strings.Contains(err.Error(), "run not found") {
		t.Fatalf("expected run not found, got %v", err)
	}
	if _, err := store.GetRun(context.Background(), "missing"); err == nil {
		t.Fatal("expected error getting unknown run")
	}
}

func TestTaskResultsKeepOrderAndReplace(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	startRun(t, store, "run-seq", "build-clean", time.Now())

	first := TaskResultsFrom([]*scheduler.Task{
		{Name: "clean", Status: scheduler.TaskCompleted, Duration: 12 * time.Millisecond},
	})
	second := TaskResultsFrom([]*scheduler.Task{
		{Name: "scripts", Status: scheduler.TaskCompleted, Duration: 40 * time.Millisecond},
		{Name: "styles", Status: scheduler.TaskFailed, Error: errors.New("bad.scss:1: expected ;"), Duration: 30 * time.Millisecond},
		{Name: "build", Status: scheduler.TaskSkipped},
	})
	if err := store.SaveTaskResults(ctx, "run-seq", first); err != nil {
		t.Fatalf("failed to save first results: %v", err)
	}
	if err := store.SaveTaskResults(ctx, "run-seq", second); err != nil {
		t.Fatalf("failed to save second results: %v", err)
	}
	// Saving again replaces rather than duplicates.
	if err := store.SaveTaskResults(ctx, "run-seq", first); err != nil {
		t.Fatalf("failed to re-save results: %v", err)
	}

	run, err := store.GetRun(ctx, "run-seq")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	var names []string
	for _, r := range run.Tasks {
		names = append(names, r.Task)
	}
	if strings.Join(names, ",") != "clean,scripts,styles,build" {
		t.Fatalf("task order mismatch: got %v", names)
	}
	styles := run.Tasks[2]
	if styles.Status != scheduler.TaskFailed {
		t.Errorf("styles status: got %v, want failed", styles.Status)
	}
	if styles.Error != "bad.scss:1: expected ;" {
		t.Errorf("styles error: got %q", styles.Error)
	}
	if styles.Duration != 30*time.Millisecond {
		t.Errorf("styles duration: got %v", styles.Duration)
	}
	if run.Tasks[3].Status != scheduler.TaskSkipped {
		t.Errorf("build status: got %v, want skipped", run.Tasks[3].Status)
	}
}

func TestForeignKeyEnforced(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	err := store.SaveTaskResults(ctx, "no-such-run", []TaskResult{{Task: "clean"}})
	if err == nil {
		t.Fatal("expected error when saving results for a non-existent run, got nil")
	}
	err = store.SaveFileFailures(ctx, "no-such-run", []FileFailure{{Pipeline: "styles", Path: "a.scss", Error: "x"}})
	if err == nil {
		t.Fatal("expected error when saving failures for a non-existent run, got nil")
	}
}

func TestFileFailures(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	startRun(t, store, "run-f", "build", time.Now())

	failures := []FileFailure{
		{Pipeline: "styles", Path: "/p/src/bad.scss", Stage: "sass", Error: "expected \";\""},
		{Pipeline: "scripts", Path: "/p/src/b.ts", Stage: "typecheck", Error: "TS2322"},
	}
	if err := store.SaveFileFailures(ctx, "run-f", failures); err != nil {
		t.Fatalf("failed to save failures: %v", err)
	}
	if err := store.SaveFileFailures(ctx, "run-f", nil); err != nil {
		t.Fatalf("saving no failures should be a no-op: %v", err)
	}

	run, err := store.GetRun(ctx, "run-f")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if len(run.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(run.Failures))
	}
	for i, f := range failures {
		if run.Failures[i] != f {
			t.Errorf("failure %d mismatch: got %+v, want %+v", i, run.Failures[i], f)
		}
	}
}

func TestListRuns(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := time.UnixMilli(1_700_000_000_000)
	startRun(t, store, "old", "clean", base)
	startRun(t, store, "mid", "build", base.Add(time.Minute))
	startRun(t, store, "new", "build-clean", base.Add(2*time.Minute))

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Fatalf("expected [new mid], got %v", runIDs(runs))
	}

	all, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 runs, got %d", len(all))
	}
}

func TestMemoryStoresAreIsolated(t *testing.T) {
	a := testStore(t)
	b := testStore(t)
	startRun(t, a, "only-in-a", "build", time.Now())

	runs, err := b.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected empty store, got %v", runIDs(runs))
	}
}

func TestSQLiteStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	store, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	startRun(t, store, "persisted", "build", time.Now())
	store.Close()

	reopened, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.GetRun(ctx, "persisted"); err != nil {
		t.Errorf("run did not survive reopen: %v", err)
	}
}

func runIDs(runs []*Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}
