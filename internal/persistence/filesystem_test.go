package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/workforge/flowengine/internal/execution"
)

func TestFilesystemStoreSaveAndLoadAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	store := NewFilesystemStore(dir, zap.NewNop())

	exec := execution.New("e1", "w1", "sequential", map[string]interface{}{"k": "v"}, []string{"s1"})
	exec.SetStatus(execution.ExecRunning)
	exec.UpdateStep("s1", execution.StepCompleted, "out", "", 0)

	if err := store.Save(context.Background(), exec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].ExecutionID != "e1" || records[0].Status != string(execution.ExecRunning) {
		t.Fatalf("unexpected record: %+v", records[0])
	}
	if !records[0].Reinstated() {
		t.Fatal("expected RUNNING record to be reinstated")
	}
}

func TestFilesystemStoreMissingDirectoryIsNotAnError(t *testing.T) {
	store := NewFilesystemStore(filepath.Join(t.TempDir(), "does-not-exist"), zap.NewNop())
	records, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records != nil {
		t.Fatalf("records = %v, want nil", records)
	}
}

func TestFilesystemStoreDeleteRemovesFile(t *testing.T) {
	dir := t.TempDir()
	store := NewFilesystemStore(dir, zap.NewNop())
	exec := execution.New("e2", "w1", "sequential", nil, nil)

	if err := store.Save(context.Background(), exec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Delete(context.Background(), "e2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	records, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %d, want 0 after delete", len(records))
	}
}
