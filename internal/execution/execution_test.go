package execution

import (
	"context"
	"testing"
	"time"
)

func TestNewSeedsAllStepsPending(t *testing.T) {
	e := New("e1", "w1", "sequential", nil, []string{"a", "b"})
	if e.Status() != ExecPending {
		t.Fatalf("status = %v, want PENDING", e.Status())
	}
	for _, id := range []string{"a", "b"} {
		if sr := e.StepRuntime(id); sr.Status != StepPending {
			t.Errorf("step %s = %v, want PENDING", id, sr.Status)
		}
	}
}

func TestUpdateStepTracksCompletedAndFailed(t *testing.T) {
	e := New("e1", "w1", "sequential", nil, []string{"a", "b"})
	e.UpdateStep("a", StepCompleted, "out-a", "", 0)
	e.UpdateStep("b", StepFailed, nil, "boom", 1)

	if got := e.CompletedSteps(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("completed = %v", got)
	}
	if got := e.FailedSteps(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("failed = %v", got)
	}
	if e.StepOutputs()["a"] != "out-a" {
		t.Fatalf("step output not captured")
	}
}

func TestProgressIsMonotonicNonDecreasing(t *testing.T) {
	e := New("e1", "w1", "sequential", nil, nil)
	e.SetProgress(50)
	e.SetProgress(10)
	if e.Progress() != 50 {
		t.Fatalf("progress regressed to %v, want clamped at 50", e.Progress())
	}
}

func TestControllerPauseResume(t *testing.T) {
	e := New("e1", "w1", "sequential", nil, nil)
	c := NewController(context.Background(), e, 0)
	c.Start()

	if !c.Pause() {
		t.Fatal("expected pause to succeed from RUNNING")
	}
	if e.Status() != ExecPaused {
		t.Fatalf("status = %v, want PAUSED", e.Status())
	}
	if c.Pause() {
		t.Fatal("expected second pause to be refused")
	}
	if !c.Resume() {
		t.Fatal("expected resume to succeed from PAUSED")
	}
	if e.Status() != ExecRunning {
		t.Fatalf("status = %v, want RUNNING", e.Status())
	}
}

func TestControllerCancelPropagatesContext(t *testing.T) {
	e := New("e1", "w1", "sequential", nil, nil)
	c := NewController(context.Background(), e, 0)
	c.Start()
	c.Cancel()

	if e.Status() != ExecCancelled {
		t.Fatalf("status = %v, want CANCELLED", e.Status())
	}
	select {
	case <-c.Context().Done():
	default:
		t.Fatal("expected context to be cancelled")
	}
}

func TestControllerWallClockTimeout(t *testing.T) {
	e := New("e1", "w1", "sequential", nil, nil)
	c := NewController(context.Background(), e, 20*time.Millisecond)
	c.Start()

	deadline := time.After(500 * time.Millisecond)
	for e.Status() == ExecRunning {
		select {
		case <-deadline:
			t.Fatal("timeout watcher never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if e.Status() != ExecTimeout {
		t.Fatalf("status = %v, want TIMEOUT", e.Status())
	}
}
