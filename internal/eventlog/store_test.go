package eventlog

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "events.db"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendIsIdempotentUnderSameKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e1, appended1, err := s.Append(ctx, "ctx-1", "tool.dispatched", map[string]any{"tool": "shell.exec"}, "idem-1")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if !appended1 {
		t.Fatalf("expected first append to be new")
	}

	e2, appended2, err := s.Append(ctx, "ctx-1", "tool.dispatched", map[string]any{"tool": "shell.exec"}, "idem-1")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if appended2 {
		t.Fatalf("expected retried append under same idempotency key to be rejected")
	}
	if e1.ID != e2.ID || e1.Seq != e2.Seq {
		t.Fatalf("expected identical event returned, got %+v vs %+v", e1, e2)
	}
}

func TestAppendSeqIsMonotonicPerContext(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		e, _, err := s.Append(ctx, "ctx-a", "task.started", nil, "")
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if e.Seq <= last {
			t.Fatalf("expected strictly increasing seq, got %d after %d", e.Seq, last)
		}
		last = e.Seq
	}

	// a second context root has its own independent sequence
	e, _, err := s.Append(ctx, "ctx-b", "task.started", nil, "")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if e.Seq != 1 {
		t.Fatalf("expected fresh context root to start at seq 1, got %d", e.Seq)
	}
}

func TestVerifyChainDetectsIntactChain(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, _, err := s.Append(ctx, "ctx-1", "task.started", map[string]any{"n": i}, ""); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := s.VerifyChain("ctx-1"); err != nil {
		t.Fatalf("VerifyChain() error = %v", err)
	}
}

func TestByRunFiltersCorrectly(t *testing.T) {
	s := openTestStore(t)
	ctx1 := AddRunID(context.Background(), "run-1")
	ctx2 := AddRunID(context.Background(), "run-2")

	if _, _, err := s.Append(ctx1, "ctx-1", "task.started", nil, ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, _, err := s.Append(ctx2, "ctx-1", "task.started", nil, ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	events, err := s.ByRun("ctx-1", "run-1")
	if err != nil {
		t.Fatalf("ByRun() error = %v", err)
	}
	if len(events) != 1 || events[0].RunID != "run-1" {
		t.Fatalf("expected exactly one run-1 event, got %+v", events)
	}
}
