package sessionstore

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendMessageSeqIsMonotonic(t *testing.T) {
	s := openTestStore(t)
	sess, err := s.Create("ctx-1", "work", "claude", false)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	var last int64
	for i := 0; i < 5; i++ {
		m, err := s.AppendMessage(sess.ID, "user", "hi")
		if err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
		if m.Seq <= last {
			t.Fatalf("expected increasing seq, got %d after %d", m.Seq, last)
		}
		last = m.Seq
	}
}

func TestLockProviderOnceRejectsSecondProvider(t *testing.T) {
	s := openTestStore(t)
	sess, _ := s.Create("ctx-1", "work", "", false)
	if err := s.LockProvider(sess.ID, "claude"); err != nil {
		t.Fatalf("LockProvider() error = %v", err)
	}
	if err := s.LockProvider(sess.ID, "opencode"); err != ErrProviderLocked {
		t.Fatalf("expected ErrProviderLocked, got %v", err)
	}
	// relocking to the same provider is a no-op, not an error
	if err := s.LockProvider(sess.ID, "claude"); err != nil {
		t.Fatalf("expected relock to same provider to succeed, got %v", err)
	}
}

func TestClearContextReportsPreDeleteCounts(t *testing.T) {
	s := openTestStore(t)
	sess, _ := s.Create("ctx-1", "work", "claude", false)
	s.AppendMessage(sess.ID, "user", "one")
	s.AppendMessage(sess.ID, "assistant", "two")
	s.AppendSummary(sess.ID, "summary text")

	report, err := s.ClearContext(sess.ID)
	if err != nil {
		t.Fatalf("ClearContext() error = %v", err)
	}
	if report.DeletedMessages != 2 || report.DeletedSummaries != 1 || report.TotalDeleted != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}

	msgs, err := s.Messages(sess.ID)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected messages cleared, got %d", len(msgs))
	}
}

func TestDropByProviderMigratesCurrentSessionPointer(t *testing.T) {
	s := openTestStore(t)
	sess, _ := s.Create("ctx-1", "work", "claude", false)
	s.AppendMessage(sess.ID, "user", "hi")
	if err := s.SetCurrentSession("ctx-1", sess.ID); err != nil {
		t.Fatalf("SetCurrentSession() error = %v", err)
	}

	report, err := s.DropByProvider("claude")
	if err != nil {
		t.Fatalf("DropByProvider() error = %v", err)
	}
	if report.DeletedSessions != 1 || report.DeletedMessages != 1 || report.FixedCurrentStateRows != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	current, err := s.CurrentSession("ctx-1")
	if err != nil {
		t.Fatalf("CurrentSession() error = %v", err)
	}
	if current != "" {
		t.Fatalf("expected current session pointer cleared, got %q", current)
	}
}

func TestResolveRefByPrefix(t *testing.T) {
	s := openTestStore(t)
	sess, _ := s.Create("ctx-1", "feature-work", "claude", false)

	got, err := s.ResolveRef("ctx-1", sess.ID[:8])
	if err != nil {
		t.Fatalf("ResolveRef() error = %v", err)
	}
	if got.ID != sess.ID {
		t.Fatalf("expected to resolve to %s, got %s", sess.ID, got.ID)
	}

	gotByName, err := s.ResolveRef("ctx-1", "feature-work")
	if err != nil {
		t.Fatalf("ResolveRef() by name error = %v", err)
	}
	if gotByName.ID != sess.ID {
		t.Fatalf("expected name resolution to match")
	}
}
