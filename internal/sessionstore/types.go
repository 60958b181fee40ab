// Package sessionstore persists sessions, their message history, summaries,
// and per-context current-session pointer state.
package sessionstore

import "time"

type Session struct {
	ID          string
	ContextRoot string
	Name        string
	ProviderID  string
	Ephemeral   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	SavedAt     time.Time
}

type Message struct {
	ID        string
	SessionID string
	Seq       int64
	Role      string
	Content   string
	CreatedAt time.Time
}

type Summary struct {
	ID        string
	SessionID string
	Seq       int64
	Text      string
	CreatedAt time.Time
}

// MigrationReport describes the effect of dropping every session for a
// provider, matching the original implementation's report shape.
type MigrationReport struct {
	DeletedSessions        int
	DeletedMessages        int
	DeletedSummaries       int
	FixedCurrentStateRows  int
}

// ContextCounts is returned before a destructive clear so the caller can
// report how much was removed — counts reflect state *before* deletion.
type ContextCounts struct {
	Messages  int
	Summaries int
}

// ClearReport is the result of clearing a session's context.
type ClearReport struct {
	DeletedMessages  int
	DeletedSummaries int
	TotalDeleted     int
}
