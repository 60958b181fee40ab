package sessionstore

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound       = errors.New("sessionstore: session not found")
	ErrProviderLocked = errors.New("sessionstore: session already locked to a different provider")
	ErrAmbiguousRef   = errors.New("sessionstore: session reference is ambiguous")
)

// Store persists the session data model in SQLite. Mutations are serialized
// through mu; the monotonic per-session Seq on messages/summaries is
// maintained under the same lock.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionstore: schema: %w", err)
	}
	return &Store{db: db}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	context_root TEXT NOT NULL,
	name TEXT,
	provider_id TEXT,
	ephemeral INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	saved_at INTEGER
);
CREATE TABLE IF NOT EXISTS session_messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON session_messages(session_id, seq);
CREATE TABLE IF NOT EXISTS session_summaries (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	text TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_summaries_session ON session_summaries(session_id, seq);
CREATE TABLE IF NOT EXISTS session_state (
	context_root TEXT PRIMARY KEY,
	current_session_id TEXT
);
`

func (s *Store) Close() error { return s.db.Close() }

// Create inserts a new session, optionally locking it to providerID.
func (s *Store) Create(contextRoot, name, providerID string, ephemeral bool) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	sess := Session{
		ID: uuid.NewString(), ContextRoot: contextRoot, Name: name,
		ProviderID: providerID, Ephemeral: ephemeral, CreatedAt: now, UpdatedAt: now,
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, context_root, name, provider_id, ephemeral, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ContextRoot, sess.Name, sess.ProviderID, boolToInt(sess.Ephemeral), now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return Session{}, fmt.Errorf("sessionstore: create: %w", err)
	}
	return sess, nil
}

// LockProvider sets a session's provider id the first time it generates with
// one; subsequent attempts to lock to a *different* provider fail with
// ErrProviderLocked (the lock-once semantic).
func (s *Store) LockProvider(sessionID, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var existing sql.NullString
	if err := s.db.QueryRow(`SELECT provider_id FROM sessions WHERE id = ?`, sessionID).Scan(&existing); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("sessionstore: lookup for lock: %w", err)
	}
	if existing.Valid && existing.String != "" && existing.String != providerID {
		return ErrProviderLocked
	}
	_, err := s.db.Exec(`UPDATE sessions SET provider_id = ?, updated_at = ? WHERE id = ?`, providerID, time.Now().UTC().UnixNano(), sessionID)
	return err
}

func (s *Store) Get(sessionID string) (Session, error) {
	row := s.db.QueryRow(`SELECT id, context_root, name, provider_id, ephemeral, created_at, updated_at, saved_at FROM sessions WHERE id = ?`, sessionID)
	return scanSession(row)
}

// ResolveRef resolves a session reference by exact id, exact name, or
// unambiguous id/name prefix, within contextRoot.
func (s *Store) ResolveRef(contextRoot, ref string) (Session, error) {
	if sess, err := s.Get(ref); err == nil && sess.ContextRoot == contextRoot {
		return sess, nil
	}

	rows, err := s.db.Query(`SELECT id, context_root, name, provider_id, ephemeral, created_at, updated_at, saved_at FROM sessions WHERE context_root = ?`, contextRoot)
	if err != nil {
		return Session{}, fmt.Errorf("sessionstore: resolve ref: %w", err)
	}
	defer rows.Close()

	var exactName, prefixMatches []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return Session{}, err
		}
		if sess.Name == ref {
			exactName = append(exactName, sess)
		}
		if strings.HasPrefix(sess.ID, ref) || strings.HasPrefix(sess.Name, ref) {
			prefixMatches = append(prefixMatches, sess)
		}
	}
	if len(exactName) == 1 {
		return exactName[0], nil
	}
	if len(prefixMatches) == 1 {
		return prefixMatches[0], nil
	}
	if len(prefixMatches) > 1 || len(exactName) > 1 {
		return Session{}, ErrAmbiguousRef
	}
	return Session{}, ErrNotFound
}

func (s *Store) List(contextRoot string) ([]Session, error) {
	rows, err := s.db.Query(`SELECT id, context_root, name, provider_id, ephemeral, created_at, updated_at, saved_at FROM sessions WHERE context_root = ? ORDER BY updated_at DESC`, contextRoot)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: list: %w", err)
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// AppendMessage appends a message with a seq one greater than the session's
// current max. All appends are serialized through the store's single lock,
// so appends to the same session are strictly ordered.
func (s *Store) AppendMessage(sessionID, role, content string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, err := s.nextSeq(`session_messages`, sessionID)
	if err != nil {
		return Message{}, err
	}
	m := Message{ID: uuid.NewString(), SessionID: sessionID, Seq: seq, Role: role, Content: content, CreatedAt: time.Now().UTC()}
	_, err = s.db.Exec(`INSERT INTO session_messages (id, session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.Seq, m.Role, m.Content, m.CreatedAt.UnixNano())
	if err != nil {
		return Message{}, fmt.Errorf("sessionstore: append message: %w", err)
	}
	return m, nil
}

func (s *Store) AppendSummary(sessionID, text string) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, err := s.nextSeq(`session_summaries`, sessionID)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{ID: uuid.NewString(), SessionID: sessionID, Seq: seq, Text: text, CreatedAt: time.Now().UTC()}
	_, err = s.db.Exec(`INSERT INTO session_summaries (id, session_id, seq, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		sum.ID, sum.SessionID, sum.Seq, sum.Text, sum.CreatedAt.UnixNano())
	if err != nil {
		return Summary{}, fmt.Errorf("sessionstore: append summary: %w", err)
	}
	return sum, nil
}

func (s *Store) nextSeq(table, sessionID string) (int64, error) {
	var max sql.NullInt64
	if err := s.db.QueryRow(fmt.Sprintf(`SELECT MAX(seq) FROM %s WHERE session_id = ?`, table), sessionID).Scan(&max); err != nil {
		return 0, fmt.Errorf("sessionstore: next seq: %w", err)
	}
	return max.Int64 + 1, nil
}

func (s *Store) Messages(sessionID string) ([]Message, error) {
	rows, err := s.db.Query(`SELECT id, session_id, seq, role, content, created_at FROM session_messages WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: messages: %w", err)
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var m Message
		var createdNs int64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Seq, &m.Role, &m.Content, &createdNs); err != nil {
			return nil, err
		}
		m.CreatedAt = time.Unix(0, createdNs).UTC()
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *Store) Summaries(sessionID string) ([]Summary, error) {
	rows, err := s.db.Query(`SELECT id, session_id, seq, text, created_at FROM session_summaries WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: summaries: %w", err)
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var sum Summary
		var createdNs int64
		if err := rows.Scan(&sum.ID, &sum.SessionID, &sum.Seq, &sum.Text, &createdNs); err != nil {
			return nil, err
		}
		sum.CreatedAt = time.Unix(0, createdNs).UTC()
		out = append(out, sum)
	}
	return out, nil
}

// GetContextCounts returns message/summary counts before any destructive
// clear — ClearContext reports these pre-delete counts, not post-delete.
func (s *Store) GetContextCounts(sessionID string) (ContextCounts, error) {
	var c ContextCounts
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM session_messages WHERE session_id = ?`, sessionID).Scan(&c.Messages); err != nil {
		return ContextCounts{}, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM session_summaries WHERE session_id = ?`, sessionID).Scan(&c.Summaries); err != nil {
		return ContextCounts{}, err
	}
	return c, nil
}

// ClearContext deletes all messages and summaries for sessionID but keeps
// the session row itself (distinct from discarding the whole session).
func (s *Store) ClearContext(sessionID string) (ClearReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts, err := s.GetContextCounts(sessionID)
	if err != nil {
		return ClearReport{}, err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return ClearReport{}, err
	}
	if _, err := tx.Exec(`DELETE FROM session_messages WHERE session_id = ?`, sessionID); err != nil {
		tx.Rollback()
		return ClearReport{}, err
	}
	if _, err := tx.Exec(`DELETE FROM session_summaries WHERE session_id = ?`, sessionID); err != nil {
		tx.Rollback()
		return ClearReport{}, err
	}
	if err := tx.Commit(); err != nil {
		return ClearReport{}, err
	}
	return ClearReport{
		DeletedMessages:  counts.Messages,
		DeletedSummaries: counts.Summaries,
		TotalDeleted:     counts.Messages + counts.Summaries,
	}, nil
}

// Discard deletes a session entirely, including its messages/summaries, and
// clears any current-session pointer referring to it.
func (s *Store) Discard(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, stmt := range []string{
		`DELETE FROM session_messages WHERE session_id = ?`,
		`DELETE FROM session_summaries WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err := tx.Exec(stmt, sessionID); err != nil {
			tx.Rollback()
			return err
		}
	}
	if _, err := tx.Exec(`UPDATE session_state SET current_session_id = NULL WHERE current_session_id = ?`, sessionID); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Save promotes a session out of ephemeral status, optionally renaming it,
// and records the save time. Saved sessions are exempt from ephemeral
// eviction.
func (s *Store) Save(sessionID, name string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := scanSession(s.db.QueryRow(`SELECT id, context_root, name, provider_id, ephemeral, created_at, updated_at, saved_at FROM sessions WHERE id = ?`, sessionID))
	if err != nil {
		return Session{}, err
	}
	if name != "" {
		sess.Name = name
	}
	now := time.Now().UTC()
	sess.Ephemeral = false
	sess.SavedAt = now
	sess.UpdatedAt = now
	if _, err := s.db.Exec(
		`UPDATE sessions SET name = ?, ephemeral = 0, saved_at = ?, updated_at = ? WHERE id = ?`,
		sess.Name, now.UnixNano(), now.UnixNano(), sessionID,
	); err != nil {
		return Session{}, fmt.Errorf("sessionstore: save: %w", err)
	}
	return sess, nil
}

func (s *Store) SetCurrentSession(contextRoot, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO session_state (context_root, current_session_id) VALUES (?, ?)
		ON CONFLICT(context_root) DO UPDATE SET current_session_id = excluded.current_session_id`, contextRoot, sessionID)
	return err
}

func (s *Store) CurrentSession(contextRoot string) (string, error) {
	var id sql.NullString
	err := s.db.QueryRow(`SELECT current_session_id FROM session_state WHERE context_root = ?`, contextRoot).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id.String, nil
}

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var s Session
	var name, providerID sql.NullString
	var ephemeral int
	var createdNs, updatedNs int64
	var savedNs sql.NullInt64
	if err := row.Scan(&s.ID, &s.ContextRoot, &name, &providerID, &ephemeral, &createdNs, &updatedNs, &savedNs); err != nil {
		if err == sql.ErrNoRows {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	s.Name = name.String
	s.ProviderID = providerID.String
	s.Ephemeral = ephemeral != 0
	s.CreatedAt = time.Unix(0, createdNs).UTC()
	s.UpdatedAt = time.Unix(0, updatedNs).UTC()
	if savedNs.Valid {
		s.SavedAt = time.Unix(0, savedNs.Int64).UTC()
	}
	return s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
