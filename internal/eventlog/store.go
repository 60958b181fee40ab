package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is the hash-chained, append-only event log for one context root.
// Appends are serialized by mu; reads take fresh snapshots and never block
// on writers for longer than a single query.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the event log database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("eventlog: open db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: apply schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS events (
	seq INTEGER NOT NULL,
	context_root TEXT NOT NULL,
	id TEXT NOT NULL,
	session_id TEXT,
	run_id TEXT,
	type TEXT NOT NULL,
	timestamp_ns INTEGER NOT NULL,
	idempotency_key TEXT,
	data TEXT,
	prev_hash TEXT NOT NULL,
	hash TEXT NOT NULL,
	PRIMARY KEY (context_root, seq)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_idem
	ON events(context_root, idempotency_key) WHERE idempotency_key IS NOT NULL AND idempotency_key != '';
CREATE INDEX IF NOT EXISTS idx_events_session ON events(context_root, session_id);
CREATE INDEX IF NOT EXISTS idx_events_run ON events(context_root, run_id);
`

func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes a new event for contextRoot. If idempotencyKey is non-empty
// and an event with that key already exists for this context root, Append
// returns the existing event unchanged and appended=false — it does not re-append
// or re-hash. This is the idempotent-append invariant from the testable
// properties: retried writes under the same key never duplicate or mutate
// history.
func (s *Store) Append(ctx context.Context, contextRoot, eventType string, data map[string]any, idempotencyKey string) (ev Event, appended bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idempotencyKey != "" {
		if existing, found, ferr := s.lookupByIdemKey(contextRoot, idempotencyKey); ferr != nil {
			return Event{}, false, ferr
		} else if found {
			return existing, false, nil
		}
	}

	prevHash, seq, err := s.tail(contextRoot)
	if err != nil {
		return Event{}, false, err
	}

	e := Event{
		ID:             uuid.NewString(),
		Seq:            seq + 1,
		ContextRoot:    contextRoot,
		SessionID:      GetSessionID(ctx),
		RunID:          GetRunID(ctx),
		Type:           eventType,
		Timestamp:      time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
		Data:           data,
		PrevHash:       prevHash,
	}
	hash, err := ComputeHash(e)
	if err != nil {
		return Event{}, false, fmt.Errorf("eventlog: compute hash: %w", err)
	}
	e.Hash = hash

	dataJSON, err := json.Marshal(e.Data)
	if err != nil {
		return Event{}, false, fmt.Errorf("eventlog: marshal data: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO events (seq, context_root, id, session_id, run_id, type, timestamp_ns, idempotency_key, data, prev_hash, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Seq, e.ContextRoot, e.ID, nullIfEmpty(e.SessionID), nullIfEmpty(e.RunID), e.Type,
		e.Timestamp.UnixNano(), nullIfEmpty(e.IdempotencyKey), string(dataJSON), e.PrevHash, e.Hash,
	)
	if err != nil {
		return Event{}, false, fmt.Errorf("eventlog: insert: %w", err)
	}

	s.logger.Debug("eventlog.append", "context_root", contextRoot, "seq", e.Seq, "type", e.Type)
	return e, true, nil
}

func (s *Store) tail(contextRoot string) (prevHash string, seq int64, err error) {
	row := s.db.QueryRow(`SELECT hash, seq FROM events WHERE context_root = ? ORDER BY seq DESC LIMIT 1`, contextRoot)
	err = row.Scan(&prevHash, &seq)
	if err == sql.ErrNoRows {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("eventlog: read tail: %w", err)
	}
	return prevHash, seq, nil
}

func (s *Store) lookupByIdemKey(contextRoot, key string) (Event, bool, error) {
	row := s.db.QueryRow(
		`SELECT seq, id, session_id, run_id, type, timestamp_ns, idempotency_key, data, prev_hash, hash
		 FROM events WHERE context_root = ? AND idempotency_key = ?`, contextRoot, key)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, err
	}
	e.ContextRoot = contextRoot
	return e, true, nil
}

// ByRun returns all events for contextRoot+runID in sequence order.
func (s *Store) ByRun(contextRoot, runID string) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT seq, id, session_id, run_id, type, timestamp_ns, idempotency_key, data, prev_hash, hash
		 FROM events WHERE context_root = ? AND run_id = ? ORDER BY seq ASC`, contextRoot, runID)
	if err != nil {
		return nil, fmt.Errorf("eventlog: query by run: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows, contextRoot)
}

// BySession returns all events for contextRoot+sessionID in sequence order.
func (s *Store) BySession(contextRoot, sessionID string) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT seq, id, session_id, run_id, type, timestamp_ns, idempotency_key, data, prev_hash, hash
		 FROM events WHERE context_root = ? AND session_id = ? ORDER BY seq ASC`, contextRoot, sessionID)
	if err != nil {
		return nil, fmt.Errorf("eventlog: query by session: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows, contextRoot)
}

// VerifyChain walks the full event sequence for contextRoot and confirms
// every event's PrevHash matches the prior event's Hash and every event's
// stored Hash matches a recomputation. Used by `perlica doctor`.
func (s *Store) VerifyChain(contextRoot string) error {
	rows, err := s.db.Query(
		`SELECT seq, id, session_id, run_id, type, timestamp_ns, idempotency_key, data, prev_hash, hash
		 FROM events WHERE context_root = ? ORDER BY seq ASC`, contextRoot)
	if err != nil {
		return fmt.Errorf("eventlog: query for verify: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows, contextRoot)
	if err != nil {
		return err
	}
	prevHash := ""
	for _, e := range events {
		if e.PrevHash != prevHash {
			return fmt.Errorf("eventlog: chain broken at seq %d: prev_hash mismatch", e.Seq)
		}
		want, err := ComputeHash(e)
		if err != nil {
			return err
		}
		if want != e.Hash {
			return fmt.Errorf("eventlog: chain broken at seq %d: hash mismatch", e.Seq)
		}
		prevHash = e.Hash
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var e Event
	var sessionID, runID, idemKey sql.NullString
	var dataJSON string
	var tsNanos int64
	if err := row.Scan(&e.Seq, &e.ID, &sessionID, &runID, &e.Type, &tsNanos, &idemKey, &dataJSON, &e.PrevHash, &e.Hash); err != nil {
		return Event{}, err
	}
	e.SessionID = sessionID.String
	e.RunID = runID.String
	e.IdempotencyKey = idemKey.String
	e.Timestamp = time.Unix(0, tsNanos).UTC()
	if dataJSON != "" && dataJSON != "null" {
		if err := json.Unmarshal([]byte(dataJSON), &e.Data); err != nil {
			return Event{}, fmt.Errorf("eventlog: unmarshal data: %w", err)
		}
	}
	return e, nil
}

func scanEvents(rows *sql.Rows, contextRoot string) ([]Event, error) {
	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		e.ContextRoot = contextRoot
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
