// Package obslog implements Perlica's rotating, redacted debug-log JSONL
// sink described in spec.md §6: one line per entry, fields
// {ts_ms, level, component, kind, context_id, event_type?, run_id?,
// trace_id?, message, data?}, rotated by file size and file count.
package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/perlica/perlica/internal/config"
)

// Entry is one debug-log record. TsMs is stamped by the caller (obslog does
// not call time.Now() itself so the package stays deterministic to test).
type Entry struct {
	TsMs      int64
	Level     string
	Component string
	Kind      string
	ContextID string
	EventType string
	RunID     string
	TraceID   string
	Message   string
	Data      map[string]any
}

// Sink writes Entry values as redacted JSONL to a rotating file. A disabled
// sink (cfg.Enabled == false) discards every entry at near-zero cost.
type Sink struct {
	mu      sync.Mutex
	zl      zerolog.Logger
	writer  *lumberjack.Logger
	enabled bool
	redact  *redactor
}

// NewSink opens (creating if needed) the debug log file described by cfg at
// path, applying rotation and redaction settings from cfg.
func NewSink(cfg config.LogsConfig, path string) (*Sink, error) {
	if !cfg.Enabled {
		return &Sink{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("obslog: create log dir: %w", err)
	}

	maxBytes := cfg.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = 5
	}

	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    int(maxBytes / (1024 * 1024)), // lumberjack sizes in whole MB, rounded down; raised to at least 1 below
		MaxBackups: maxFiles,
		Compress:   false,
	}
	if writer.MaxSize < 1 {
		writer.MaxSize = 1
	}

	return &Sink{
		enabled: true,
		zl:      zerolog.New(writer),
		writer:  writer,
		redact:  newRedactor(cfg.Redaction),
	}, nil
}

// Write appends one entry as a single redacted JSONL line. Safe for
// concurrent use.
func (s *Sink) Write(e Entry) {
	if s == nil || !s.enabled {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event := s.zl.Log().
		Int64("ts_ms", e.TsMs).
		Str("level", e.Level).
		Str("component", e.Component).
		Str("kind", e.Kind).
		Str("context_id", e.ContextID)

	if e.EventType != "" {
		event = event.Str("event_type", e.EventType)
	}
	if e.RunID != "" {
		event = event.Str("run_id", e.RunID)
	}
	if e.TraceID != "" {
		event = event.Str("trace_id", e.TraceID)
	}

	event = event.Str("message", s.redact.string(e.Message))
	if e.Data != nil {
		event = event.Interface("data", s.redact.mapValue(e.Data))
	}
	event.Send()
}

// Close flushes and closes the underlying rotating file.
func (s *Sink) Close() error {
	if s == nil || !s.enabled || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
