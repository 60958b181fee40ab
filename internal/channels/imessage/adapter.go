//go:build darwin
// +build darwin

package imessage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/perlica/perlica/internal/channels"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// Adapter implements channels.ChannelAdapter by polling the Messages.app
// database directly; there is no push API for incoming iMessages.
type Adapter struct {
	config *Config
	logger *slog.Logger
	db     *sql.DB

	lastMessageID atomic.Int64
	pollInterval  time.Duration

	mu        sync.Mutex
	handler   channels.InboundHandler
	sink      channels.TelemetrySink
	chatScope string

	cancel context.CancelFunc
	wg     sync.WaitGroup

	healthy atomic.Bool
	detail  atomic.Value // string
}

// New creates an iMessage adapter.
func New(cfg *Config, logger *slog.Logger) (*Adapter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	pollInterval, err := time.ParseDuration(cfg.PollInterval)
	if err != nil {
		pollInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{config: cfg, logger: logger, pollInterval: pollInterval}
	a.detail.Store("")
	return a, nil
}

func (a *Adapter) ChannelName() string { return "imessage" }

// Probe reports whether the Messages database exists and is readable,
// without opening a connection that outlives the call.
func (a *Adapter) Probe() error {
	dbPath := expandPath(a.config.DatabasePath)
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("imessage: database not found at %q: %w", dbPath, err)
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		return fmt.Errorf("imessage: open: %w", err)
	}
	defer db.Close()
	return db.Ping()
}

// Bootstrap opens the database connection and records the current max
// message id so StartListener only sees messages that arrive afterward.
func (a *Adapter) Bootstrap() (channels.BootstrapResult, error) {
	dbPath := expandPath(a.config.DatabasePath)
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		return channels.BootstrapResult{}, fmt.Errorf("imessage: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return channels.BootstrapResult{}, fmt.Errorf("imessage: ping: %w", err)
	}
	a.db = db

	lastID, err := a.getLastMessageID(context.Background())
	if err != nil {
		a.logger.Warn("imessage: failed to get last message id", "error", err)
		lastID = 0
	}
	a.lastMessageID.Store(lastID)
	a.setHealth(true, "")
	return channels.BootstrapResult{Ready: true, PairingRequired: true}, nil
}

func (a *Adapter) StartListener(cb channels.InboundHandler) error {
	if a.db == nil {
		return fmt.Errorf("imessage: bootstrap not called")
	}
	a.mu.Lock()
	a.handler = cb
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.wg.Add(1)
	go a.pollLoop(ctx)
	return nil
}

func (a *Adapter) StopListener() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if a.db != nil {
		a.db.Close()
	}
	a.setHealth(false, "stopped")
	return nil
}

// SendMessage delivers out via AppleScript since the database connection is
// read-only and Messages.app has no local send API.
func (a *Adapter) SendMessage(out channels.Outbound) error {
	script := fmt.Sprintf(`
		tell application "Messages"
			set targetService to 1st account whose service type = iMessage
			set targetBuddy to participant %q of targetService
			send %q to targetBuddy
		end tell
	`, out.ChatID, escapeAppleScript(out.Text))

	cmd := exec.Command("osascript", "-e", script)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("imessage: send via AppleScript failed (output: %s): %w", output, err)
	}
	return nil
}

func (a *Adapter) NormalizeContactID(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func (a *Adapter) SetTelemetrySink(sink channels.TelemetrySink) {
	a.mu.Lock()
	a.sink = sink
	a.mu.Unlock()
}

func (a *Adapter) SetChatScope(chatID string) {
	a.mu.Lock()
	a.chatScope = chatID
	a.mu.Unlock()
}

// PollForPairingCode scans the most recent maxChats chats for an inbound
// message whose text equals code, used during onboarding before a binding
// exists to discover which chat the operator is pairing from.
func (a *Adapter) PollForPairingCode(code string, maxChats int) (string, bool, error) {
	if a.db == nil {
		return "", false, fmt.Errorf("imessage: bootstrap not called")
	}
	query := `
		SELECT c.chat_identifier, m.text
		FROM message m
		LEFT JOIN chat_message_join cmj ON m.ROWID = cmj.message_id
		LEFT JOIN chat c ON cmj.chat_id = c.ROWID
		WHERE m.is_from_me = 0
		ORDER BY m.ROWID DESC
		LIMIT ?
	`
	rows, err := a.db.Query(query, maxChats)
	if err != nil {
		return "", false, fmt.Errorf("imessage: poll for pairing code: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var chatID, text sql.NullString
		if err := rows.Scan(&chatID, &text); err != nil {
			continue
		}
		if strings.TrimSpace(text.String) == code {
			return chatID.String, true, nil
		}
	}
	return "", false, nil
}

func (a *Adapter) HealthSnapshot() channels.HealthSnapshot {
	detail, _ := a.detail.Load().(string)
	return channels.HealthSnapshot{
		ListenerAlive: a.healthy.Load(),
		Detail:        detail,
		CheckedAt:     time.Now(),
	}
}

func (a *Adapter) setHealth(ok bool, detail string) {
	a.healthy.Store(ok)
	a.detail.Store(detail)
}

func (a *Adapter) pollLoop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollNewMessages(ctx)
		}
	}
}

func (a *Adapter) pollNewMessages(ctx context.Context) {
	query := `
		SELECT m.ROWID, m.guid, m.text, m.date, m.is_from_me, h.id as handle_id,
			c.chat_identifier
		FROM message m
		LEFT JOIN handle h ON m.handle_id = h.ROWID
		LEFT JOIN chat_message_join cmj ON m.ROWID = cmj.message_id
		LEFT JOIN chat c ON cmj.chat_id = c.ROWID
		WHERE m.ROWID > ? AND m.is_from_me = 0
		ORDER BY m.ROWID ASC
		LIMIT 100
	`
	rows, err := a.db.QueryContext(ctx, query, a.lastMessageID.Load())
	if err != nil {
		a.logger.Error("imessage: poll failed", "error", err)
		a.setHealth(false, err.Error())
		return
	}
	defer rows.Close()

	a.mu.Lock()
	handler := a.handler
	scope := a.chatScope
	sink := a.sink
	a.mu.Unlock()

	for rows.Next() {
		var rowID int64
		var guid, text, handleID string
		var dateNano int64
		var isFromMe int
		var chatID sql.NullString

		if err := rows.Scan(&rowID, &guid, &text, &dateNano, &isFromMe, &handleID, &chatID); err != nil {
			a.logger.Error("imessage: scan failed", "error", err)
			continue
		}

		for {
			current := a.lastMessageID.Load()
			if rowID <= current || a.lastMessageID.CompareAndSwap(current, rowID) {
				break
			}
		}
		if isFromMe == 1 || handler == nil {
			continue
		}
		if scope != "" && chatID.String != scope {
			if sink != nil {
				sink.Emit("imessage", "chat_scope_mismatch", map[string]any{"chat_id": chatID.String})
			}
			continue
		}

		handler(channels.Inbound{
			ContactID: handleID,
			ChatID:    chatID.String,
			Text:      text,
			Timestamp: appleTimestampToTime(dateNano),
		})
	}
}

func (a *Adapter) getLastMessageID(ctx context.Context) (int64, error) {
	var maxID sql.NullInt64
	if err := a.db.QueryRowContext(ctx, "SELECT MAX(ROWID) FROM message").Scan(&maxID); err != nil {
		return 0, err
	}
	if maxID.Valid {
		return maxID.Int64, nil
	}
	return 0, nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return s
}

// appleTimestampToTime converts nanoseconds since 2001-01-01 00:00:00 UTC,
// the epoch Messages.app stores message dates against.
func appleTimestampToTime(nano int64) time.Time {
	appleEpoch := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	return appleEpoch.Add(time.Duration(nano) * time.Nanosecond)
}

var _ channels.ChannelAdapter = (*Adapter)(nil)
