// Package discord is a reference ChannelAdapter backed by bwmarrin/discordgo,
// proving the contract against a gateway/websocket bot API rather than the
// polling style of the iMessage adapter.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cenkalti/backoff/v5"

	"github.com/perlica/perlica/internal/channels"
)

// discordSession is the subset of *discordgo.Session the adapter depends on,
// narrowed for testability.
type discordSession interface {
	Open() error
	Close() error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	AddHandler(handler interface{}) func()
}

// Config holds Discord adapter configuration.
type Config struct {
	Token            string
	RateLimit        float64
	RateBurst        int
	MaxReconnectTime time.Duration
	Logger           *slog.Logger
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("discord: token is required")
	}
	if c.RateLimit == 0 {
		c.RateLimit = 5
	}
	if c.RateBurst == 0 {
		c.RateBurst = 10
	}
	if c.MaxReconnectTime == 0 {
		c.MaxReconnectTime = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.ChannelAdapter over a Discord bot connection.
type Adapter struct {
	config  Config
	session discordSession
	limiter *channels.RateLimiter
	logger  *slog.Logger

	mu        sync.Mutex
	handler   channels.InboundHandler
	sink      channels.TelemetrySink
	chatScope string

	connected atomic.Bool
	cancel    context.CancelFunc
}

// New creates a Discord adapter. session may be injected for tests; when nil
// a real *discordgo.Session is created on Bootstrap.
func New(cfg Config, session discordSession) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		config:  cfg,
		session: session,
		limiter: channels.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:  cfg.Logger.With("adapter", "discord"),
	}, nil
}

func (a *Adapter) ChannelName() string { return "discord" }

func (a *Adapter) Probe() error {
	if a.config.Token == "" {
		return fmt.Errorf("discord: token not configured")
	}
	return nil
}

// Bootstrap creates the underlying session (unless one was injected) but
// neither registers the message-create handler nor opens the connection —
// both happen in StartListener so Probe/Bootstrap stay side-effect light.
func (a *Adapter) Bootstrap() (channels.BootstrapResult, error) {
	if a.session == nil {
		dg, err := discordgo.New("Bot " + a.config.Token)
		if err != nil {
			return channels.BootstrapResult{}, fmt.Errorf("discord: create session: %w", err)
		}
		a.session = dg
	}
	return channels.BootstrapResult{Ready: true, PairingRequired: true}, nil
}

func (a *Adapter) StartListener(cb channels.InboundHandler) error {
	a.mu.Lock()
	a.handler = cb
	a.mu.Unlock()

	if dg, ok := a.session.(*discordgo.Session); ok {
		dg.AddHandler(a.handleMessageCreate)
	} else {
		a.session.AddHandler(a.handleMessageCreate)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	return a.connectWithBackoff(ctx)
}

func (a *Adapter) StopListener() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.connected.Store(false)
	return a.session.Close()
}

func (a *Adapter) SendMessage(out channels.Outbound) error {
	ctx := context.Background()
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("discord: rate limit wait: %w", err)
	}
	if !a.connected.Load() {
		return fmt.Errorf("discord: not connected")
	}
	for _, chunk := range discordChunks(out.Text) {
		if _, err := a.session.ChannelMessageSend(out.ChatID, chunk); err != nil {
			return fmt.Errorf("discord: send: %w", err)
		}
	}
	return nil
}

func (a *Adapter) NormalizeContactID(raw string) string {
	return strings.TrimSpace(raw)
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

// PollForPairingCode is unsupported for Discord: pairing happens via the
// live listener instead of a backfill scan, since channel history access
// requires extra bot permissions this adapter doesn't request.
func (a *Adapter) PollForPairingCode(code string, maxChats int) (string, bool, error) {
	return "", false, fmt.Errorf("discord: poll for pairing code not supported, pair via a live message instead")
}

func (a *Adapter) HealthSnapshot() channels.HealthSnapshot {
	return channels.HealthSnapshot{ListenerAlive: a.connected.Load(), CheckedAt: time.Now()}
}

func (a *Adapter) connectWithBackoff(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = a.config.MaxReconnectTime
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := a.session.Open(); err != nil {
			a.logger.Warn("discord: connect attempt failed", "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b))
	if err != nil {
		return fmt.Errorf("discord: connect: %w", err)
	}
	a.connected.Store(true)
	return nil
}

func (a *Adapter) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author != nil && m.Author.Bot {
		return
	}
	a.mu.Lock()
	handler := a.handler
	scope := a.chatScope
	sink := a.sink
	a.mu.Unlock()

	if handler == nil {
		return
	}
	if scope != "" && m.ChannelID != scope {
		if sink != nil {
			sink.Emit("discord", "chat_scope_mismatch", map[string]any{"channel_id": m.ChannelID})
		}
		return
	}
	handler(channels.Inbound{
		ContactID: m.Author.ID,
		ChatID:    m.ChannelID,
		Text:      m.Content,
		Timestamp: time.Now(),
	})
}

// discordChunks splits text so no single message exceeds Discord's 2000
// character limit.
func discordChunks(text string) []string {
	const limit = 2000
	if len(text) <= limit {
		return []string{text}
	}
	var out []string
	for len(text) > limit {
		out = append(out, text[:limit])
		text = text[limit:]
	}
	if len(text) > 0 {
		out = append(out, text)
	}
	return out
}

var _ channels.ChannelAdapter = (*Adapter)(nil)
