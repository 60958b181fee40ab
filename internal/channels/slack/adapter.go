// Package slack is a reference ChannelAdapter backed by slack-go/slack's
// Socket Mode client, proving the contract against an event-stream
// transport distinct from Discord's gateway and iMessage's polling.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/perlica/perlica/internal/channels"
)

// apiClient is the subset of *slack.Client the adapter depends on.
type apiClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
}

// socketClient is the subset of *socketmode.Client the adapter depends on.
type socketClient interface {
	Run() error
	Ack(req socketmode.Request, payload ...interface{})
	Events() <-chan socketmode.Event
}

// Config holds Slack adapter configuration.
type Config struct {
	BotToken string
	AppToken string
	Logger   *slog.Logger
}

func (c *Config) Validate() error {
	if c.BotToken == "" || c.AppToken == "" {
		return fmt.Errorf("slack: bot_token and app_token are required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.ChannelAdapter over Slack Socket Mode.
type Adapter struct {
	config Config
	api    apiClient
	socket socketClient
	logger *slog.Logger

	mu        sync.Mutex
	handler   channels.InboundHandler
	sink      channels.TelemetrySink
	chatScope string

	connected atomic.Bool
	done      chan struct{}
}

// New creates a Slack adapter. api/socket may be injected for tests; when
// either is nil, Bootstrap builds real clients for both.
func New(cfg Config, api apiClient, socket socketClient) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{config: cfg, api: api, socket: socket, logger: cfg.Logger.With("adapter", "slack")}, nil
}

func (a *Adapter) ChannelName() string { return "slack" }

func (a *Adapter) Probe() error {
	if a.config.BotToken == "" || a.config.AppToken == "" {
		return fmt.Errorf("slack: bot_token/app_token not configured")
	}
	return nil
}

func (a *Adapter) Bootstrap() (channels.BootstrapResult, error) {
	if a.api == nil || a.socket == nil {
		client := slack.New(a.config.BotToken, slack.OptionAppLevelToken(a.config.AppToken))
		a.api = client
		a.socket = socketmode.New(client)
	}
	if _, err := a.api.AuthTestContext(context.Background()); err != nil {
		return channels.BootstrapResult{}, fmt.Errorf("slack: auth test: %w", err)
	}
	return channels.BootstrapResult{Ready: true, PairingRequired: true}, nil
}

func (a *Adapter) StartListener(cb channels.InboundHandler) error {
	a.mu.Lock()
	a.handler = cb
	a.mu.Unlock()

	a.done = make(chan struct{})
	go a.eventLoop()
	go func() {
		if err := a.socket.Run(); err != nil {
			a.logger.Error("slack: socket mode run failed", "error", err)
		}
	}()
	a.connected.Store(true)
	return nil
}

func (a *Adapter) StopListener() error {
	a.connected.Store(false)
	if a.done != nil {
		close(a.done)
	}
	return nil
}

func (a *Adapter) SendMessage(out channels.Outbound) error {
	if !a.connected.Load() {
		return fmt.Errorf("slack: not connected")
	}
	_, _, err := a.api.PostMessageContext(context.Background(), out.ChatID, slack.MsgOptionText(out.Text, false))
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
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

// PollForPairingCode is unsupported: Slack channel history requires scopes
// this adapter doesn't request, so pairing happens via a live message.
func (a *Adapter) PollForPairingCode(code string, maxChats int) (string, bool, error) {
	return "", false, fmt.Errorf("slack: poll for pairing code not supported, pair via a live message instead")
}

func (a *Adapter) HealthSnapshot() channels.HealthSnapshot {
	return channels.HealthSnapshot{ListenerAlive: a.connected.Load(), CheckedAt: time.Now()}
}

func (a *Adapter) eventLoop() {
	for {
		select {
		case <-a.done:
			return
		case evt, ok := <-a.socket.Events():
			if !ok {
				return
			}
			a.handleEvent(evt)
		}
	}
}

func (a *Adapter) handleEvent(evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	eventsAPI, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	a.socket.Ack(*evt.Request)

	inner, ok := eventsAPI.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok || inner.BotID != "" {
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
	if scope != "" && inner.Channel != scope {
		if sink != nil {
			sink.Emit("slack", "chat_scope_mismatch", map[string]any{"channel": inner.Channel})
		}
		return
	}
	handler(channels.Inbound{
		ContactID: inner.User,
		ChatID:    inner.Channel,
		Text:      inner.Text,
		Timestamp: time.Now(),
	})
}

var _ channels.ChannelAdapter = (*Adapter)(nil)
