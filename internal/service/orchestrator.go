package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/perlica/perlica/internal/channels"
)

// EventSink receives orchestrator lifecycle and telemetry events; callers
// typically back it with the event log.
type EventSink interface {
	Emit(eventType string, data map[string]any)
}

type noopSink struct{}

func (noopSink) Emit(string, map[string]any) {}

// RunFunc executes one turn of the agent against sessionID and returns the
// reply text. It is supplied by the runner, kept decoupled here to avoid an
// import cycle between service and runner.
type RunFunc func(ctx context.Context, sessionID, text string) (reply string, err error)

// boundState is the single active pairing for one channel: which contact is
// bound, which chat the binding was established in, and which session runs
// handle against.
type boundState struct {
	ContactID string
	ChatID    string
	SessionID string
}

// channelRuntime is everything the orchestrator tracks for one registered
// channel adapter.
type channelRuntime struct {
	adapter channels.ChannelAdapter
	run     RunFunc
	bound   *boundState

	supervisorCancel context.CancelFunc
}

// Orchestrator wires pairing, binding, the ACK→run→reply flow, and listener
// supervision together across every registered channel adapter.
type Orchestrator struct {
	mu       sync.Mutex
	channels map[string]*channelRuntime
	pairing  *Store
	sink     EventSink
	logger   *slog.Logger

	HealthPollInterval time.Duration
	BackoffCeiling     time.Duration
}

// NewOrchestrator creates an Orchestrator backed by a file-persisted pairing
// store rooted at dataDir.
func NewOrchestrator(dataDir string, sink EventSink, logger *slog.Logger) *Orchestrator {
	if sink == nil {
		sink = noopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		channels:           make(map[string]*channelRuntime),
		pairing:            NewStore(dataDir),
		sink:               sink,
		logger:             logger,
		HealthPollInterval: 10 * time.Second,
		BackoffCeiling:     time.Minute,
	}
}

// RegisterAdapter associates a channel adapter with the run function used to
// answer bound sessions on that channel.
func (o *Orchestrator) RegisterAdapter(adapter channels.ChannelAdapter, run RunFunc) {
	adapter.SetTelemetrySink(sinkAdapter{channel: adapter.ChannelName(), sink: o.sink})
	o.mu.Lock()
	o.channels[adapter.ChannelName()] = &channelRuntime{adapter: adapter, run: run}
	o.mu.Unlock()
}

// Bootstrap probes and bootstraps the named channel, then issues a pairing
// code an operator texts back (e.g. "/pair ABC123") to bind it.
func (o *Orchestrator) Bootstrap(channelName string) (code string, err error) {
	rt, err := o.runtimeFor(channelName)
	if err != nil {
		return "", err
	}
	if err := rt.adapter.Probe(); err != nil {
		return "", fmt.Errorf("service: probe %s: %w", channelName, err)
	}
	if _, err := rt.adapter.Bootstrap(); err != nil {
		return "", fmt.Errorf("service: bootstrap %s: %w", channelName, err)
	}
	code, _, err = o.pairing.UpsertRequest(channelName, "operator-device", nil)
	if err != nil {
		return "", fmt.Errorf("service: issue pairing code: %w", err)
	}
	return code, nil
}

// StartListener starts the channel's listener under supervision: if the
// listener's health check reports it dead, it is stopped and restarted with
// exponential backoff capped at BackoffCeiling.
func (o *Orchestrator) StartListener(channelName string) error {
	rt, err := o.runtimeFor(channelName)
	if err != nil {
		return err
	}
	if err := rt.adapter.StartListener(func(in channels.Inbound) { o.handleInbound(channelName, rt, in) }); err != nil {
		return fmt.Errorf("service: start listener %s: %w", channelName, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt.supervisorCancel = cancel
	go o.supervise(ctx, channelName, rt)
	return nil
}

func (o *Orchestrator) StopListener(channelName string) error {
	rt, err := o.runtimeFor(channelName)
	if err != nil {
		return err
	}
	if rt.supervisorCancel != nil {
		rt.supervisorCancel()
	}
	return rt.adapter.StopListener()
}

func (o *Orchestrator) supervise(ctx context.Context, channelName string, rt *channelRuntime) {
	ticker := time.NewTicker(o.HealthPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rt.adapter.HealthSnapshot().ListenerAlive {
				continue
			}
			o.sink.Emit("service.listener.reconnecting", map[string]any{"channel": channelName})
			rt.adapter.StopListener()

			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = o.BackoffCeiling
			_, err := backoff.Retry(ctx, func() (struct{}, error) {
				return struct{}{}, rt.adapter.StartListener(func(in channels.Inbound) { o.handleInbound(channelName, rt, in) })
			}, backoff.WithBackOff(b))
			if err != nil {
				o.logger.Error("service: listener restart failed", "channel", channelName, "error", err)
				continue
			}
			o.sink.Emit("service.listener.running", map[string]any{"channel": channelName})
		}
	}
}

// handleInbound implements scenario 5 of spec.md: a "/pair CODE" message
// activates a binding; any other message is answered only if it comes from
// the already-bound contact, regardless of which chat it arrived through.
func (o *Orchestrator) handleInbound(channelName string, rt *channelRuntime, in channels.Inbound) {
	text := strings.TrimSpace(in.Text)

	if rest, ok := strings.CutPrefix(text, "/pair "); ok {
		o.approvePairing(channelName, rt, in, strings.TrimSpace(rest))
		return
	}

	o.mu.Lock()
	bound := rt.bound
	o.mu.Unlock()

	if bound == nil {
		return
	}
	binding := Binding{Channel: channelName, ContactID: bound.ContactID, ChatID: bound.ChatID}
	if !binding.Matches(in.ContactID) {
		o.sink.Emit("contact_mismatch", map[string]any{"channel": channelName, "contact_id": rt.adapter.NormalizeContactID(in.ContactID)})
		return
	}

	if rt.run == nil {
		return
	}
	reply, err := rt.run(context.Background(), bound.SessionID, text)
	if err != nil {
		o.logger.Error("service: run failed", "channel", channelName, "error", err)
		return
	}
	if err := rt.adapter.SendMessage(channels.Outbound{ChatID: in.ChatID, Text: reply}); err != nil {
		o.logger.Error("service: send reply failed", "channel", channelName, "error", err)
	}
}

func (o *Orchestrator) approvePairing(channelName string, rt *channelRuntime, in channels.Inbound, code string) {
	id, _, err := o.pairing.ApproveCode(channelName, code)
	if err != nil {
		return
	}
	_ = id
	o.mu.Lock()
	rt.bound = &boundState{
		ContactID: rt.adapter.NormalizeContactID(in.ContactID),
		ChatID:    in.ChatID,
		SessionID: "", // assigned by the caller via Bind once a session exists
	}
	o.mu.Unlock()
	rt.adapter.SetChatScope("")
	o.sink.Emit("service.binding.activated", map[string]any{"channel": channelName})
}

// Bind assigns the session a newly activated binding should run against.
// Called by the CLI/runner wiring once it has created (or resolved) the
// session for a freshly bound channel.
func (o *Orchestrator) Bind(channelName, sessionID string) error {
	rt, err := o.runtimeFor(channelName)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if rt.bound == nil {
		return fmt.Errorf("service: no active binding on channel %q", channelName)
	}
	rt.bound.SessionID = sessionID
	return nil
}

func (o *Orchestrator) runtimeFor(channelName string) (*channelRuntime, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rt, ok := o.channels[channelName]
	if !ok {
		return nil, fmt.Errorf("service: unknown channel %q", channelName)
	}
	return rt, nil
}

type sinkAdapter struct {
	channel string
	sink    EventSink
}

func (s sinkAdapter) Emit(channelName, eventType string, data map[string]any) {
	merged := make(map[string]any, len(data)+1)
	for k, v := range data {
		merged[k] = v
	}
	merged["channel"] = channelName
	s.sink.Emit(eventType, merged)
}
