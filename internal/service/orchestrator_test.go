package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/perlica/perlica/internal/channels"
)

type fakeAdapter struct {
	mu       sync.Mutex
	name     string
	handler  channels.InboundHandler
	sent     []channels.Outbound
	sink     channels.TelemetrySink
	alive    bool
}

func (f *fakeAdapter) ChannelName() string { return f.name }
func (f *fakeAdapter) Probe() error        { return nil }
func (f *fakeAdapter) Bootstrap() (channels.BootstrapResult, error) {
	return channels.BootstrapResult{Ready: true}, nil
}
func (f *fakeAdapter) StartListener(cb channels.InboundHandler) error {
	f.mu.Lock()
	f.handler = cb
	f.alive = true
	f.mu.Unlock()
	return nil
}
func (f *fakeAdapter) StopListener() error {
	f.mu.Lock()
	f.alive = false
	f.mu.Unlock()
	return nil
}
func (f *fakeAdapter) SendMessage(out channels.Outbound) error {
	f.mu.Lock()
	f.sent = append(f.sent, out)
	f.mu.Unlock()
	return nil
}
func (f *fakeAdapter) NormalizeContactID(raw string) string { return raw }
func (f *fakeAdapter) SetTelemetrySink(sink channels.TelemetrySink) {
	f.mu.Lock()
	f.sink = sink
	f.mu.Unlock()
}
func (f *fakeAdapter) SetChatScope(string)                           {}
func (f *fakeAdapter) PollForPairingCode(string, int) (string, bool, error) { return "", false, nil }
func (f *fakeAdapter) HealthSnapshot() channels.HealthSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return channels.HealthSnapshot{ListenerAlive: f.alive}
}

func (f *fakeAdapter) deliver(in channels.Inbound) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(in)
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) Emit(eventType string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func TestPairingThenBoundRunReplies(t *testing.T) {
	adapter := &fakeAdapter{name: "imessage"}
	sink := &recordingSink{}
	orch := NewOrchestrator(t.TempDir(), sink, nil)

	var ranSessionID, ranText string
	orch.RegisterAdapter(adapter, func(ctx context.Context, sessionID, text string) (string, error) {
		ranSessionID, ranText = sessionID, text
		return "pong", nil
	})

	code, err := orch.Bootstrap("imessage")
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if err := orch.StartListener("imessage"); err != nil {
		t.Fatalf("StartListener() error = %v", err)
	}

	adapter.deliver(channels.Inbound{ContactID: "contact-A", ChatID: "chat-X", Text: "/pair " + code})
	if err := orch.Bind("imessage", "sess-1"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	adapter.deliver(channels.Inbound{ContactID: "contact-A", ChatID: "chat-Y", Text: "hi"})

	if ranSessionID != "sess-1" || ranText != "hi" {
		t.Fatalf("expected run against sess-1 with %q, got sessionID=%q text=%q", "hi", ranSessionID, ranText)
	}
	if len(adapter.sent) != 1 || adapter.sent[0].Text != "pong" || adapter.sent[0].ChatID != "chat-Y" {
		t.Fatalf("expected one reply to chat-Y, got %+v", adapter.sent)
	}
}

func TestUnboundContactProducesNoOutboundAndMismatchTelemetry(t *testing.T) {
	adapter := &fakeAdapter{name: "imessage"}
	sink := &recordingSink{}
	orch := NewOrchestrator(t.TempDir(), sink, nil)
	orch.RegisterAdapter(adapter, func(ctx context.Context, sessionID, text string) (string, error) {
		return "pong", nil
	})

	code, err := orch.Bootstrap("imessage")
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if err := orch.StartListener("imessage"); err != nil {
		t.Fatalf("StartListener() error = %v", err)
	}
	adapter.deliver(channels.Inbound{ContactID: "contact-A", ChatID: "chat-X", Text: "/pair " + code})
	if err := orch.Bind("imessage", "sess-1"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	adapter.deliver(channels.Inbound{ContactID: "contact-B", ChatID: "chat-X", Text: "hi"})

	if len(adapter.sent) != 0 {
		t.Fatalf("expected no outbound for a mismatched contact, got %+v", adapter.sent)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	found := false
	for _, e := range sink.events {
		if e == "contact_mismatch" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a contact_mismatch telemetry event, got %v", sink.events)
	}
}

func TestSuperviseRestartsDeadListener(t *testing.T) {
	adapter := &fakeAdapter{name: "imessage"}
	orch := NewOrchestrator(t.TempDir(), &recordingSink{}, nil)
	orch.HealthPollInterval = 10 * time.Millisecond
	orch.RegisterAdapter(adapter, func(ctx context.Context, sessionID, text string) (string, error) { return "", nil })

	if err := orch.StartListener("imessage"); err != nil {
		t.Fatalf("StartListener() error = %v", err)
	}
	adapter.mu.Lock()
	adapter.alive = false
	adapter.mu.Unlock()

	deadline := time.After(2 * time.Second)
	for {
		if adapter.HealthSnapshot().ListenerAlive {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected supervisor to restart the listener")
		case <-time.After(10 * time.Millisecond):
		}
	}
	orch.StopListener("imessage")
}
