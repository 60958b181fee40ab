package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/perlica/perlica/internal/channels"
)

type fakeSession struct {
	opened    bool
	closed    bool
	sent      []string
	handlers  []interface{}
	openErr   error
}

func (f *fakeSession) Open() error { f.opened = true; return f.openErr }
func (f *fakeSession) Close() error { f.closed = true; return nil }
func (f *fakeSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sent = append(f.sent, content)
	return &discordgo.Message{}, nil
}
func (f *fakeSession) AddHandler(handler interface{}) func() {
	f.handlers = append(f.handlers, handler)
	return func() {}
}

func newTestAdapter(t *testing.T, session discordSession) *Adapter {
	t.Helper()
	a, err := New(Config{Token: "x", Logger: nil}, session)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestBootstrapReusesInjectedSession(t *testing.T) {
	session := &fakeSession{}
	a := newTestAdapter(t, session)
	if _, err := a.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if a.session != session {
		t.Fatalf("Bootstrap() replaced the injected session")
	}
}

func TestStartListenerOpensAndMarksConnected(t *testing.T) {
	session := &fakeSession{}
	a := newTestAdapter(t, session)
	a.Bootstrap()
	var received []channels.Inbound
	if err := a.StartListener(func(in channels.Inbound) { received = append(received, in) }); err != nil {
		t.Fatalf("StartListener() error = %v", err)
	}
	if !session.opened {
		t.Fatalf("expected session.Open() to be called")
	}
	if !a.HealthSnapshot().ListenerAlive {
		t.Fatalf("expected ListenerAlive after successful connect")
	}
}

func TestHandleMessageCreateIgnoresBots(t *testing.T) {
	session := &fakeSession{}
	a := newTestAdapter(t, session)
	var called bool
	a.handler = func(channels.Inbound) { called = true }
	a.handleMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{ID: "bot-1", Bot: true}, Content: "hi",
	}})
	if called {
		t.Fatalf("expected bot messages to be ignored")
	}
}

func TestHandleMessageCreateDeliversToHandler(t *testing.T) {
	session := &fakeSession{}
	a := newTestAdapter(t, session)
	var got channels.Inbound
	a.handler = func(in channels.Inbound) { got = in }
	a.handleMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{ID: "user-1"}, ChannelID: "chan-1", Content: "hello",
	}})
	if got.ContactID != "user-1" || got.ChatID != "chan-1" || got.Text != "hello" {
		t.Fatalf("unexpected inbound: %+v", got)
	}
}

func TestSendMessageChunksLongText(t *testing.T) {
	session := &fakeSession{}
	a := newTestAdapter(t, session)
	a.connected.Store(true)
	long := make([]byte, 2500)
	for i := range long {
		long[i] = 'a'
	}
	if err := a.SendMessage(channels.Outbound{ChatID: "chan-1", Text: string(long)}); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if len(session.sent) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(session.sent))
	}
}

func TestPollForPairingCodeUnsupported(t *testing.T) {
	a := newTestAdapter(t, &fakeSession{})
	if _, _, err := a.PollForPairingCode("ABC123", 10); err == nil {
		t.Fatalf("expected error, PollForPairingCode is unsupported for discord")
	}
}
