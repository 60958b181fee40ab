// Package channels defines the transport-agnostic adapter contract that
// every messaging channel (iMessage, Discord, Slack, ...) implements, plus
// the shared rate limiter adapters use.
package channels

import "time"

// Inbound is a normalized message an adapter delivers to the service
// orchestrator's listener callback, regardless of the wire format the
// underlying platform used.
type Inbound struct {
	ContactID string // raw, adapter-specific identifier of the sender
	ChatID    string // informational; never part of binding matching
	Text      string
	Timestamp time.Time
}

// Outbound is a normalized message the orchestrator asks an adapter to
// deliver.
type Outbound struct {
	ChatID string
	Text   string
}

// BootstrapResult reports what Bootstrap did, surfaced to the CLI/service
// logs so an operator can tell which adapters came up cleanly.
type BootstrapResult struct {
	Ready   bool
	Detail  string
	PairingRequired bool
}

// HealthSnapshot is polled by the supervisor at a fixed interval to decide
// whether a listener needs restarting.
type HealthSnapshot struct {
	ListenerAlive bool
	Detail        string
	CheckedAt     time.Time
}

// TelemetrySink receives adapter-level telemetry events (e.g.
// "contact_mismatch") the orchestrator records but does not otherwise act on.
type TelemetrySink interface {
	Emit(channelName, eventType string, data map[string]any)
}

// InboundHandler is the callback an adapter invokes once per normalized
// inbound message while its listener is running.
type InboundHandler func(Inbound)

// ChannelAdapter is the contract every messaging channel implements. The
// service orchestrator depends only on this interface, never on a specific
// platform SDK.
type ChannelAdapter interface {
	ChannelName() string

	// Probe reports whether the adapter's prerequisites are satisfied
	// (binary present, database reachable, credentials configured) without
	// starting anything.
	Probe() error

	// Bootstrap performs one-time setup (e.g. generating a first pairing
	// code) and reports whether the adapter is ready to start listening.
	Bootstrap() (BootstrapResult, error)

	StartListener(cb InboundHandler) error
	StopListener() error

	SendMessage(out Outbound) error

	// NormalizeContactID canonicalizes a raw, adapter-specific contact
	// identifier so it can be compared against a stored binding.
	NormalizeContactID(raw string) string

	SetTelemetrySink(sink TelemetrySink)

	// SetChatScope restricts the adapter to a single chat/thread when
	// chatID is non-empty; an empty string means "no restriction".
	SetChatScope(chatID string)

	// PollForPairingCode scans up to maxChats recent chats for an inbound
	// message equal to code, used during bootstrap before a binding exists.
	PollForPairingCode(code string, maxChats int) (chatID string, found bool, err error)

	HealthSnapshot() HealthSnapshot
}
