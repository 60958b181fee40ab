package acp

import (
	"fmt"
	"log/slog"
)

// NewCodec builds the codec for a provider id.
func NewCodec(providerID string) (Codec, error) {
	switch providerID {
	case DefaultProviderID:
		return NewClaudeCodec(), nil
	case OpenCodeProviderID:
		return NewOpenCodeCodec(), nil
	default:
		return nil, fmt.Errorf("acp: unknown provider id %q", providerID)
	}
}

// BuildTransport constructs the transport for a profile. handler answers
// provider-initiated side-requests (e.g. permission prompts surfaced back
// through the interaction coordinator).
func BuildTransport(p Profile, handler SideRequestHandler, logger *slog.Logger) (*Transport, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	return New(Config{
		Command:      p.AdapterCommand,
		Args:         p.AdapterArgs,
		EnvAllowlist: p.EnvAllowlist,
	}, handler, logger), nil
}
