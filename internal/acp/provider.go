package acp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// circuitCooldown is how long Connect refuses to retry after the breaker
// trips, once a profile opts into acp_circuit_breaker_enabled.
const circuitCooldown = 30 * time.Second

// Provider drives one provider subprocess end-to-end: session creation and
// prompt turns, translating through its Codec and surfacing contract
// violations distinctly from transport failures.
type Provider struct {
	profile   Profile
	transport *Transport
	codec     Codec
	logger    *slog.Logger

	mu           sync.Mutex
	circuitUntil time.Time
}

func NewProvider(profile Profile, transport *Transport, codec Codec, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{profile: profile, transport: transport, codec: codec, logger: logger.With("provider_id", profile.ProviderID)}
}

// Connect dials the provider subprocess, retrying transient failures up to
// profile.MaxRetries with exponential+jitter backoff. When the profile
// enables a circuit breaker, a failed Connect opens the breaker for
// circuitCooldown and subsequent calls fail fast without retrying.
func (p *Provider) Connect(ctx context.Context) error {
	if p.profile.CircuitBreakerEnabled {
		p.mu.Lock()
		open := time.Now().Before(p.circuitUntil)
		p.mu.Unlock()
		if open {
			return fmt.Errorf("acp: provider %s circuit open, retry later", p.profile.ProviderID)
		}
	}

	b := backoff.NewExponentialBackOff()
	if p.profile.MaxRetries <= 0 || p.profile.Backoff == "none" {
		b.MaxElapsedTime = 0
	}
	retrying := backoff.WithMaxRetries(b, uint64(maxInt(p.profile.MaxRetries, 0)))

	err := backoff.Retry(func() error {
		return p.transport.Connect(ctx)
	}, backoff.WithContext(retrying, ctx))

	if err != nil && p.profile.CircuitBreakerEnabled {
		p.mu.Lock()
		p.circuitUntil = time.Now().Add(circuitCooldown)
		p.mu.Unlock()
	}
	return err
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (p *Provider) Close() error {
	return p.transport.Close()
}

// NewSession creates a provider-side session rooted at workspaceDir and
// returns its id.
func (p *Provider) NewSession(ctx context.Context, workspaceDir string) (string, error) {
	params := p.codec.BuildSessionNewParams(workspaceDir)
	result, err := p.transport.Call(ctx, "session/new", params, nil)
	if err != nil {
		return "", fmt.Errorf("acp: provider %s session/new: %w", p.profile.ProviderID, err)
	}
	id, err := p.codec.ExtractSessionID(result)
	if err != nil {
		p.logger.Error("provider.invalid_response", "method", "session/new", "error", err)
		return "", err
	}
	return id, nil
}

// Generate runs one session/prompt turn, draining any notifications emitted
// for this session while the call is in flight so the codec can reconstruct
// a response from them if the result itself is sparse.
func (p *Provider) Generate(ctx context.Context, sessionID string, req LLMRequest) (LLMResponse, error) {
	method, params, err := p.codec.BuildPromptParams(sessionID, req)
	if err != nil {
		return LLMResponse{}, err
	}

	var collected []Notification
	activity := make(chan struct{}, 1)
	stopDrain := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case n := <-p.transport.Events():
				collected = append(collected, *n)
				select {
				case activity <- struct{}{}:
				default:
				}
			case <-stopDrain:
				return
			}
		}
	}()

	result, callErr := p.transport.Call(ctx, method, params, activity)
	close(stopDrain)
	<-done

	if callErr != nil {
		return LLMResponse{}, fmt.Errorf("acp: provider %s %s: %w", p.profile.ProviderID, method, callErr)
	}

	resp, err := p.codec.NormalizePromptResult(result, collected)
	if err != nil {
		p.logger.Error("provider.invalid_response", "method", method, "error", err)
		return LLMResponse{}, err
	}
	if resp.FallbackTextUsed {
		p.logger.Warn("provider.acp.response.fallback_text_used", "source", resp.FallbackTextSource, "chars", len(resp.AssistantText))
	}
	return resp, nil
}
