// Package runner implements the one-turn orchestration described in
// spec.md §4.10: acquire a task slot, resolve or create a session, build a
// compacted message window, call the provider, dispatch any tool calls it
// returns, and repeat until the provider is done or a budget is hit.
package runner

import (
	"context"

	"github.com/perlica/perlica/internal/acp"
	"github.com/perlica/perlica/internal/config"
	"github.com/perlica/perlica/internal/dispatcher"
	"github.com/perlica/perlica/internal/policy"
)

// Provider is the subset of *acp.Provider the Runner needs. A fake
// implementation lets tests drive the loop without a subprocess.
type Provider interface {
	NewSession(ctx context.Context, workspaceDir string) (string, error)
	Generate(ctx context.Context, sessionID string, req acp.LLMRequest) (acp.LLMResponse, error)
}

// Dispatcher is the subset of *dispatcher.Dispatcher the Runner needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, call dispatcher.Call, approvalWaitDone <-chan struct{}) (map[string]any, error)
}

// ToolCatalog describes the tools available to the provider for a turn:
// their wire specs (for LLMRequest.Tools) and the risk tier the dispatcher
// should resolve policy against.
type ToolCatalog interface {
	Specs() []acp.ToolSpec
	RiskTier(toolID string) policy.RiskTier
}

// Input is one Runner.Run invocation.
type Input struct {
	ContextRoot  string
	WorkspaceDir string
	SessionRef   string // optional: id, name, or unambiguous prefix
	Text         string
	AssumeYes    bool
}

// Result summarizes a completed turn.
type Result struct {
	SessionID     string
	RunID         string
	AssistantText string
	ToolCallCount int
	FinishReason  string
}

// Config bundles the runtime knobs Run consumes, mirroring
// config.RuntimeConfig so callers can pass either the real config struct or
// a test fixture.
type Config struct {
	MaxToolCalls           int
	ContextBudgetRatio     float64
	MaxSummaryAttempts     int
	ProviderContextWindows map[string]int
}

// FromRuntimeConfig adapts config.RuntimeConfig to runner.Config.
func FromRuntimeConfig(rc config.RuntimeConfig) Config {
	return Config{
		MaxToolCalls:           rc.MaxToolCalls,
		ContextBudgetRatio:     rc.ContextBudgetRatio,
		MaxSummaryAttempts:     rc.MaxSummaryAttempts,
		ProviderContextWindows: rc.ProviderContextWindows,
	}
}
