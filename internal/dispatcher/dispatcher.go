// Package dispatcher implements the single path by which tool calls reach
// execution: policy lookup, hard-blocklist override, approval wait, then
// (and only then) the tool's Execute. Tools must never be invoked any other
// way — the DISPATCH_ACTIVE context marker lets a tool refuse a direct call
// that bypassed this path.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/perlica/perlica/internal/approval"
	"github.com/perlica/perlica/internal/policy"
	"github.com/perlica/perlica/internal/security/shellguard"
)

// dispatchActiveKey marks a context as having passed through Dispatch. It is
// scoped to the single call tree of one dispatch, not process-global, so
// concurrent dispatches on different goroutines don't interfere.
type dispatchActiveKey struct{}

// IsDispatchActive reports whether ctx was produced by Dispatch. Tools call
// this at the top of Execute and refuse to run otherwise.
func IsDispatchActive(ctx context.Context) bool {
	v, _ := ctx.Value(dispatchActiveKey{}).(bool)
	return v
}

func withDispatchActive(ctx context.Context) context.Context {
	return context.WithValue(ctx, dispatchActiveKey{}, true)
}

// Call is the input to one dispatch.
type Call struct {
	ToolCallID string
	SessionID  string
	ToolID     string
	RiskTier   policy.RiskTier
	// ShellCommand is populated only for tools whose risk profile includes
	// raw shell execution; Dispatch checks it against the hard blocklist
	// regardless of policy.
	ShellCommand string
	Summary      string
	Args         map[string]any
	// AssumeYes skips the approval wait for an Ask disposition and proceeds
	// straight to execution. It has no effect on AlwaysDeny or a hard
	// blocklist hit — those still block.
	AssumeYes bool
}

// ResolverDecision is the outcome of consulting an ApprovalResolver.
type ResolverDecision struct {
	Allow bool
	// PersistPolicy, if non-empty, is written back to the policy store for
	// call.ToolID (AlwaysAllow or AlwaysDeny) so future asks for the same
	// tool skip the resolver entirely.
	PersistPolicy policy.Disposition
	Reason        string
}

// ApprovalResolver decides a pending approval synchronously, without relying
// on Store.Wait's channel-based blocking. An interactive caller (CLI prompt,
// UI modal) implements this by asking the human; a non-interactive caller
// (background service with no attached UI) simply has no resolver
// configured, in which case Dispatch denies the call instead of blocking
// forever.
type ApprovalResolver interface {
	Resolve(ctx context.Context, call Call) (ResolverDecision, error)
}

// Tool is the minimal surface Dispatch needs from a registered tool.
type Tool interface {
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Registry resolves a tool id to its implementation.
type Registry interface {
	Get(toolID string) (Tool, bool)
}

// EventSink receives dispatch lifecycle events (tool.blocked,
// approval.requested, approval.granted, approval.denied, tool.dispatched,
// tool.completed).
type EventSink interface {
	Emit(ctx context.Context, eventType string, data map[string]any)
}

// Errors returned by Dispatch. Callers use errors.Is to branch.
var (
	ErrUnknownTool                    = fmt.Errorf("dispatcher: unknown tool")
	ErrPolicyBlocked                  = fmt.Errorf("dispatcher: blocked by hard policy")
	ErrApprovalDenied                 = fmt.Errorf("dispatcher: approval denied")
	ErrApprovalRequiredNonInteractive = fmt.Errorf("dispatcher: approval_required")
	ErrDirectExecutionForbidden       = fmt.Errorf("dispatcher: direct tool execution forbidden")
)

type Dispatcher struct {
	registry  Registry
	policies  *policy.Store
	approvals *approval.Store
	events    EventSink
	resolver  ApprovalResolver
}

func New(registry Registry, policies *policy.Store, approvals *approval.Store, events EventSink) *Dispatcher {
	return &Dispatcher{registry: registry, policies: policies, approvals: approvals, events: events}
}

// WithResolver attaches an ApprovalResolver that Dispatch consults
// synchronously for an Ask disposition instead of blocking on Store.Wait.
// Returns d for chaining at construction time.
func (d *Dispatcher) WithResolver(resolver ApprovalResolver) *Dispatcher {
	d.resolver = resolver
	return d
}

// Dispatch runs the full policy → approval → execution path for call and
// returns the tool's result. approvalWaitDone lets the caller bound how long
// Dispatch blocks waiting for a human decision (e.g. tied to task
// cancellation): closing it cancels the context passed to the resolver.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call, approvalWaitDone <-chan struct{}) (map[string]any, error) {
	tool, ok := d.registry.Get(call.ToolID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, call.ToolID)
	}

	if call.ShellCommand != "" {
		if blocked, pattern := shellguard.Blocked(call.ShellCommand); blocked {
			d.emit(ctx, "tool.blocked", map[string]any{
				"tool_call_id": call.ToolCallID, "tool_id": call.ToolID, "pattern": pattern,
			})
			return nil, fmt.Errorf("%w: command matches %q", ErrPolicyBlocked, pattern)
		}
	}

	disposition := d.policies.Resolve(call.ToolID, call.RiskTier)
	switch disposition {
	case policy.AlwaysDeny:
		d.emit(ctx, "approval.denied", map[string]any{
			"tool_call_id": call.ToolCallID, "tool_id": call.ToolID, "reason": "always_deny policy",
		})
		return nil, ErrApprovalDenied
	case policy.Ask:
		if call.AssumeYes {
			d.emit(ctx, "approval.granted", map[string]any{
				"tool_call_id": call.ToolCallID, "tool_id": call.ToolID, "reason": "assume_yes",
			})
			break
		}

		d.emit(ctx, "approval.requested", map[string]any{
			"tool_call_id": call.ToolCallID, "tool_id": call.ToolID, "summary": call.Summary,
		})

		if d.resolver == nil {
			d.emit(ctx, "approval.denied", map[string]any{
				"tool_call_id": call.ToolCallID, "tool_id": call.ToolID,
				"reason": "approval_required_non_interactive",
			})
			return nil, fmt.Errorf("%w: %s", ErrApprovalRequiredNonInteractive, call.ToolID)
		}

		resolveCtx := ctx
		if approvalWaitDone != nil {
			var cancel context.CancelFunc
			resolveCtx, cancel = context.WithCancel(ctx)
			defer cancel()
			go func() {
				select {
				case <-approvalWaitDone:
					cancel()
				case <-resolveCtx.Done():
				}
			}()
		}
		decision, err := d.resolver.Resolve(resolveCtx, call)
		if err != nil {
			return nil, fmt.Errorf("dispatcher: resolving approval: %w", err)
		}
		if decision.PersistPolicy != "" {
			d.policies.SetToolPolicy(call.ToolID, decision.PersistPolicy)
		}
		if !decision.Allow {
			d.emit(ctx, "approval.denied", map[string]any{
				"tool_call_id": call.ToolCallID, "tool_id": call.ToolID, "reason": decision.Reason,
			})
			d.emit(ctx, "tool.blocked", map[string]any{"tool_call_id": call.ToolCallID, "tool_id": call.ToolID})
			return nil, ErrApprovalDenied
		}
		d.emit(ctx, "approval.granted", map[string]any{"tool_call_id": call.ToolCallID, "tool_id": call.ToolID})
	case policy.AlwaysAllow:
		// fall through to execution
	}

	execCtx := withDispatchActive(ctx)
	start := time.Now()
	d.emit(ctx, "tool.dispatched", map[string]any{"tool_call_id": call.ToolCallID, "tool_id": call.ToolID})
	result, err := tool.Execute(execCtx, call.Args)
	d.emit(ctx, "tool.completed", map[string]any{
		"tool_call_id": call.ToolCallID, "tool_id": call.ToolID,
		"duration_ms": time.Since(start).Milliseconds(), "ok": err == nil,
	})
	return result, err
}

func (d *Dispatcher) emit(ctx context.Context, eventType string, data map[string]any) {
	if d.events == nil {
		return
	}
	d.events.Emit(ctx, eventType, data)
}
