package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/perlica/perlica/internal/approval"
	"github.com/perlica/perlica/internal/policy"
)

type fakeTool struct {
	called bool
	sawDispatchActive bool
}

func (f *fakeTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	f.called = true
	f.sawDispatchActive = IsDispatchActive(ctx)
	return map[string]any{"ok": true}, nil
}

type fakeRegistry struct {
	tools map[string]Tool
}

func (r *fakeRegistry) Get(id string) (Tool, bool) {
	t, ok := r.tools[id]
	return t, ok
}

type noopSink struct{}

func (noopSink) Emit(ctx context.Context, eventType string, data map[string]any) {}

func TestDispatchAlwaysAllowExecutesDirectly(t *testing.T) {
	tool := &fakeTool{}
	reg := &fakeRegistry{tools: map[string]Tool{"shell.exec": tool}}
	pol := policy.NewStore()
	pol.SetToolPolicy("shell.exec", policy.AlwaysAllow)
	d := New(reg, pol, approval.NewStore(), noopSink{})

	_, err := d.Dispatch(context.Background(), Call{ToolCallID: "c1", ToolID: "shell.exec", RiskTier: policy.RiskHigh}, nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !tool.called {
		t.Fatalf("expected tool.Execute to be called")
	}
	if !tool.sawDispatchActive {
		t.Fatalf("expected tool to observe DISPATCH_ACTIVE during dispatched execution")
	}
}

func TestDispatchHardBlocklistOverridesAlwaysAllow(t *testing.T) {
	tool := &fakeTool{}
	reg := &fakeRegistry{tools: map[string]Tool{"shell.exec": tool}}
	pol := policy.NewStore()
	pol.SetToolPolicy("shell.exec", policy.AlwaysAllow)
	d := New(reg, pol, approval.NewStore(), noopSink{})

	_, err := d.Dispatch(context.Background(), Call{
		ToolCallID: "c1", ToolID: "shell.exec", RiskTier: policy.RiskHigh, ShellCommand: "rm -rf /",
	}, nil)
	if !errors.Is(err, ErrPolicyBlocked) {
		t.Fatalf("expected ErrPolicyBlocked, got %v", err)
	}
	if tool.called {
		t.Fatalf("expected tool not to execute when blocked")
	}
}

type fakeResolver struct {
	decision ResolverDecision
	err      error
	calls    int
}

func (f *fakeResolver) Resolve(ctx context.Context, call Call) (ResolverDecision, error) {
	f.calls++
	return f.decision, f.err
}

func TestDispatchAskConsultsResolverThenExecutes(t *testing.T) {
	tool := &fakeTool{}
	reg := &fakeRegistry{tools: map[string]Tool{"fs.write": tool}}
	pol := policy.NewStore() // default Ask
	d := New(reg, pol, approval.NewStore(), noopSink{})
	resolver := &fakeResolver{decision: ResolverDecision{Allow: true}}
	d.WithResolver(resolver)

	_, err := d.Dispatch(context.Background(), Call{ToolCallID: "c1", ToolID: "fs.write", RiskTier: policy.RiskMedium}, nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !tool.called {
		t.Fatalf("expected tool to execute after resolver granted")
	}
	if resolver.calls != 1 {
		t.Fatalf("expected resolver to be consulted once, got %d", resolver.calls)
	}
}

func TestDispatchAskResolverDenyBlocksExecution(t *testing.T) {
	tool := &fakeTool{}
	reg := &fakeRegistry{tools: map[string]Tool{"fs.write": tool}}
	pol := policy.NewStore()
	d := New(reg, pol, approval.NewStore(), noopSink{})
	d.WithResolver(&fakeResolver{decision: ResolverDecision{Allow: false, Reason: "user declined"}})

	_, err := d.Dispatch(context.Background(), Call{ToolCallID: "c1", ToolID: "fs.write", RiskTier: policy.RiskMedium}, nil)
	if !errors.Is(err, ErrApprovalDenied) {
		t.Fatalf("expected ErrApprovalDenied, got %v", err)
	}
	if tool.called {
		t.Fatalf("expected tool not to execute when resolver denies")
	}
}

func TestDispatchAskResolverPersistsPolicy(t *testing.T) {
	tool := &fakeTool{}
	reg := &fakeRegistry{tools: map[string]Tool{"fs.write": tool}}
	pol := policy.NewStore()
	d := New(reg, pol, approval.NewStore(), noopSink{})
	d.WithResolver(&fakeResolver{decision: ResolverDecision{Allow: true, PersistPolicy: policy.AlwaysAllow}})

	if _, err := d.Dispatch(context.Background(), Call{ToolCallID: "c1", ToolID: "fs.write", RiskTier: policy.RiskMedium}, nil); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got := pol.Resolve("fs.write", policy.RiskMedium); got != policy.AlwaysAllow {
		t.Fatalf("expected persisted policy AlwaysAllow, got %v", got)
	}
}

func TestDispatchAskAssumeYesSkipsResolver(t *testing.T) {
	tool := &fakeTool{}
	reg := &fakeRegistry{tools: map[string]Tool{"fs.write": tool}}
	pol := policy.NewStore()
	d := New(reg, pol, approval.NewStore(), noopSink{})
	resolver := &fakeResolver{decision: ResolverDecision{Allow: false}}
	d.WithResolver(resolver)

	_, err := d.Dispatch(context.Background(), Call{
		ToolCallID: "c1", ToolID: "fs.write", RiskTier: policy.RiskMedium, AssumeYes: true,
	}, nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !tool.called {
		t.Fatalf("expected tool to execute under assume_yes")
	}
	if resolver.calls != 0 {
		t.Fatalf("expected resolver not to be consulted when assume_yes is set, got %d calls", resolver.calls)
	}
}

func TestDispatchAskWithoutResolverDeniesNonInteractively(t *testing.T) {
	tool := &fakeTool{}
	reg := &fakeRegistry{tools: map[string]Tool{"fs.write": tool}}
	pol := policy.NewStore() // default Ask, no resolver attached
	d := New(reg, pol, approval.NewStore(), noopSink{})

	_, err := d.Dispatch(context.Background(), Call{ToolCallID: "c1", ToolID: "fs.write", RiskTier: policy.RiskMedium}, nil)
	if !errors.Is(err, ErrApprovalRequiredNonInteractive) {
		t.Fatalf("expected ErrApprovalRequiredNonInteractive, got %v", err)
	}
	if tool.called {
		t.Fatalf("expected tool not to execute without assume_yes or a resolver")
	}
}

func TestDispatchUnknownToolErrors(t *testing.T) {
	reg := &fakeRegistry{tools: map[string]Tool{}}
	d := New(reg, policy.NewStore(), approval.NewStore(), noopSink{})
	_, err := d.Dispatch(context.Background(), Call{ToolCallID: "c1", ToolID: "nope"}, nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestDispatchAlwaysDenyRejectsWithoutExecuting(t *testing.T) {
	tool := &fakeTool{}
	reg := &fakeRegistry{tools: map[string]Tool{"shell.exec": tool}}
	pol := policy.NewStore()
	pol.SetToolPolicy("shell.exec", policy.AlwaysDeny)
	d := New(reg, pol, approval.NewStore(), noopSink{})

	_, err := d.Dispatch(context.Background(), Call{ToolCallID: "c1", ToolID: "shell.exec"}, nil)
	if !errors.Is(err, ErrApprovalDenied) {
		t.Fatalf("expected ErrApprovalDenied, got %v", err)
	}
	if tool.called {
		t.Fatalf("expected tool not to execute when always_deny")
	}
}
