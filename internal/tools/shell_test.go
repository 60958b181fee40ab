package tools

import (
	"context"
	"runtime"
	"strings"
	"testing"

	"github.com/perlica/perlica/internal/approval"
	"github.com/perlica/perlica/internal/dispatcher"
	"github.com/perlica/perlica/internal/policy"
)

type noopEvents struct{}

func (noopEvents) Emit(ctx context.Context, eventType string, data map[string]any) {}

// dispatchExecute drives tool through a real dispatcher.Dispatch call with an
// always_allow policy, so the tool observes a genuine DISPATCH_ACTIVE context.
func dispatchExecute(t *testing.T, toolID string, tool dispatcher.Tool, args map[string]any) (map[string]any, error) {
	t.Helper()
	reg := NewRegistry()
	reg.Register(toolID, tool)
	pol := policy.NewStore()
	pol.SetToolPolicy(toolID, policy.AlwaysAllow)
	d := dispatcher.New(reg, pol, approval.NewStore(), noopEvents{})
	return d.Dispatch(context.Background(), dispatcher.Call{ToolCallID: "c1", ToolID: toolID, Args: args}, nil)
}

func TestShellToolRefusesWithoutDispatch(t *testing.T) {
	tool := &ShellTool{}
	_, err := tool.Execute(context.Background(), map[string]any{"cmd": "echo hi"})
	if err == nil || err.Error() != "direct_execution_forbidden" {
		t.Fatalf("expected direct_execution_forbidden, got %v", err)
	}
}

func TestShellToolRunsCommandWhenDispatched(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell.exec targets POSIX shells")
	}
	out, err := dispatchExecute(t, "shell.exec", &ShellTool{}, map[string]any{"cmd": "echo hello"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if stdout, _ := out["stdout"].(string); strings.TrimSpace(stdout) != "hello" {
		t.Fatalf("expected stdout %q, got %q", "hello", stdout)
	}
	if out["exit_code"] != 0 {
		t.Fatalf("expected exit_code 0, got %v", out["exit_code"])
	}
}

func TestShellToolMissingCmd(t *testing.T) {
	_, err := dispatchExecute(t, "shell.exec", &ShellTool{}, map[string]any{})
	if err == nil || err.Error() != "missing_cmd" {
		t.Fatalf("expected missing_cmd, got %v", err)
	}
}

func TestShellToolNonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell.exec targets POSIX shells")
	}
	out, err := dispatchExecute(t, "shell.exec", &ShellTool{}, map[string]any{"cmd": "exit 3"})
	if err == nil || err.Error() != "non_zero_exit" {
		t.Fatalf("expected non_zero_exit, got %v", err)
	}
	if out["exit_code"] != 3 {
		t.Fatalf("expected exit_code 3, got %v", out["exit_code"])
	}
}

func TestShellToolTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell.exec targets POSIX shells")
	}
	out, err := dispatchExecute(t, "shell.exec", &ShellTool{}, map[string]any{"cmd": "sleep 2", "timeout_sec": 1})
	if err == nil || err.Error() != "timeout" {
		t.Fatalf("expected timeout, got %v", err)
	}
	if out["timeout_sec"] != 1 {
		t.Fatalf("expected timeout_sec 1, got %v", out["timeout_sec"])
	}
}

func TestShellToolUsesWorkspaceDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell.exec targets POSIX shells")
	}
	dir := t.TempDir()
	out, err := dispatchExecute(t, "shell.exec", &ShellTool{WorkspaceDir: dir}, map[string]any{"cmd": "pwd"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if stdout, _ := out["stdout"].(string); strings.TrimSpace(stdout) != dir {
		t.Fatalf("expected pwd %q, got %q", dir, stdout)
	}
}

func TestShellToolFiltersEnvironment(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell.exec targets POSIX shells")
	}
	t.Setenv("PERLICA_SECRET_TEST_VAR", "top-secret")
	out, err := dispatchExecute(t, "shell.exec", &ShellTool{}, map[string]any{"cmd": "echo $PERLICA_SECRET_TEST_VAR"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if stdout, _ := out["stdout"].(string); strings.TrimSpace(stdout) != "" {
		t.Fatalf("expected unlisted env var to be withheld, got %q", stdout)
	}
}
