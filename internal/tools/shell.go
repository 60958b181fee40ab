package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/perlica/perlica/internal/dispatcher"
)

const ShellToolID = "shell.exec"

// safeEnvKeys is the environment allowlist passed to the subprocess; every
// other variable in the parent process's environment is withheld.
var safeEnvKeys = []string{"PATH", "HOME", "USER", "LOGNAME", "LANG", "LC_ALL", "TERM", "TMPDIR"}

// ShellTool runs a shell command in a subprocess. It must only ever be
// invoked via the Dispatcher — Execute refuses to run otherwise, which is
// what backs the "direct execution forbidden" invariant.
type ShellTool struct {
	// WorkspaceDir is the subprocess's working directory. Defaults to the
	// process's own cwd when empty.
	WorkspaceDir string
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	if !dispatcher.IsDispatchActive(ctx) {
		return nil, fmt.Errorf("direct_execution_forbidden")
	}

	cmd, _ := args["cmd"].(string)
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return nil, fmt.Errorf("missing_cmd")
	}

	timeoutSec := 15
	if v, ok := args["timeout_sec"].(int); ok && v > 0 {
		timeoutSec = v
	}

	cwd := t.WorkspaceDir
	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
	defer cancel()

	execCmd := exec.CommandContext(runCtx, "sh", "-c", cmd)
	execCmd.Dir = cwd
	execCmd.Env = filteredEnv()

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return map[string]any{"timeout_sec": timeoutSec, "cwd": cwd}, fmt.Errorf("timeout")
	}

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		return nil, fmt.Errorf("shell.exec: %w", err)
	}

	result := map[string]any{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
		"cwd":       cwd,
	}
	if exitCode != 0 {
		return result, fmt.Errorf("non_zero_exit")
	}
	return result, nil
}

func filteredEnv() []string {
	env := make([]string, 0, len(safeEnvKeys))
	for _, key := range safeEnvKeys {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}
	return env
}

var _ dispatcher.Tool = (*ShellTool)(nil)
