package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "perlica.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadAppliesTypedDefaults(t *testing.T) {
	path := writeConfig(t, `
providers:
  claude:
    enabled: true
    adapter_command: claude-acp
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Runtime.MaxToolCalls != 40 {
		t.Fatalf("expected default max_tool_calls 40, got %d", cfg.Runtime.MaxToolCalls)
	}
	if cfg.Runtime.ContextBudgetRatio != 0.75 {
		t.Fatalf("expected default context_budget_ratio 0.75, got %v", cfg.Runtime.ContextBudgetRatio)
	}
	p := cfg.Providers["claude"]
	if p.ToolExecutionMode != "provider_managed" {
		t.Fatalf("expected default tool_execution_mode, got %q", p.ToolExecutionMode)
	}
	if p.ACPBackoff != "exponential+jitter" {
		t.Fatalf("expected default acp_backoff, got %q", p.ACPBackoff)
	}
	if p.ACPMaxRetries != 3 {
		t.Fatalf("expected default acp_max_retries 3, got %d", p.ACPMaxRetries)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
runtime:
  max_tool_calls: 10
  extra_unknown_field: true
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadRejectsLegacyBackendKey(t *testing.T) {
	path := writeConfig(t, `
providers:
  claude:
    backend: anthropic
`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected error for legacy backend key")
	}
	if !strings.Contains(err.Error(), "backend") {
		t.Fatalf("expected error to mention backend, got %v", err)
	}
}

func TestLoadRejectsLegacyFallbackKey(t *testing.T) {
	path := writeConfig(t, `
providers:
  claude:
    fallback: opencode
`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected error for legacy fallback key")
	}
	if !strings.Contains(err.Error(), "fallback") {
		t.Fatalf("expected error to mention fallback, got %v", err)
	}
}

func TestLoadRejectsInvalidToolExecutionMode(t *testing.T) {
	path := writeConfig(t, `
providers:
  claude:
    adapter_command: claude-acp
    tool_execution_mode: direct
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "tool_execution_mode") {
		t.Fatalf("expected tool_execution_mode validation error, got %v", err)
	}
}

func TestLoadRejectsInvalidInjectionFailurePolicy(t *testing.T) {
	path := writeConfig(t, `
providers:
  claude:
    adapter_command: claude-acp
    injection_failure_policy: ignore
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "injection_failure_policy") {
		t.Fatalf("expected injection_failure_policy validation error, got %v", err)
	}
}

func TestLoadRejectsContextBudgetRatioOutOfRange(t *testing.T) {
	path := writeConfig(t, `
runtime:
  context_budget_ratio: 1.5
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "context_budget_ratio") {
		t.Fatalf("expected context_budget_ratio validation error, got %v", err)
	}
}

func TestLoadFallsBackToDefaultLogFormat(t *testing.T) {
	path := writeConfig(t, `
runtime:
  logs:
    format: plaintext
    redaction: aggressive
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Runtime.Logs.Format != "jsonl" {
		t.Fatalf("expected fallback to jsonl, got %q", cfg.Runtime.Logs.Format)
	}
	if cfg.Runtime.Logs.Redaction != "default" {
		t.Fatalf("expected fallback to default redaction, got %q", cfg.Runtime.Logs.Redaction)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.yaml")
	if err := os.WriteFile(basePath, []byte(`
providers:
  claude:
    adapter_env_allowlist: [PATH, HOME]
`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	mainPath := filepath.Join(dir, "perlica.yaml")
	if err := os.WriteFile(mainPath, []byte(`
$include: base.yaml
providers:
  claude:
    adapter_command: claude-acp
`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	p := cfg.Providers["claude"]
	if p.AdapterCommand != "claude-acp" {
		t.Fatalf("expected adapter_command from main file, got %q", p.AdapterCommand)
	}
	if len(p.AdapterEnvAllowlist) != 2 {
		t.Fatalf("expected adapter_env_allowlist from included file, got %v", p.AdapterEnvAllowlist)
	}
}

func TestLoadResolvesTomlInclude(t *testing.T) {
	dir := t.TempDir()
	overridePath := filepath.Join(dir, "providers.toml")
	if err := os.WriteFile(overridePath, []byte(`
[providers.claude]
adapter_command = "claude-acp"
acp_max_retries = 5
`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	mainPath := filepath.Join(dir, "perlica.yaml")
	if err := os.WriteFile(mainPath, []byte(`
$include: providers.toml
`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	p := cfg.Providers["claude"]
	if p.AdapterCommand != "claude-acp" || p.ACPMaxRetries != 5 {
		t.Fatalf("expected TOML override to populate provider config, got %+v", p)
	}
}

func TestLoadRequiresAdapterCommandWhenEnabled(t *testing.T) {
	path := writeConfig(t, `
providers:
  claude:
    enabled: true
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "adapter_command") {
		t.Fatalf("expected adapter_command validation error, got %v", err)
	}
}
