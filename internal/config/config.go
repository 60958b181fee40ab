// Package config loads and validates Perlica's runtime and provider
// configuration: YAML or JSON5, with $include resolution (loader.go),
// environment variable expansion, legacy-key rejection, and typed defaults.
package config

import (
	"fmt"
)

// Config is the root configuration structure.
type Config struct {
	Runtime   RuntimeConfig             `yaml:"runtime"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// RuntimeConfig controls kernel-wide behavior: tool-call budget, context
// compaction triggers, and debug logging.
type RuntimeConfig struct {
	MaxToolCalls           int            `yaml:"max_tool_calls"`
	ContextBudgetRatio     float64        `yaml:"context_budget_ratio"`
	MaxSummaryAttempts     int            `yaml:"max_summary_attempts"`
	ProviderContextWindows map[string]int `yaml:"provider_context_windows"`
	Logs                   LogsConfig     `yaml:"logs"`
}

// LogsConfig configures the rotating redacted debug-log JSONL sink.
// Invalid Format/Redaction values fall back to their defaults rather than
// failing the load, per spec.md §6.
type LogsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Format       string `yaml:"format"`    // jsonl
	MaxFileBytes int64  `yaml:"max_file_bytes"`
	MaxFiles     int    `yaml:"max_files"`
	Redaction    string `yaml:"redaction"` // none|default
}

// ProviderConfig describes one ACP subprocess provider. Legacy keys
// "backend" and "fallback" are intentionally NOT modeled as fields here:
// their presence is detected and rejected explicitly in rejectLegacyKeys
// before decode, so the operator gets a pointed error instead of a generic
// "unknown field" complaint.
type ProviderConfig struct {
	Enabled                  bool     `yaml:"enabled"`
	AdapterCommand           string   `yaml:"adapter_command"`
	AdapterArgs              []string `yaml:"adapter_args"`
	AdapterEnvAllowlist      []string `yaml:"adapter_env_allowlist"`
	ACPConnectTimeoutSec     int      `yaml:"acp_connect_timeout_sec"`
	ACPRequestTimeoutSec     int      `yaml:"acp_request_timeout_sec"`
	ACPMaxRetries            int      `yaml:"acp_max_retries"`
	ACPBackoff               string   `yaml:"acp_backoff"`
	ACPCircuitBreakerEnabled bool     `yaml:"acp_circuit_breaker_enabled"`
	SupportsMCPConfig        bool     `yaml:"supports_mcp_config"`
	SupportsSkillConfig      bool     `yaml:"supports_skill_config"`
	ToolExecutionMode        string   `yaml:"tool_execution_mode"`
	InjectionFailurePolicy   string   `yaml:"injection_failure_policy"`
}

var legacyProviderKeys = []string{"backend", "fallback"}

// Error reports a load-time configuration problem, distinct from a parse
// error: the document was well-formed but the content is invalid, matching
// spec.md §7's ConfigError kind.
type Error struct {
	Path   string
	Reason string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config: %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("config: %s", e.Reason)
}

// Load reads path (and any $include targets), rejects legacy keys, applies
// typed defaults, and validates the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := rejectLegacyKeys(raw); err != nil {
		return nil, err
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// rejectLegacyKeys scans every providers.<id> entry for the retired
// "backend"/"fallback" keys and fails the load with a pointed message,
// rather than letting strict yaml decoding report them as merely unknown.
func rejectLegacyKeys(raw map[string]any) error {
	providersRaw, ok := raw["providers"].(map[string]any)
	if !ok {
		return nil
	}
	for id, entry := range providersRaw {
		entryMap, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		for _, legacyKey := range legacyProviderKeys {
			if _, present := entryMap[legacyKey]; present {
				return &Error{
					Path:   fmt.Sprintf("providers.%s.%s", id, legacyKey),
					Reason: fmt.Sprintf("legacy key %q is no longer supported; configure adapter_command/adapter_args instead", legacyKey),
				}
			}
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Runtime.MaxToolCalls <= 0 {
		cfg.Runtime.MaxToolCalls = 40
	}
	if cfg.Runtime.ContextBudgetRatio <= 0 {
		cfg.Runtime.ContextBudgetRatio = 0.75
	}
	if cfg.Runtime.MaxSummaryAttempts <= 0 {
		cfg.Runtime.MaxSummaryAttempts = 3
	}
	if cfg.Runtime.ProviderContextWindows == nil {
		cfg.Runtime.ProviderContextWindows = map[string]int{}
	}

	applyLogsDefaults(&cfg.Runtime.Logs)

	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	for id, p := range cfg.Providers {
		cfg.Providers[id] = applyProviderDefaults(p)
	}
}

// applyLogsDefaults falls back to defaults on invalid Format/Redaction
// values instead of rejecting the load, per spec.md §6.
func applyLogsDefaults(logs *LogsConfig) {
	if logs.Format != "jsonl" {
		logs.Format = "jsonl"
	}
	if logs.Redaction != "none" && logs.Redaction != "default" {
		logs.Redaction = "default"
	}
	if logs.MaxFileBytes <= 0 {
		logs.MaxFileBytes = 10 * 1024 * 1024
	}
	if logs.MaxFiles <= 0 {
		logs.MaxFiles = 5
	}
}

func applyProviderDefaults(p ProviderConfig) ProviderConfig {
	if p.ACPConnectTimeoutSec <= 0 {
		p.ACPConnectTimeoutSec = 10
	}
	if p.ACPRequestTimeoutSec <= 0 {
		p.ACPRequestTimeoutSec = 120
	}
	if p.ACPMaxRetries <= 0 {
		p.ACPMaxRetries = 3
	}
	if p.ACPBackoff == "" {
		p.ACPBackoff = "exponential+jitter"
	}
	if p.ToolExecutionMode == "" {
		p.ToolExecutionMode = "provider_managed"
	}
	if p.InjectionFailurePolicy == "" {
		p.InjectionFailurePolicy = "degrade"
	}
	return p
}

func validateConfig(cfg *Config) error {
	if cfg.Runtime.ContextBudgetRatio <= 0 || cfg.Runtime.ContextBudgetRatio > 1 {
		return &Error{Path: "runtime.context_budget_ratio", Reason: "must be in (0, 1]"}
	}
	for id, p := range cfg.Providers {
		if p.ToolExecutionMode != "provider_managed" {
			return &Error{Path: fmt.Sprintf("providers.%s.tool_execution_mode", id), Reason: "only \"provider_managed\" is supported"}
		}
		if p.InjectionFailurePolicy != "degrade" && p.InjectionFailurePolicy != "fail" {
			return &Error{Path: fmt.Sprintf("providers.%s.injection_failure_policy", id), Reason: "must be \"degrade\" or \"fail\""}
		}
		if p.Enabled && p.AdapterCommand == "" {
			return &Error{Path: fmt.Sprintf("providers.%s.adapter_command", id), Reason: "required when enabled"}
		}
	}
	return nil
}
