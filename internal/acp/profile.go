package acp

import "fmt"

const (
	DefaultProviderID = "claude"
	OpenCodeProviderID = "opencode"

	ToolExecutionProviderManaged = "provider_managed"
	InjectionFailureDegrade      = "degrade"
)

var AllowedProviderIDs = map[string]bool{
	DefaultProviderID:  true,
	OpenCodeProviderID: true,
}

// Profile is the operator-configured description of one provider the
// runner can drive.
type Profile struct {
	ProviderID             string
	AdapterCommand         string
	AdapterArgs            []string
	EnvAllowlist           []string
	ToolExecutionMode      string
	InjectionFailurePolicy string
	ContextWindow          int
	ContextBudgetRatio     float64

	ConnectTimeoutSec    int
	RequestTimeoutSec    int
	MaxRetries           int
	Backoff              string // "exponential+jitter" or "none"
	CircuitBreakerEnabled bool
}

// DefaultProfiles returns the built-in profiles for the claude and opencode
// ACP adapters, matching the original implementation's default adapter
// commands.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			ProviderID:             DefaultProviderID,
			AdapterCommand:         "python3",
			AdapterArgs:            []string{"-m", "perlica.providers.acp_adapter_server"},
			ToolExecutionMode:      ToolExecutionProviderManaged,
			InjectionFailurePolicy: InjectionFailureDegrade,
			ContextWindow:          200000,
			ContextBudgetRatio:     0.75,
			ConnectTimeoutSec:      10,
			RequestTimeoutSec:      120,
			MaxRetries:             3,
			Backoff:                "exponential+jitter",
			CircuitBreakerEnabled:  true,
		},
		{
			ProviderID:             OpenCodeProviderID,
			AdapterCommand:         "opencode",
			AdapterArgs:            []string{"acp"},
			ToolExecutionMode:      ToolExecutionProviderManaged,
			InjectionFailurePolicy: InjectionFailureDegrade,
			ContextWindow:          128000,
			ContextBudgetRatio:     0.75,
			ConnectTimeoutSec:      10,
			RequestTimeoutSec:      120,
			MaxRetries:             3,
			Backoff:                "exponential+jitter",
			CircuitBreakerEnabled:  true,
		},
	}
}

func Validate(p Profile) error {
	if !AllowedProviderIDs[p.ProviderID] {
		return fmt.Errorf("acp: unknown provider id %q", p.ProviderID)
	}
	if p.AdapterCommand == "" {
		return fmt.Errorf("acp: provider %q missing adapter command", p.ProviderID)
	}
	return nil
}
