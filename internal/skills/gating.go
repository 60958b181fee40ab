package skills

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// GatingContext provides the environment facts a skill's gates are checked
// against.
type GatingContext struct {
	OS string

	PathBins map[string]bool
	EnvVars  map[string]bool

	ConfigValues map[string]any
	Overrides    map[string]*Override
}

// NewGatingContext creates a GatingContext for the current process
// environment.
func NewGatingContext(overrides map[string]*Override, configValues map[string]any) *GatingContext {
	return &GatingContext{
		OS:           runtime.GOOS,
		PathBins:     make(map[string]bool),
		EnvVars:      make(map[string]bool),
		ConfigValues: configValues,
		Overrides:    overrides,
	}
}

// CheckBinary reports whether a binary exists on PATH, caching the result.
func (c *GatingContext) CheckBinary(name string) bool {
	if result, ok := c.PathBins[name]; ok {
		return result
	}
	_, err := exec.LookPath(name)
	result := err == nil
	c.PathBins[name] = result
	return result
}

// CheckEnv reports whether an environment variable is set.
func (c *GatingContext) CheckEnv(name string) bool {
	if result, ok := c.EnvVars[name]; ok {
		return result
	}
	_, exists := os.LookupEnv(name)
	c.EnvVars[name] = exists
	return exists
}

// CheckEnvOrConfig reports whether an env var is set directly, or supplied
// through a skill's config override.
func (c *GatingContext) CheckEnvOrConfig(skillKey, envVar string) bool {
	if c.CheckEnv(envVar) {
		return true
	}
	if override, ok := c.Overrides[skillKey]; ok {
		if _, ok := override.Env[envVar]; ok {
			return true
		}
	}
	return false
}

// CheckConfig reports whether a dotted config path resolves to a truthy
// value, e.g. "tools.browser.enabled".
func (c *GatingContext) CheckConfig(path string) bool {
	if c.ConfigValues == nil {
		return false
	}
	parts := strings.Split(path, ".")
	var current any = c.ConfigValues
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		current = m[part]
	}
	return isTruthy(current)
}

func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != "" && val != "false" && val != "0"
	case int, int8, int16, int32, int64:
		return val != 0
	case uint, uint8, uint16, uint32, uint64:
		return val != 0
	case float32, float64:
		return val != 0
	default:
		return true
	}
}

// EligibilityResult is the outcome of checking a skill's gates.
type EligibilityResult struct {
	Eligible bool
	Reason   string
}

// isEnabled reports whether the skill is enabled by config override,
// defaulting to enabled.
func isEnabled(s *SkillSpec, overrides map[string]*Override) bool {
	override, ok := overrides[s.ConfigKey()]
	if !ok || override.Enabled == nil {
		return true
	}
	return *override.Enabled
}

// CheckEligibility evaluates a skill's gates against a GatingContext.
func CheckEligibility(s *SkillSpec, ctx *GatingContext) EligibilityResult {
	if !isEnabled(s, ctx.Overrides) {
		return EligibilityResult{false, "disabled in config"}
	}

	if s.Gates.Empty() {
		return EligibilityResult{true, ""}
	}

	for _, bin := range s.Gates.Bins {
		if !ctx.CheckBinary(bin) {
			return EligibilityResult{false, fmt.Sprintf("missing required binary: %s", bin)}
		}
	}

	if len(s.Gates.AnyBins) > 0 {
		found := false
		for _, bin := range s.Gates.AnyBins {
			if ctx.CheckBinary(bin) {
				found = true
				break
			}
		}
		if !found {
			return EligibilityResult{false, fmt.Sprintf("requires one of: %v", s.Gates.AnyBins)}
		}
	}

	for _, env := range s.Gates.Env {
		if !ctx.CheckEnvOrConfig(s.ConfigKey(), env) {
			return EligibilityResult{false, fmt.Sprintf("missing environment variable: %s", env)}
		}
	}

	for _, path := range s.Gates.Config {
		if !ctx.CheckConfig(path) {
			return EligibilityResult{false, fmt.Sprintf("config not truthy: %s", path)}
		}
	}

	return EligibilityResult{true, ""}
}

// FilterEligible filters skills to only those whose gates pass.
func FilterEligible(specs []*SkillSpec, ctx *GatingContext) []*SkillSpec {
	var eligible []*SkillSpec
	for _, s := range specs {
		if CheckEligibility(s, ctx).Eligible {
			eligible = append(eligible, s)
		}
	}
	return eligible
}

// GetIneligibleReasons returns the reason each ineligible skill was
// excluded, keyed by skill id.
func GetIneligibleReasons(specs []*SkillSpec, ctx *GatingContext) map[string]string {
	reasons := make(map[string]string)
	for _, s := range specs {
		result := CheckEligibility(s, ctx)
		if !result.Eligible {
			reasons[s.SkillID] = result.Reason
		}
	}
	return reasons
}
