// Package skills loads Perlica's local skill registry (*.skill.json files),
// selects skills for a turn by trigger match, and assembles their system
// prompts into context. Selected skills are handed to internal/staticsync
// for rendering into a provider's own skill markdown tree.
package skills

import (
	"fmt"
	"strings"
)

// SkillFileSuffix is the filename suffix a skill definition must carry to be
// discovered by SkillLoader.
const SkillFileSuffix = ".skill.json"

// Requires names the binaries, environment variables, and config paths a
// skill needs before it is eligible to run — the structured form of the
// free-form "gates" object in a skill definition.
type Requires struct {
	Bins    []string `json:"bins,omitempty"`
	AnyBins []string `json:"any_bins,omitempty"`
	Env     []string `json:"env,omitempty"`
	Config  []string `json:"config,omitempty"`
}

// Empty reports whether no requirement is set, i.e. the skill is eligible
// unconditionally.
func (r *Requires) Empty() bool {
	return r == nil || (len(r.Bins) == 0 && len(r.AnyBins) == 0 && len(r.Env) == 0 && len(r.Config) == 0)
}

// SkillSpec is one skill definition loaded from a *.skill.json file.
type SkillSpec struct {
	SkillID      string
	Name         string
	Description  string
	Triggers     []string
	Priority     int
	SystemPrompt string
	Gates        Requires
	SourcePath   string
}

// ConfigKey identifies a skill for config overrides and gating caches.
func (s *SkillSpec) ConfigKey() string {
	return s.SkillID
}

// Override is a per-skill configuration override, keyed by SkillID.
type Override struct {
	Enabled *bool
	Env     map[string]string
}

// rawSkillSpec mirrors the on-disk JSON shape, where gates arrives as a
// free-form object (matching the original Python's Dict[str, Any]) rather
// than the typed Requires struct used internally.
type rawSkillSpec struct {
	SkillID      string         `json:"skill_id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Triggers     []string       `json:"triggers"`
	Priority     int            `json:"priority"`
	SystemPrompt string         `json:"system_prompt"`
	Gates        map[string]any `json:"gates"`
}

// fromRaw validates a decoded skill.json payload and produces a SkillSpec,
// mirroring skills/schema.py's SkillSpec.from_dict.
func fromRaw(raw rawSkillSpec, sourcePath string) (*SkillSpec, error) {
	skillID := strings.TrimSpace(raw.SkillID)
	if skillID == "" {
		return nil, fmt.Errorf("skill_id is required")
	}

	name := strings.TrimSpace(raw.Name)
	if name == "" {
		name = skillID
	}

	if raw.Triggers == nil {
		return nil, fmt.Errorf("triggers must be a list")
	}
	triggers := make([]string, 0, len(raw.Triggers))
	for _, t := range raw.Triggers {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		triggers = append(triggers, t)
	}

	gates, err := gatesFromRaw(raw.Gates)
	if err != nil {
		return nil, err
	}

	return &SkillSpec{
		SkillID:      skillID,
		Name:         name,
		Description:  raw.Description,
		Triggers:     triggers,
		Priority:     raw.Priority,
		SystemPrompt: raw.SystemPrompt,
		Gates:        gates,
		SourcePath:   sourcePath,
	}, nil
}

// gatesFromRaw maps the free-form gates object onto the typed Requires
// shape. Only the recognized keys (bins, any_bins, env, config) are
// honored; unrecognized keys are ignored rather than rejected, since the
// original's gates field was never validated against a fixed key set.
func gatesFromRaw(raw map[string]any) (Requires, error) {
	if raw == nil {
		return Requires{}, nil
	}
	var req Requires
	var err error
	if req.Bins, err = stringListFrom(raw, "bins"); err != nil {
		return Requires{}, err
	}
	if req.AnyBins, err = stringListFrom(raw, "any_bins"); err != nil {
		return Requires{}, err
	}
	if req.Env, err = stringListFrom(raw, "env"); err != nil {
		return Requires{}, err
	}
	if req.Config, err = stringListFrom(raw, "config"); err != nil {
		return Requires{}, err
	}
	return req, nil
}

func stringListFrom(raw map[string]any, key string) ([]string, error) {
	val, ok := raw[key]
	if !ok || val == nil {
		return nil, nil
	}
	list, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("gates.%s must be a list", key)
	}
	out := make([]string, 0, len(list))
	for _, entry := range list {
		s, ok := entry.(string)
		if !ok {
			return nil, fmt.Errorf("gates.%s entries must be strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}
