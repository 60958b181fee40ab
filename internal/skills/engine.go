package skills

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Selection is the outcome of matching a turn's input text against the
// registered skills.
type Selection struct {
	Selected []*SkillSpec
	// Skipped maps skill id to the reason it was not selected:
	// "no_triggers" or "trigger_not_matched".
	Skipped map[string]string
}

// Engine holds the loaded skill registry and answers selection queries
// against it. Reload is explicit; the registry does not watch the
// filesystem on its own.
type Engine struct {
	loader *SkillLoader

	mu       sync.RWMutex
	skills   map[string]*SkillSpec
	errors   map[string]string
	eligible map[string]*SkillSpec

	gatingCtx *GatingContext
}

// NewEngine builds an Engine over the given search directories.
func NewEngine(dirs []string, overrides map[string]*Override, configValues map[string]any) *Engine {
	return &Engine{
		loader:    NewSkillLoader(dirs...),
		skills:    make(map[string]*SkillSpec),
		errors:    make(map[string]string),
		eligible:  make(map[string]*SkillSpec),
		gatingCtx: NewGatingContext(overrides, configValues),
	}
}

// Reload re-scans the search directories and recomputes the eligible set.
func (e *Engine) Reload() {
	report := e.loader.Load()

	all := make([]*SkillSpec, 0, len(report.Skills))
	for _, s := range report.Skills {
		all = append(all, s)
	}
	eligible := FilterEligible(all, e.gatingCtx)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.skills = report.Skills
	e.errors = report.Errors
	e.eligible = make(map[string]*SkillSpec, len(eligible))
	for _, s := range eligible {
		e.eligible[s.SkillID] = s
	}
}

// ListSkills returns every eligible skill, sorted by skill id.
func (e *Engine) ListSkills() []*SkillSpec {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*SkillSpec, 0, len(e.eligible))
	for _, s := range e.eligible {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SkillID < out[j].SkillID })
	return out
}

// ListErrors returns the load error for every file that failed to parse,
// keyed by file path.
func (e *Engine) ListErrors() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]string, len(e.errors))
	for k, v := range e.errors {
		out[k] = v
	}
	return out
}

// IneligibleReasons returns the gating reason for every discovered-but-not-
// eligible skill.
func (e *Engine) IneligibleReasons() map[string]string {
	e.mu.RLock()
	all := make([]*SkillSpec, 0, len(e.skills))
	for _, s := range e.skills {
		all = append(all, s)
	}
	ctx := e.gatingCtx
	e.mu.RUnlock()
	return GetIneligibleReasons(all, ctx)
}

// Select matches text against every eligible skill's triggers and returns
// the matched set, ordered by (-priority, skill_id), along with why every
// unmatched skill was skipped. A skill with no triggers never matches.
func (e *Engine) Select(text string) Selection {
	query := strings.ToLower(text)

	e.mu.RLock()
	candidates := make([]*SkillSpec, 0, len(e.eligible))
	for _, s := range e.eligible {
		candidates = append(candidates, s)
	}
	e.mu.RUnlock()

	var matched []*SkillSpec
	skipped := make(map[string]string)

	for _, s := range candidates {
		if len(s.Triggers) == 0 {
			skipped[s.SkillID] = "no_triggers"
			continue
		}
		hit := false
		for _, trigger := range s.Triggers {
			if strings.Contains(query, trigger) {
				hit = true
				break
			}
		}
		if !hit {
			skipped[s.SkillID] = "trigger_not_matched"
			continue
		}
		matched = append(matched, s)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].SkillID < matched[j].SkillID
	})

	return Selection{Selected: matched, Skipped: skipped}
}

// BuildPromptContext joins the selected skills' system prompts into a
// single block suitable for inclusion in the Runner's message list, one
// "[skill_id] system_prompt" line per skill with a non-empty prompt.
func BuildPromptContext(skills []*SkillSpec) string {
	var blocks []string
	for _, s := range skills {
		prompt := strings.TrimSpace(s.SystemPrompt)
		if prompt == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("[%s] %s", s.SkillID, prompt))
	}
	return strings.Join(blocks, "\n")
}
