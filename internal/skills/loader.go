package skills

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadReport is the result of one loader pass: every skill successfully
// parsed, and the parse/validation error recorded for every file that
// failed, keyed by file path.
type LoadReport struct {
	Skills map[string]*SkillSpec
	Errors map[string]string
}

// SkillLoader discovers *.skill.json files across an ordered list of
// directories. On duplicate skill_id across directories, the earlier
// directory wins — later duplicates are skipped, not merged, and no error is
// recorded for them.
type SkillLoader struct {
	Dirs []string
}

// NewSkillLoader builds a loader over the given search directories, in
// priority order (earliest wins).
func NewSkillLoader(dirs ...string) *SkillLoader {
	return &SkillLoader{Dirs: dirs}
}

// Load scans every search directory and returns the discovered skills plus
// any per-file errors.
func (l *SkillLoader) Load() LoadReport {
	report := LoadReport{
		Skills: make(map[string]*SkillSpec),
		Errors: make(map[string]string),
	}

	for _, dir := range l.Dirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		files := findSkillFiles(dir)
		for _, path := range files {
			spec, err := loadSkillFile(path)
			if err != nil {
				report.Errors[path] = err.Error()
				continue
			}
			if _, exists := report.Skills[spec.SkillID]; exists {
				continue // earlier directory already claimed this skill_id
			}
			report.Skills[spec.SkillID] = spec
		}
	}

	return report
}

// findSkillFiles walks dir recursively and returns every *.skill.json path,
// sorted lexically for deterministic load order within a directory.
func findSkillFiles(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable subtree is skipped, not fatal
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), SkillFileSuffix) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files
}

func loadSkillFile(path string) (*SkillSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	var raw rawSkillSpec
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return fromRaw(raw, path)
}
