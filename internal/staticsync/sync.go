package staticsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Syncer is implemented per provider dialect (claude, opencode): it knows
// the file layout the provider reads at its own startup.
type Syncer interface {
	ProviderID() string
	MCPConfigPath(workspaceDir string, scope ScopeMode) (path string, writable bool)
	SkillsDir(workspaceDir string, scope ScopeMode) (dir string, writable bool)
}

// SelectScopePaths resolves project_first to the project path when it is
// writable, falling back to the user path otherwise.
func SelectScopePaths(projectPath string, projectWritable bool, userPath string, mode ScopeMode) string {
	switch mode {
	case ScopeProject:
		return projectPath
	case ScopeUser:
		return userPath
	default: // project_first
		if projectWritable {
			return projectPath
		}
		return userPath
	}
}

// IsWritableTarget reports whether path's parent directory can be written
// to (the file itself need not exist yet).
func IsWritableTarget(path string) bool {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	probe := filepath.Join(dir, ".perlica-write-probe")
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

// WriteJSONIfChanged marshals v and writes it to path only if the bytes
// differ from what's already there, so an unrelated external watcher isn't
// triggered by a no-op sync.
func WriteJSONIfChanged(path string, v any) (changed bool, err error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return false, fmt.Errorf("staticsync: marshal: %w", err)
	}
	return writeIfChanged(path, append(b, '\n'))
}

// WriteTextIfChanged writes text to path only if it differs from the
// existing content.
func WriteTextIfChanged(path, text string) (bool, error) {
	return writeIfChanged(path, []byte(text))
}

func writeIfChanged(path string, content []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, content) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("staticsync: mkdir: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return false, fmt.Errorf("staticsync: write: %w", err)
	}
	return true, nil
}

// LoadJSONObject reads path as a JSON object, returning an empty map if the
// file doesn't exist.
func LoadJSONObject(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("staticsync: read: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("staticsync: unmarshal: %w", err)
	}
	return m, nil
}

// Sync merges payload's mcp servers and skills into the provider's static
// config, namespacing every Perlica-owned entry with payload.NamespacePrefix
// so a subsequent sync can tell its own entries apart from user-authored
// ones and clean up stale ones when StaleCleanup is set.
func Sync(syncer Syncer, payload Payload) Report {
	var report Report

	mcpPath, mcpWritable := syncer.MCPConfigPath(payload.WorkspaceDir, payload.ScopeMode)
	if !mcpWritable {
		report.AddSkipped("mcp_config", mcpPath, "target not writable")
	} else {
		if err := syncMCPServers(mcpPath, payload, &report); err != nil {
			report.AddFailed("mcp_config", mcpPath, err.Error())
		}
	}

	skillsDir, skillsWritable := syncer.SkillsDir(payload.WorkspaceDir, payload.ScopeMode)
	if !skillsWritable {
		report.AddSkipped("skills_dir", skillsDir, "target not writable")
	} else {
		syncSkills(skillsDir, payload, &report)
	}

	return report
}

func syncMCPServers(path string, payload Payload, report *Report) error {
	doc, err := LoadJSONObject(path)
	if err != nil {
		return err
	}
	servers, _ := doc["mcpServers"].(map[string]any)
	if servers == nil {
		servers = map[string]any{}
	}

	keep := make(map[string]bool)
	for _, srv := range payload.MCPServers {
		key := payload.NamespacePrefix + "-" + srv.ID
		servers[key] = map[string]any{"command": srv.Command, "args": srv.Args, "env": srv.Env}
		keep[key] = true
	}

	if payload.StaleCleanup {
		for key := range servers {
			if len(key) > len(payload.NamespacePrefix)+1 && key[:len(payload.NamespacePrefix)+1] == payload.NamespacePrefix+"-" && !keep[key] {
				delete(servers, key)
			}
		}
	}
	doc["mcpServers"] = servers

	changed, err := WriteJSONIfChanged(path, doc)
	if err != nil {
		return err
	}
	for _, srv := range payload.MCPServers {
		if changed {
			report.AddApplied("mcp_server", srv.ID, "")
		} else {
			report.AddSkipped("mcp_server", srv.ID, "unchanged")
		}
	}
	return nil
}

func syncSkills(dir string, payload Payload, report *Report) {
	for _, sk := range payload.Skills {
		skillDir := filepath.Join(dir, SkillDirName(payload.NamespacePrefix, sk.ID))
		path := filepath.Join(skillDir, "SKILL.md")
		changed, err := WriteTextIfChanged(path, RenderSkillMarkdown(sk))
		if err != nil {
			report.AddFailed("skill", sk.ID, err.Error())
			continue
		}
		if changed {
			report.AddApplied("skill", sk.ID, "")
		} else {
			report.AddSkipped("skill", sk.ID, "unchanged")
		}
	}

	if payload.StaleCleanup {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		want := make(map[string]bool)
		for _, sk := range payload.Skills {
			want[SkillDirName(payload.NamespacePrefix, sk.ID)] = true
		}
		prefix := payload.NamespacePrefix + "-"
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, e := range entries {
			name := e.Name()
			if len(name) > len(prefix) && name[:len(prefix)] == prefix && !want[name] {
				os.RemoveAll(filepath.Join(dir, name))
			}
		}
	}
}
