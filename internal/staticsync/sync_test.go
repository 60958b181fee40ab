package staticsync

import (
	"os"
	"path/filepath"
	"testing"
)

type fakeSyncer struct {
	mcpPath   string
	skillsDir string
}

func (f fakeSyncer) ProviderID() string { return "claude" }
func (f fakeSyncer) MCPConfigPath(workspaceDir string, scope ScopeMode) (string, bool) {
	return f.mcpPath, true
}
func (f fakeSyncer) SkillsDir(workspaceDir string, scope ScopeMode) (string, bool) {
	return f.skillsDir, true
}

func TestSyncWritesNamespacedMCPServers(t *testing.T) {
	dir := t.TempDir()
	syncer := fakeSyncer{mcpPath: filepath.Join(dir, "mcp.json"), skillsDir: filepath.Join(dir, "skills")}

	report := Sync(syncer, Payload{
		WorkspaceDir:    dir,
		NamespacePrefix: "perlica",
		MCPServers:      []MCPServer{{ID: "fs", Command: "fs-server"}},
	})
	if report.HasFailures() {
		t.Fatalf("unexpected failures: %+v", report.Failed)
	}

	doc, err := LoadJSONObject(syncer.mcpPath)
	if err != nil {
		t.Fatalf("LoadJSONObject() error = %v", err)
	}
	servers, _ := doc["mcpServers"].(map[string]any)
	if _, ok := servers["perlica-fs"]; !ok {
		t.Fatalf("expected namespaced key perlica-fs, got %+v", servers)
	}
}

func TestSyncIsIdempotentSecondPassSkips(t *testing.T) {
	dir := t.TempDir()
	syncer := fakeSyncer{mcpPath: filepath.Join(dir, "mcp.json"), skillsDir: filepath.Join(dir, "skills")}
	payload := Payload{WorkspaceDir: dir, NamespacePrefix: "perlica", MCPServers: []MCPServer{{ID: "fs", Command: "fs-server"}}}

	Sync(syncer, payload)
	report2 := Sync(syncer, payload)
	if len(report2.Applied) != 0 {
		t.Fatalf("expected second identical sync to skip, got applied=%+v", report2.Applied)
	}
}

func TestSyncStaleCleanupRemovesDroppedSkill(t *testing.T) {
	dir := t.TempDir()
	skillsDir := filepath.Join(dir, "skills")
	syncer := fakeSyncer{mcpPath: filepath.Join(dir, "mcp.json"), skillsDir: skillsDir}

	Sync(syncer, Payload{
		WorkspaceDir: dir, NamespacePrefix: "perlica", StaleCleanup: true,
		Skills: []Skill{{ID: "weather", Name: "Weather", SystemPrompt: "x"}},
	})
	if _, err := os.Stat(filepath.Join(skillsDir, "perlica-weather")); err != nil {
		t.Fatalf("expected skill dir to exist: %v", err)
	}

	Sync(syncer, Payload{WorkspaceDir: dir, NamespacePrefix: "perlica", StaleCleanup: true})
	if _, err := os.Stat(filepath.Join(skillsDir, "perlica-weather")); !os.IsNotExist(err) {
		t.Fatalf("expected stale skill dir removed, stat err = %v", err)
	}
}
