package main

import (
	"os"
	"path/filepath"

	"github.com/perlica/perlica/internal/acp"
	"github.com/perlica/perlica/internal/staticsync"
)

// claudeSyncer locates Claude Code's MCP config and skills directory,
// writing to the project scope (<workspace>/.claude/...) when possible and
// falling back to the user's home profile otherwise.
type claudeSyncer struct{}

func (claudeSyncer) ProviderID() string { return acp.DefaultProviderID }

func (claudeSyncer) MCPConfigPath(workspaceDir string, scope staticsync.ScopeMode) (string, bool) {
	projectPath := filepath.Join(workspaceDir, ".mcp.json")
	userPath := filepath.Join(userHome(), ".claude", ".mcp.json")
	path := staticsync.SelectScopePaths(projectPath, staticsync.IsWritableTarget(projectPath), userPath, scope)
	return path, staticsync.IsWritableTarget(path)
}

func (claudeSyncer) SkillsDir(workspaceDir string, scope staticsync.ScopeMode) (string, bool) {
	projectDir := filepath.Join(workspaceDir, ".claude", "skills")
	userDir := filepath.Join(userHome(), ".claude", "skills")
	dir := staticsync.SelectScopePaths(projectDir, dirWritable(projectDir), userDir, scope)
	return dir, dirWritable(dir)
}

// opencodeSyncer mirrors claudeSyncer for the opencode CLI's own config
// layout (opencode.json + .opencode/skill).
type opencodeSyncer struct{}

func (opencodeSyncer) ProviderID() string { return acp.OpenCodeProviderID }

func (opencodeSyncer) MCPConfigPath(workspaceDir string, scope staticsync.ScopeMode) (string, bool) {
	projectPath := filepath.Join(workspaceDir, "opencode.json")
	userPath := filepath.Join(userHome(), ".config", "opencode", "opencode.json")
	path := staticsync.SelectScopePaths(projectPath, staticsync.IsWritableTarget(projectPath), userPath, scope)
	return path, staticsync.IsWritableTarget(path)
}

func (opencodeSyncer) SkillsDir(workspaceDir string, scope staticsync.ScopeMode) (string, bool) {
	projectDir := filepath.Join(workspaceDir, ".opencode", "skill")
	userDir := filepath.Join(userHome(), ".config", "opencode", "skill")
	dir := staticsync.SelectScopePaths(projectDir, dirWritable(projectDir), userDir, scope)
	return dir, dirWritable(dir)
}

func dirWritable(dir string) bool {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	return staticsync.IsWritableTarget(filepath.Join(dir, "probe"))
}

func userHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// syncerFor returns the concrete Syncer for a provider id.
func syncerFor(providerID string) (staticsync.Syncer, bool) {
	switch providerID {
	case acp.DefaultProviderID:
		return claudeSyncer{}, true
	case acp.OpenCodeProviderID:
		return opencodeSyncer{}, true
	default:
		return nil, false
	}
}
