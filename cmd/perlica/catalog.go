package main

import (
	"encoding/json"

	"github.com/perlica/perlica/internal/acp"
	"github.com/perlica/perlica/internal/mcp"
	"github.com/perlica/perlica/internal/policy"
	"github.com/perlica/perlica/internal/tools"
)

// buildToolset wires the shell tool and any connected MCP server tools into
// a dispatcher.Registry and a runner.ToolCatalog, grounding every tool
// behind the single dispatch path (every tool in internal/tools refuses to
// run except via dispatcher.Dispatch).
func buildToolset(workspaceDir string, mcpManager *mcp.Manager) (*tools.Registry, *tools.Catalog) {
	registry := tools.NewRegistry()
	catalog := tools.NewCatalog()

	shell := &tools.ShellTool{WorkspaceDir: workspaceDir}
	registry.Register(tools.ShellToolID, shell)
	catalog.Register(acp.ToolSpec{
		ID:          tools.ShellToolID,
		Description: "Run a shell command in the workspace directory.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cmd": map[string]any{"type": "string"},
			},
			"required": []string{"cmd"},
		},
	}, policy.RiskHigh)

	if mcpManager != nil {
		tools.RegisterMCPTools(registry, mcpManager)
		for _, spec := range mcpToolSpecs(mcpManager) {
			catalog.Register(spec, policy.RiskMedium)
		}
	}

	return registry, catalog
}

// mcpToolSpecs converts the MCP manager's discovered tool schemas into the
// acp.ToolSpec shape the catalog advertises to the provider.
func mcpToolSpecs(mcpManager *mcp.Manager) []acp.ToolSpec {
	var specs []acp.ToolSpec
	for _, t := range mcpManager.ToolSchemas() {
		var schema map[string]any
		_ = json.Unmarshal(t.InputSchema, &schema)
		specs = append(specs, acp.ToolSpec{
			ID:          t.Name,
			Description: t.Description,
			Schema:      schema,
		})
	}
	return specs
}
