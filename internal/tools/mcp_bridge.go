package tools

import (
	"context"
	"fmt"

	"github.com/perlica/perlica/internal/dispatcher"
	"github.com/perlica/perlica/internal/mcp"
)

// MCPBridge wraps a single MCP server tool as a dispatcher.Tool, translating
// between the dispatcher's map[string]any argument/result convention and the
// MCP manager's ToolCallResult.
type MCPBridge struct {
	Manager  *mcp.Manager
	ServerID string
	ToolName string
}

func (b *MCPBridge) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	if !dispatcher.IsDispatchActive(ctx) {
		return nil, fmt.Errorf("direct_execution_forbidden")
	}

	result, err := b.Manager.CallTool(ctx, b.ServerID, b.ToolName, args)
	if err != nil {
		return nil, fmt.Errorf("mcp_bridge: %s/%s: %w", b.ServerID, b.ToolName, err)
	}

	text, data := flattenContent(result.Content)
	out := map[string]any{
		"text":    text,
		"content": data,
	}
	if result.IsError {
		return out, fmt.Errorf("mcp_tool_error")
	}
	return out, nil
}

// flattenContent concatenates every text content block (the common case for
// most MCP tools) while preserving the raw content list for callers that need
// images or embedded resources.
func flattenContent(content []mcp.ToolResultContent) (string, []map[string]any) {
	var text string
	raw := make([]map[string]any, 0, len(content))
	for _, c := range content {
		if c.Type == "text" {
			if text != "" {
				text += "\n"
			}
			text += c.Text
		}
		raw = append(raw, map[string]any{
			"type":     c.Type,
			"text":     c.Text,
			"data":     c.Data,
			"mimeType": c.MimeType,
		})
	}
	return text, raw
}

// RegisterMCPTools discovers every tool currently exposed by manager and
// registers a bridge for each into reg, named by its bare MCP tool name. A
// name collision with an already-registered tool (e.g. shell.exec, or a tool
// from another MCP server) is skipped rather than silently overwritten.
func RegisterMCPTools(reg *Registry, manager *mcp.Manager) {
	for serverID, toolList := range manager.AllTools() {
		for _, tool := range toolList {
			if _, exists := reg.Get(tool.Name); exists {
				continue
			}
			reg.Register(tool.Name, &MCPBridge{Manager: manager, ServerID: serverID, ToolName: tool.Name})
		}
	}
}

var _ dispatcher.Tool = (*MCPBridge)(nil)
