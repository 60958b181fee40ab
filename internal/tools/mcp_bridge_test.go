package tools

import (
	"context"
	"testing"

	"github.com/perlica/perlica/internal/mcp"
)

func TestMCPBridgeRefusesWithoutDispatch(t *testing.T) {
	bridge := &MCPBridge{Manager: mcp.NewManager(nil, nil), ServerID: "fs", ToolName: "read_file"}
	_, err := bridge.Execute(context.Background(), map[string]any{"path": "a.txt"})
	if err == nil || err.Error() != "direct_execution_forbidden" {
		t.Fatalf("expected direct_execution_forbidden, got %v", err)
	}
}

func TestMCPBridgeErrorsOnUnconnectedServer(t *testing.T) {
	bridge := &MCPBridge{Manager: mcp.NewManager(nil, nil), ServerID: "fs", ToolName: "read_file"}
	_, err := dispatchExecute(t, "mcp.fs.read_file", bridge, map[string]any{"path": "a.txt"})
	if err == nil {
		t.Fatalf("expected an error calling a tool on an unconnected server")
	}
}

func TestFlattenContentJoinsTextBlocks(t *testing.T) {
	text, raw := flattenContent([]mcp.ToolResultContent{
		{Type: "text", Text: "first"},
		{Type: "text", Text: "second"},
		{Type: "image", Data: "base64data", MimeType: "image/png"},
	})
	if text != "first\nsecond" {
		t.Fatalf("expected joined text blocks, got %q", text)
	}
	if len(raw) != 3 {
		t.Fatalf("expected 3 raw content entries, got %d", len(raw))
	}
}

func TestRegisterMCPToolsSkipsExistingNames(t *testing.T) {
	reg := NewRegistry()
	existing := &ShellTool{}
	reg.Register("shell.exec", existing)

	manager := mcp.NewManager(nil, nil)
	RegisterMCPTools(reg, manager)

	got, _ := reg.Get("shell.exec")
	if got != existing {
		t.Fatalf("expected RegisterMCPTools not to overwrite an existing tool id")
	}
}
