package acp

import (
	"encoding/json"
	"testing"
)

func TestExtractSessionIDTriesBothKeys(t *testing.T) {
	c := NewClaudeCodec()
	id, err := c.ExtractSessionID(json.RawMessage(`{"session_id":"abc"}`))
	if err != nil || id != "abc" {
		t.Fatalf("expected abc, got %q err=%v", id, err)
	}

	c2 := NewClaudeCodec()
	id2, err := c2.ExtractSessionID(json.RawMessage(`{"sessionId":"xyz"}`))
	if err != nil || id2 != "xyz" {
		t.Fatalf("expected xyz, got %q err=%v", id2, err)
	}
}

func TestExtractSessionIDMissingIsContractError(t *testing.T) {
	c := NewClaudeCodec()
	_, err := c.ExtractSessionID(json.RawMessage(`{}`))
	if err == nil {
		t.Fatalf("expected contract error")
	}
	if _, ok := err.(*ContractError); !ok {
		t.Fatalf("expected *ContractError, got %T", err)
	}
}

func TestBuildPromptParamsShapeFollowsSessionKey(t *testing.T) {
	c := NewClaudeCodec()
	if _, err := c.ExtractSessionID(json.RawMessage(`{"sessionId":"s1"}`)); err != nil {
		t.Fatalf("ExtractSessionID() error = %v", err)
	}
	_, params, err := c.BuildPromptParams("s1", LLMRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("BuildPromptParams() error = %v", err)
	}
	m, ok := params.(map[string]any)
	if !ok {
		t.Fatalf("expected map params, got %T", params)
	}
	if _, hasNew := m["sessionId"]; !hasNew {
		t.Fatalf("expected new-shape params to key on sessionId, got %+v", m)
	}
}

func TestNormalizePromptResultCanonicalPath(t *testing.T) {
	c := NewClaudeCodec()
	result := json.RawMessage(`{"assistant_text":"hello","stopReason":"end_turn","tool_calls":[{"id":"t1","tool_id":"shell.exec","args":{"cmd":"ls"}}]}`)
	resp, err := c.NormalizePromptResult(result, nil)
	if err != nil {
		t.Fatalf("NormalizePromptResult() error = %v", err)
	}
	if resp.AssistantText != "hello" || len(resp.ToolCalls) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestNormalizePromptResultMissingStopReasonIsContractError(t *testing.T) {
	c := NewClaudeCodec()
	_, err := c.NormalizePromptResult(json.RawMessage(`{}`), nil)
	if err == nil {
		t.Fatalf("expected contract error for missing stopReason")
	}
}

func TestNormalizePromptResultReconstructsFromNotifications(t *testing.T) {
	c := NewClaudeCodec()
	notifs := []Notification{
		{Method: "session/update", Params: json.RawMessage(`{"update":{"sessionUpdate":"agent_message_chunk","content":{"text":"part one "}}}`)},
		{Method: "session/update", Params: json.RawMessage(`{"update":{"sessionUpdate":"agent_message_chunk","content":{"text":"part two"}}}`)},
	}
	resp, err := c.NormalizePromptResult(json.RawMessage(`{"stopReason":"end_turn"}`), notifs)
	if err != nil {
		t.Fatalf("NormalizePromptResult() error = %v", err)
	}
	if resp.AssistantText != "part one part two" {
		t.Fatalf("expected reconstructed text, got %q", resp.AssistantText)
	}
}

func TestOpenCodeFallbackTextExtraction(t *testing.T) {
	c := NewOpenCodeCodec()
	notifs := []Notification{
		{Method: "session/update", Params: json.RawMessage(`{"update":{"sessionUpdate":"plan","content":{"text":"working on it"}}}`)},
	}
	resp, err := c.NormalizePromptResult(json.RawMessage(`{"stopReason":"end_turn"}`), notifs)
	if err != nil {
		t.Fatalf("NormalizePromptResult() error = %v", err)
	}
	if !resp.FallbackTextUsed || resp.AssistantText != "working on it" {
		t.Fatalf("expected fallback text used, got %+v", resp)
	}
}

func TestOpenCodeSessionNewParamsIncludeEmptyMcpServers(t *testing.T) {
	c := NewOpenCodeCodec()
	params := c.BuildSessionNewParams("/tmp/work")
	m := params.(map[string]any)
	if _, ok := m["mcpServers"]; !ok {
		t.Fatalf("expected mcpServers key in opencode session/new params")
	}
}
