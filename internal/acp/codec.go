package acp

import "encoding/json"

// Codec translates between Perlica's canonical LLM request/response shape
// and one ACP dialect's wire shape. Claude and OpenCode share the base
// implementation and override only the parts where they diverge.
type Codec interface {
	ProviderID() string
	BuildSessionNewParams(workspaceDir string) any
	ExtractSessionID(result json.RawMessage) (string, error)
	BuildPromptParams(sessionID string, req LLMRequest) (method string, params any, err error)
	NormalizePromptResult(result json.RawMessage, notifications []Notification) (LLMResponse, error)
}

// BaseCodec implements the shared Claude/OpenCode wire shape. Session ids
// come back under either "session_id" or "sessionId" depending on provider
// version; ExtractSessionID tries both. Prompt params use the legacy
// flat-string shape unless the session was created with the new "sessionId"
// key, in which case the richer message-blocks shape is used.
type BaseCodec struct {
	providerID  string
	sessionKeys map[string]string // sessionID -> the key name session/new returned it under
}

func newBaseCodec(providerID string) *BaseCodec {
	return &BaseCodec{providerID: providerID, sessionKeys: make(map[string]string)}
}

func (c *BaseCodec) ProviderID() string { return c.providerID }

func (c *BaseCodec) BuildSessionNewParams(workspaceDir string) any {
	return map[string]any{"cwd": workspaceDir}
}

// ExtractSessionID tries "session_id" first (the original ACP field name),
// then "sessionId" (the camelCase shape newer providers send), recording
// whichever key was present so BuildPromptParams can pick the matching
// request shape later.
func (c *BaseCodec) ExtractSessionID(result json.RawMessage) (string, error) {
	var flat struct {
		SessionID string `json:"session_id"`
		SessionID2 string `json:"sessionId"`
	}
	if err := json.Unmarshal(result, &flat); err != nil {
		return "", &ContractError{ProviderID: c.providerID, Method: "session/new", Reason: "unparseable result: " + err.Error()}
	}
	if flat.SessionID != "" {
		c.sessionKeys[flat.SessionID] = "session_id"
		return flat.SessionID, nil
	}
	if flat.SessionID2 != "" {
		c.sessionKeys[flat.SessionID2] = "sessionId"
		return flat.SessionID2, nil
	}
	return "", &ContractError{ProviderID: c.providerID, Method: "session/new", Reason: "result missing session_id/sessionId"}
}

// BuildPromptParams uses the legacy flat-string shape when the session was
// created under the "session_id" key, or the richer message-blocks shape
// when it was created under "sessionId" — this mirrors the two provider
// generations observed in the field.
func (c *BaseCodec) BuildPromptParams(sessionID string, req LLMRequest) (string, any, error) {
	key := c.sessionKeys[sessionID]
	if key != "sessionId" {
		return "session/prompt", map[string]any{
			"session_id": sessionID,
			"prompt":     flattenPrompt(req),
		}, nil
	}
	return "session/prompt", map[string]any{
		"sessionId": sessionID,
		"prompt":    messagesToPromptBlocks(req),
	}, nil
}

func flattenPrompt(req LLMRequest) string {
	out := req.SystemPrompt
	for _, m := range req.Messages {
		if out != "" {
			out += "\n\n"
		}
		out += m.Role + ": " + m.Content
	}
	return out
}

type promptBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func messagesToPromptBlocks(req LLMRequest) []promptBlock {
	blocks := make([]promptBlock, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		blocks = append(blocks, promptBlock{Type: "text", Text: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		blocks = append(blocks, promptBlock{Type: "text", Text: m.Content})
	}
	return blocks
}

// rawPromptResult is the wire shape of a session/prompt result before
// dialect-specific normalization.
type rawPromptResult struct {
	ToolCalls     []rawToolCall `json:"tool_calls"`
	AssistantText string        `json:"assistant_text"`
	StopReason    string        `json:"stopReason"`
	StopReason2   string        `json:"stop_reason"`
}

type rawToolCall struct {
	ID     string         `json:"id"`
	ToolID string         `json:"tool_id"`
	Args   map[string]any `json:"args"`
}

// NormalizePromptResult implements the canonical path: when the result
// already carries tool_calls + assistant_text, use them directly. Otherwise
// fall back to reconstructing the response from session/update
// notifications, keyed off stopReason/stop_reason — a result missing both
// is a contract violation.
func (c *BaseCodec) NormalizePromptResult(result json.RawMessage, notifications []Notification) (LLMResponse, error) {
	var raw rawPromptResult
	if err := json.Unmarshal(result, &raw); err != nil {
		return LLMResponse{}, &ContractError{ProviderID: c.providerID, Method: "session/prompt", Reason: "unparseable result: " + err.Error()}
	}

	if len(raw.ToolCalls) > 0 || raw.AssistantText != "" {
		resp := LLMResponse{AssistantText: raw.AssistantText, FinishReason: firstNonEmpty(raw.StopReason, raw.StopReason2)}
		for _, tc := range raw.ToolCalls {
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: tc.ID, ToolID: tc.ToolID, Args: tc.Args})
		}
		return resp, nil
	}

	stopReason := firstNonEmpty(raw.StopReason, raw.StopReason2)
	if stopReason == "" {
		return LLMResponse{}, &ContractError{ProviderID: c.providerID, Method: "session/prompt", Reason: "acp result missing stopReason"}
	}
	return reconstructFromNotifications(notifications, stopReason), nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// reconstructFromNotifications replays session/update notifications to
// rebuild assistant text and tool calls when the prompt result itself
// carried neither — the shape newer providers use, relying on the
// notification stream as the real payload.
func reconstructFromNotifications(notifications []Notification, stopReason string) LLMResponse {
	resp := LLMResponse{FinishReason: stopReason}
	var textBuf string
	for _, n := range notifications {
		var update struct {
			Update struct {
				SessionUpdate string `json:"sessionUpdate"`
				Content       struct {
					Text string `json:"text"`
				} `json:"content"`
				ToolCallID string         `json:"toolCallId"`
				ToolID     string         `json:"toolId"`
				RawInput   map[string]any `json:"rawInput"`
			} `json:"update"`
		}
		if err := json.Unmarshal(n.Params, &update); err != nil {
			continue
		}
		switch update.Update.SessionUpdate {
		case "agent_message_chunk":
			textBuf += update.Update.Content.Text
		case "tool_call":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID: update.Update.ToolCallID, ToolID: update.Update.ToolID, Args: update.Update.RawInput,
			})
		}
	}
	resp.AssistantText = textBuf
	return resp
}
