package acp

import "encoding/json"

// OpenCodeCodec extends the shared BaseCodec with two OpenCode-specific behaviors:
// session/new params always declare an empty mcpServers list, and
// NormalizePromptResult adds a visible-text fallback extraction pass when
// neither the canonical result nor notification replay produced any
// assistant text, emitting a marker the caller can log as
// provider.acp.response.fallback_text_used.
type OpenCodeCodec struct {
	*BaseCodec
}

func NewOpenCodeCodec() *OpenCodeCodec {
	return &OpenCodeCodec{BaseCodec: newBaseCodec("opencode")}
}

func (c *OpenCodeCodec) BuildSessionNewParams(workspaceDir string) any {
	return map[string]any{"cwd": workspaceDir, "mcpServers": []any{}}
}

// NormalizePromptResult adds a visible-text fallback pass on top of the
// shared reconstruction: when neither the canonical result nor notification
// replay produced assistant text, it scans for plan/tool-call text instead
// of surfacing a silent empty reply, and marks the response so the caller
// can emit provider.acp.response.fallback_text_used.
func (c *OpenCodeCodec) NormalizePromptResult(result json.RawMessage, notifications []Notification) (LLMResponse, error) {
	resp, err := c.BaseCodec.NormalizePromptResult(result, notifications)
	if err != nil {
		return LLMResponse{}, err
	}
	if resp.AssistantText != "" {
		return resp, nil
	}

	text, source := collectVisibleTextFallback(notifications)
	if text == "" {
		return resp, nil
	}
	resp.AssistantText = text
	resp.FallbackTextUsed = true
	resp.FallbackTextSource = source
	return resp, nil
}

// collectVisibleTextFallback scans notifications for any user-visible text
// the canonical reconstruction missed — plan entries and tool-call titles,
// in that order of preference — so the turn never surfaces as a silent
// empty reply.
func collectVisibleTextFallback(notifications []Notification) (text, source string) {
	var toolTitle string
	for _, n := range notifications {
		var update struct {
			Update struct {
				SessionUpdate string `json:"sessionUpdate"`
				Content       struct {
					Text string `json:"text"`
				} `json:"content"`
				Title string `json:"title"`
			} `json:"update"`
		}
		if err := json.Unmarshal(n.Params, &update); err != nil {
			continue
		}
		switch update.Update.SessionUpdate {
		case "plan":
			if update.Update.Content.Text != "" {
				return update.Update.Content.Text, "plan"
			}
		case "tool_call":
			if toolTitle == "" && update.Update.Title != "" {
				toolTitle = update.Update.Title
			}
		}
	}
	if toolTitle != "" {
		return toolTitle, "tool_call_title"
	}
	return "", ""
}
