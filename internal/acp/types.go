package acp

// LLMRequest is the canonical request shape the kernel builds before handing
// it to a codec for translation into a provider's wire shape.
type LLMRequest struct {
	SessionID    string
	SystemPrompt string
	Messages     []Message
	Tools        []ToolSpec
}

type Message struct {
	Role    string // "user", "assistant", "tool"
	Content string
}

type ToolSpec struct {
	ID          string
	Description string
	Schema      map[string]any
}

// LLMResponse is the canonical response shape every dialect normalizes into.
type LLMResponse struct {
	AssistantText      string
	ToolCalls          []ToolCall
	FinishReason       string
	Usage              Usage
	FallbackTextUsed   bool
	FallbackTextSource string
}

type ToolCall struct {
	ID     string
	ToolID string
	Args   map[string]any
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ContractError indicates the provider's response didn't shape-match what
// the codec expects, distinct from a transport-level failure.
type ContractError struct {
	ProviderID string
	Method     string
	Reason     string
}

func (e *ContractError) Error() string {
	return "acp: contract violation provider=" + e.ProviderID + " method=" + e.Method + ": " + e.Reason
}
