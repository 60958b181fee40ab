package acp

// ClaudeCodec is the ACP dialect for the `claude` provider id. It uses the
// shared BaseCodec wire shape without modification.
type ClaudeCodec struct {
	*BaseCodec
}

func NewClaudeCodec() *ClaudeCodec {
	return &ClaudeCodec{BaseCodec: newBaseCodec("claude")}
}
