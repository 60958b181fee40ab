package runner

import (
	"context"
	"fmt"

	"github.com/perlica/perlica/internal/acp"
	"github.com/perlica/perlica/internal/compaction"
)

// compactionInstruction is the fixed system-style instruction spec.md §4.10
// prescribes for every compaction summary request.
const compactionInstruction = "Summarize the conversation so far in under 600 words, preserving open tasks, decisions, and unresolved questions."

// ProviderSummarizer adapts a Provider into compaction.Summarizer by
// issuing the fixed compaction instruction as a one-off provider turn
// against an ephemeral ACP session scoped to the caller's workspace.
type ProviderSummarizer struct {
	Provider     Provider
	WorkspaceDir string
}

func (s *ProviderSummarizer) GenerateSummary(ctx context.Context, messages []*compaction.Message, cfg *compaction.SummarizationConfig) (string, error) {
	sessionID, err := s.Provider.NewSession(ctx, s.WorkspaceDir)
	if err != nil {
		return "", fmt.Errorf("runner: compaction session: %w", err)
	}

	instruction := compactionInstruction
	if cfg != nil && cfg.CustomInstructions != "" {
		instruction = cfg.CustomInstructions + "\n\n" + instruction
	}

	req := acp.LLMRequest{
		SessionID:    sessionID,
		SystemPrompt: instruction,
		Messages:     toACPMessages(messages),
	}

	resp, err := s.Provider.Generate(ctx, sessionID, req)
	if err != nil {
		return "", fmt.Errorf("runner: compaction generate: %w", err)
	}
	return resp.AssistantText, nil
}

func toACPMessages(messages []*compaction.Message) []acp.Message {
	out := make([]acp.Message, 0, len(messages))
	for _, m := range messages {
		if m == nil {
			continue
		}
		out = append(out, acp.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

var _ compaction.Summarizer = (*ProviderSummarizer)(nil)
