package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/perlica/perlica/internal/acp"
	"github.com/perlica/perlica/internal/compaction"
	"github.com/perlica/perlica/internal/dispatcher"
	"github.com/perlica/perlica/internal/eventlog"
	"github.com/perlica/perlica/internal/sessionstore"
	"github.com/perlica/perlica/internal/skills"
	"github.com/perlica/perlica/internal/taskcoord"
	"github.com/perlica/perlica/internal/tools"
)

// EventTypeContextCompacted is emitted after a compaction pass, carrying the
// message seq compacted history now starts after. Runner reads the most
// recent one back out of the event log to find the replay boundary, rather
// than widening the session store schema with a dedicated column.
const EventTypeContextCompacted = "run.context.compacted"

const (
	FinishStop  = "stop"
	FinishLength = "length"
	FinishError = "error"
)

// terminal reports whether finishReason ends the turn loop.
func terminal(finishReason string) bool {
	switch finishReason {
	case FinishStop, FinishLength, FinishError:
		return true
	default:
		return false
	}
}

// Runner ties together the stores and collaborators needed to execute one
// turn. All fields are required except Skills and Summarizer, which degrade
// gracefully when nil.
type Runner struct {
	Sessions    *sessionstore.Store
	Events      *eventlog.Store
	Tasks       *taskcoord.Coordinator
	Provider    Provider
	Dispatcher  Dispatcher
	ToolCatalog ToolCatalog
	Skills      *skills.Engine
	Summarizer  compaction.Summarizer
	Config      Config
	ProviderID  string
	Logger      *slog.Logger

	systemPrompt string
	acpSessions  map[string]string
}

// New builds a Runner. systemPrompt is the fixed preamble prepended to every
// turn's message window.
func New(sessions *sessionstore.Store, events *eventlog.Store, tasks *taskcoord.Coordinator,
	provider Provider, disp Dispatcher, catalog ToolCatalog, skillEngine *skills.Engine,
	summarizer compaction.Summarizer, cfg Config, providerID, systemPrompt string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Sessions: sessions, Events: events, Tasks: tasks, Provider: provider, Dispatcher: disp,
		ToolCatalog: catalog, Skills: skillEngine, Summarizer: summarizer, Config: cfg,
		ProviderID: providerID, Logger: logger.With("component", "runner"),
		systemPrompt: systemPrompt, acpSessions: make(map[string]string),
	}
}

// Run executes one turn end to end, per spec.md §4.10.
func (r *Runner) Run(ctx context.Context, in Input) (result Result, runErr error) {
	taskID, err := r.Tasks.StartTask(in.SessionRef)
	if err != nil {
		return Result{}, err
	}
	defer func() { r.Tasks.FinishTask(taskID, runErr) }()

	sess, err := r.resolveSession(in)
	if err != nil {
		return Result{}, err
	}
	if err := r.Sessions.LockProvider(sess.ID, r.ProviderID); err != nil {
		return Result{}, err
	}

	ctx = eventlog.AddRunID(ctx, taskID)
	ctx = eventlog.AddSessionID(ctx, sess.ID)

	if _, _, err := r.Events.Append(ctx, in.ContextRoot, "run.started", map[string]any{
		"session_id": sess.ID, "run_id": taskID,
	}, ""); err != nil {
		return Result{}, err
	}

	if _, err := r.Sessions.AppendMessage(sess.ID, "user", in.Text); err != nil {
		return Result{}, err
	}

	skillPrompt := ""
	if r.Skills != nil {
		selection := r.Skills.Select(in.Text)
		skillPrompt = skills.BuildPromptContext(selection.Selected)
	}

	contextWindow := r.Config.ProviderContextWindows[r.ProviderID]
	contextWindow = compaction.ResolveContextWindowTokens(contextWindow, compaction.DefaultContextWindow)

	res, err := r.loop(ctx, in, sess, skillPrompt, contextWindow, taskID)
	if err != nil {
		runErr = err
		r.Events.Append(ctx, in.ContextRoot, "run.failed", map[string]any{
			"session_id": sess.ID, "run_id": taskID, "error": err.Error(),
		}, "")
		return Result{}, err
	}

	r.Events.Append(ctx, in.ContextRoot, "run.completed", map[string]any{
		"session_id": sess.ID, "run_id": taskID, "finish_reason": res.FinishReason, "tool_calls": res.ToolCallCount,
	}, "")
	return res, nil
}

func (r *Runner) loop(ctx context.Context, in Input, sess sessionstore.Session, skillPrompt string, contextWindow int, runID string) (Result, error) {
	toolCallCount := 0
	var lastResp acp.LLMResponse

	for {
		if err := r.maybeCompact(ctx, in.ContextRoot, sess, contextWindow); err != nil {
			return Result{}, err
		}

		messages, err := r.buildMessages(in.ContextRoot, sess, skillPrompt)
		if err != nil {
			return Result{}, err
		}

		acpSessionID, err := r.ensureACPSession(ctx, sess.ID, in.WorkspaceDir)
		if err != nil {
			return Result{}, err
		}

		specs := []acp.ToolSpec{}
		if r.ToolCatalog != nil {
			specs = r.ToolCatalog.Specs()
		}
		req := acp.LLMRequest{SessionID: acpSessionID, SystemPrompt: r.systemPrompt, Messages: messages, Tools: specs}

		r.Events.Append(ctx, in.ContextRoot, "llm.requested", map[string]any{
			"session_id": sess.ID, "run_id": runID, "tool_count": len(specs), "message_count": len(messages),
		}, "")

		resp, err := r.Provider.Generate(ctx, acpSessionID, req)
		if err != nil {
			r.Events.Append(ctx, in.ContextRoot, eventlog.TypeProviderInvalid, map[string]any{
				"session_id": sess.ID, "run_id": runID, "error": err.Error(),
			}, "")
			return Result{}, err
		}
		lastResp = resp

		r.Events.Append(ctx, in.ContextRoot, "llm.responded", map[string]any{
			"session_id": sess.ID, "run_id": runID,
			"input_tokens": resp.Usage.InputTokens, "output_tokens": resp.Usage.OutputTokens,
			"finish_reason": resp.FinishReason, "tool_calls": len(resp.ToolCalls),
		}, "")

		if resp.AssistantText != "" {
			if _, err := r.Sessions.AppendMessage(sess.ID, "assistant", resp.AssistantText); err != nil {
				return Result{}, err
			}
		}

		if len(resp.ToolCalls) == 0 {
			break
		}

		reachedMax := false
		for _, tc := range resp.ToolCalls {
			if toolCallCount >= r.Config.MaxToolCalls {
				reachedMax = true
				break
			}
			if err := r.dispatchToolCall(ctx, in, sess, tc); err != nil {
				return Result{}, err
			}
			toolCallCount++
		}
		if reachedMax {
			break
		}

		if terminal(resp.FinishReason) {
			break
		}
	}

	return Result{
		SessionID: sess.ID, RunID: runID, AssistantText: lastResp.AssistantText,
		ToolCallCount: toolCallCount, FinishReason: lastResp.FinishReason,
	}, nil
}

func (r *Runner) dispatchToolCall(ctx context.Context, in Input, sess sessionstore.Session, tc acp.ToolCall) error {
	argsJSON, _ := json.Marshal(tc.Args)

	riskTier := r.ToolCatalog.RiskTier(tc.ToolID)
	shellCommand := ""
	if tc.ToolID == tools.ShellToolID {
		shellCommand, _ = tc.Args["cmd"].(string)
	}

	call := dispatcher.Call{
		ToolCallID: tc.ID, SessionID: sess.ID, ToolID: tc.ToolID, RiskTier: riskTier,
		ShellCommand: shellCommand, Summary: fmt.Sprintf("%s(%s)", tc.ToolID, string(argsJSON)), Args: tc.Args,
		AssumeYes: in.AssumeYes,
	}

	if _, err := r.Sessions.AppendMessage(sess.ID, "tool_call", fmt.Sprintf("%s: %s", tc.ToolID, string(argsJSON))); err != nil {
		return err
	}

	result, dispatchErr := r.Dispatcher.Dispatch(ctx, call, ctx.Done())

	var resultText string
	if dispatchErr != nil {
		resultText = fmt.Sprintf("error: %s", dispatchErr.Error())
	} else {
		resultJSON, err := json.Marshal(result)
		if err != nil {
			return err
		}
		resultText = string(resultJSON)
	}

	_, err := r.Sessions.AppendMessage(sess.ID, "tool", resultText)
	return err
}

func (r *Runner) resolveSession(in Input) (sessionstore.Session, error) {
	if in.SessionRef != "" {
		return r.Sessions.ResolveRef(in.ContextRoot, in.SessionRef)
	}

	if currentID, err := r.Sessions.CurrentSession(in.ContextRoot); err == nil && currentID != "" {
		if sess, err := r.Sessions.Get(currentID); err == nil {
			return sess, nil
		}
	}

	return r.Sessions.Create(in.ContextRoot, "", r.ProviderID, true)
}

func (r *Runner) ensureACPSession(ctx context.Context, sessionID, workspaceDir string) (string, error) {
	if id, ok := r.acpSessions[sessionID]; ok {
		return id, nil
	}
	id, err := r.Provider.NewSession(ctx, workspaceDir)
	if err != nil {
		return "", fmt.Errorf("runner: new provider session: %w", err)
	}
	r.acpSessions[sessionID] = id
	return id, nil
}

// buildMessages assembles [summary?, …post-summary history (including the
// just-appended user turn), skill prompt] per spec.md §4.10 step 3. The
// system prompt itself travels separately on LLMRequest.SystemPrompt.
func (r *Runner) buildMessages(contextRoot string, sess sessionstore.Session, skillPrompt string) ([]acp.Message, error) {
	history, err := r.Sessions.Messages(sess.ID)
	if err != nil {
		return nil, err
	}
	summaries, err := r.Sessions.Summaries(sess.ID)
	if err != nil {
		return nil, err
	}
	covered, err := r.latestCoveredSeq(contextRoot, sess.ID)
	if err != nil {
		return nil, err
	}

	var out []acp.Message
	if len(summaries) > 0 {
		out = append(out, acp.Message{Role: "system", Content: "Conversation summary: " + summaries[len(summaries)-1].Text})
	}
	for _, m := range history {
		if m.Seq <= covered {
			continue
		}
		out = append(out, acp.Message{Role: m.Role, Content: m.Content})
	}
	if skillPrompt != "" {
		out = append(out, acp.Message{Role: "system", Content: skillPrompt})
	}
	return out, nil
}

func (r *Runner) latestCoveredSeq(contextRoot, sessionID string) (int64, error) {
	events, err := r.Events.BySession(contextRoot, sessionID)
	if err != nil {
		return 0, err
	}
	var covered int64
	for _, e := range events {
		if e.Type != EventTypeContextCompacted {
			continue
		}
		switch v := e.Data["covered_upto_seq"].(type) {
		case float64:
			covered = int64(v)
		case int64:
			covered = v
		}
	}
	return covered, nil
}

// maybeCompact summarizes history up to a trailing window when the
// estimated token count (not-yet-summarized history plus the system prompt)
// exceeds context_budget_ratio × provider_context_window,
// per spec.md §4.10 step 3. A nil Summarizer means compaction is disabled;
// the turn proceeds uncompacted rather than failing.
func (r *Runner) maybeCompact(ctx context.Context, contextRoot string, sess sessionstore.Session, contextWindow int) error {
	if r.Summarizer == nil {
		return nil
	}

	history, err := r.Sessions.Messages(sess.ID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return nil
	}

	covered, err := r.latestCoveredSeq(contextRoot, sess.ID)
	if err != nil {
		return err
	}
	var uncovered []sessionstore.Message
	for _, m := range history {
		if m.Seq > covered {
			uncovered = append(uncovered, m)
		}
	}

	budget := float64(contextWindow) * r.Config.ContextBudgetRatio
	estimated := compaction.EstimateMessagesTokens(toCompactionMessages(uncovered)) +
		compaction.EstimateTokens(&compaction.Message{Content: r.systemPrompt})
	if float64(estimated) <= budget {
		return nil
	}

	tailCount := compaction.DefaultMinMessagesForSplit
	if tailCount >= len(uncovered) {
		return nil
	}
	toSummarize := uncovered[:len(uncovered)-tailCount]
	if len(toSummarize) == 0 {
		return nil
	}
	coveredUpto := toSummarize[len(toSummarize)-1].Seq

	cfg := compaction.DefaultSummarizationConfig()
	cfg.ContextWindow = contextWindow

	maxAttempts := r.Config.MaxSummaryAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var summaryText string
	var summarizeErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		summaryText, summarizeErr = compaction.SummarizeInStages(ctx, toCompactionMessages(toSummarize), r.Summarizer, cfg)
		if summarizeErr == nil {
			break
		}
	}
	if summarizeErr != nil {
		return fmt.Errorf("runner: compaction failed after %d attempts: %w", maxAttempts, summarizeErr)
	}

	if _, err := r.Sessions.AppendSummary(sess.ID, summaryText); err != nil {
		return err
	}
	_, _, err = r.Events.Append(ctx, contextRoot, EventTypeContextCompacted, map[string]any{
		"session_id": sess.ID, "covered_upto_seq": coveredUpto, "dropped_messages": len(toSummarize),
	}, "")
	return err
}

func toCompactionMessages(msgs []sessionstore.Message) []*compaction.Message {
	out := make([]*compaction.Message, len(msgs))
	for i, m := range msgs {
		out[i] = &compaction.Message{ID: m.ID, Role: m.Role, Content: m.Content, Timestamp: m.CreatedAt.Unix()}
	}
	return out
}
