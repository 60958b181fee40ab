package main

import (
	"fmt"
	"strings"

	"github.com/perlica/perlica/internal/dispatcher"
	"github.com/perlica/perlica/internal/runner"
	"github.com/spf13/cobra"
)

// =============================================================================
// Run Command
// =============================================================================

func buildRunCmd() *cobra.Command {
	var (
		configPath string
		sessionRef string
		provider   string
		assumeYes  bool
	)
	cmd := &cobra.Command{
		Use:   "run [text]",
		Short: "Run one turn against a provider, dispatching any tool calls it requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, configPath, sessionRef, provider, assumeYes, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&sessionRef, "session", "", "Session id, name, or unambiguous prefix to continue")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider id to run (defaults to the first enabled provider)")
	cmd.Flags().BoolVar(&assumeYes, "yes", false, "Skip interactive approval prompts and allow every ask-tier call")
	return cmd
}

func runRun(cmd *cobra.Command, configPath, sessionRef, provider string, assumeYes bool, text string) error {
	a, err := newApp(configPath, "")
	if err != nil {
		return err
	}
	defer a.Close()

	if strings.TrimSpace(provider) == "" {
		provider, err = a.defaultProviderID()
		if err != nil {
			return err
		}
	}

	var resolver dispatcher.ApprovalResolver
	if !assumeYes {
		resolver = newStdinResolver(cmd.InOrStdin(), cmd.OutOrStdout())
	}
	stack, err := a.buildRunner(provider, a.contextRoot, resolver)
	if err != nil {
		return err
	}
	defer stack.Close()

	result, err := stack.run.Run(cmd.Context(), runner.Input{
		ContextRoot:  a.contextRoot,
		WorkspaceDir: a.contextRoot,
		SessionRef:   sessionRef,
		Text:         text,
		AssumeYes:    assumeYes,
	})
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.AssistantText)
	fmt.Fprintf(out, "\n[session %s, %d tool call(s), finish=%s]\n", result.SessionID, result.ToolCallCount, result.FinishReason)
	return nil
}
