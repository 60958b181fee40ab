package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Session Commands
// =============================================================================

func buildSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage sessions",
	}
	cmd.AddCommand(
		buildSessionListCmd(),
		buildSessionShowCmd(),
		buildSessionSaveCmd(),
		buildSessionDiscardCmd(),
		buildSessionClearCmd(),
		buildSessionDropProviderCmd(),
	)
	return cmd
}

func buildSessionListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions for the current context",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionList(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}

func buildSessionShowCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "show [session-ref]",
		Short: "Show a session's messages and summaries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionShow(cmd, configPath, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}

func buildSessionSaveCmd() *cobra.Command {
	var configPath, name string
	cmd := &cobra.Command{
		Use:   "save [session-ref]",
		Short: "Promote a session out of ephemeral status, optionally renaming it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionSave(cmd, configPath, args[0], name)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&name, "name", "", "Name to give the session")
	return cmd
}

func buildSessionDiscardCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "discard [session-ref]",
		Short: "Delete a session and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionDiscard(cmd, configPath, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}

func buildSessionClearCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "clear [session-ref]",
		Short: "Clear a session's message and summary history, keeping the session itself",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionClear(cmd, configPath, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}

func buildSessionDropProviderCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "drop-provider [provider-id]",
		Short: "Delete every session locked to a provider id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionDropProvider(cmd, configPath, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}
