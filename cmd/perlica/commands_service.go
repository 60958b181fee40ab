package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Service Commands
// =============================================================================

func buildServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Run Perlica as a background channel listener (iMessage, Discord, Slack)",
	}
	cmd.AddCommand(buildServiceStartCmd(), buildServicePairCmd())
	return cmd
}

func buildServiceStartCmd() *cobra.Command {
	var (
		configPath string
		channel    string
		provider   string
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Bootstrap and supervise a channel listener, running bound sessions against a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServiceStart(cmd, configPath, channel, provider)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&channel, "channel", "", "Channel to start: imessage, discord, or slack")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider id to run bound sessions against")
	cmd.MarkFlagRequired("channel")
	return cmd
}

func buildServicePairCmd() *cobra.Command {
	var (
		configPath string
		channel    string
	)
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Issue a pairing code for a channel so an operator can bind their account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServicePair(cmd, configPath, channel)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&channel, "channel", "", "Channel to pair: imessage, discord, or slack")
	cmd.MarkFlagRequired("channel")
	return cmd
}
