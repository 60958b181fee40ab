package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/perlica/perlica/internal/channels"
	"github.com/perlica/perlica/internal/channels/discord"
	"github.com/perlica/perlica/internal/channels/slack"
	"github.com/perlica/perlica/internal/runner"
	"github.com/perlica/perlica/internal/service"
	"github.com/spf13/cobra"
)

// serviceRunInput builds the Input for one bound-session turn; sessionID
// doubles as the session ref, since bindings always name an existing
// session rather than letting the run create one implicitly.
func serviceRunInput(contextRoot, sessionID, text string) runner.Input {
	return runner.Input{
		ContextRoot:  contextRoot,
		WorkspaceDir: contextRoot,
		SessionRef:   sessionID,
		Text:         text,
	}
}

// =============================================================================
// Service Command Handlers
// =============================================================================

// buildChannelAdapter constructs the named channel's adapter from
// environment-sourced credentials, matching the original implementation's
// convention of never putting bot tokens in the YAML config file.
func buildChannelAdapter(a *app, channelName string) (channels.ChannelAdapter, error) {
	switch strings.ToLower(channelName) {
	case "imessage":
		return buildIMessageAdapter(a)
	case "discord":
		return discord.New(discord.Config{Token: os.Getenv("DISCORD_BOT_TOKEN"), Logger: a.logger}, nil)
	case "slack":
		return slack.New(slack.Config{
			BotToken: os.Getenv("SLACK_BOT_TOKEN"),
			AppToken: os.Getenv("SLACK_APP_TOKEN"),
			Logger:   a.logger,
		}, nil, nil)
	default:
		return nil, fmt.Errorf("service: unknown channel %q", channelName)
	}
}

func runServiceStart(cmd *cobra.Command, configPath, channelName, providerID string) error {
	a, err := newApp(configPath, "")
	if err != nil {
		return err
	}
	defer a.Close()

	adapter, err := buildChannelAdapter(a, channelName)
	if err != nil {
		return err
	}

	if strings.TrimSpace(providerID) == "" {
		providerID, err = a.defaultProviderID()
		if err != nil {
			return err
		}
	}

	orch := service.NewOrchestrator(a.stateDir, &serviceEventSink{app: a}, a.logger)
	orch.RegisterAdapter(adapter, func(ctx context.Context, sessionID, text string) (string, error) {
		stack, err := a.buildRunner(providerID, a.contextRoot, nil)
		if err != nil {
			return "", err
		}
		defer stack.Close()
		result, err := stack.run.Run(ctx, serviceRunInput(a.contextRoot, sessionID, text))
		if err != nil {
			return "", err
		}
		return result.AssistantText, nil
	})

	if _, err := orch.Bootstrap(channelName); err != nil {
		return fmt.Errorf("bootstrap %s: %w", channelName, err)
	}
	if err := orch.StartListener(channelName); err != nil {
		return fmt.Errorf("start listener %s: %w", channelName, err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Fprintf(cmd.OutOrStdout(), "service listening on channel %s (provider %s); ctrl-c to stop\n", channelName, providerID)
	<-ctx.Done()

	fmt.Fprintln(cmd.OutOrStdout(), "shutdown signal received, stopping listener")
	return orch.StopListener(channelName)
}

func runServicePair(cmd *cobra.Command, configPath, channelName string) error {
	a, err := newApp(configPath, "")
	if err != nil {
		return err
	}
	defer a.Close()

	adapter, err := buildChannelAdapter(a, channelName)
	if err != nil {
		return err
	}

	orch := service.NewOrchestrator(a.stateDir, &serviceEventSink{app: a}, a.logger)
	orch.RegisterAdapter(adapter, nil)

	code, err := orch.Bootstrap(channelName)
	if err != nil {
		return fmt.Errorf("bootstrap %s: %w", channelName, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pairing code for %s: %s\n", channelName, code)
	return nil
}
