package main

import (
	"fmt"

	"github.com/perlica/perlica/internal/security/probe"
	"github.com/spf13/cobra"
)

// =============================================================================
// Doctor Command
// =============================================================================

func buildDoctorCmd() *cobra.Command {
	var (
		configPath   string
		triggerApple bool
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and startup capability (shell, AppleScript)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, configPath, triggerApple)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVar(&triggerApple, "trigger-applescript", false, "Actually invoke System Events, triggering a permission prompt if not yet authorized")
	return cmd
}

func runDoctor(cmd *cobra.Command, configPath string, triggerApple bool) error {
	out := cmd.OutOrStdout()

	a, err := newApp(configPath, "")
	if err != nil {
		fmt.Fprintf(out, "config: FAILED (%s)\n", err)
		return err
	}
	defer a.Close()
	fmt.Fprintf(out, "config: OK (state dir %s)\n", a.stateDir)

	for id, pc := range a.cfg.Providers {
		status := "disabled"
		if pc.Enabled {
			status = "enabled"
		}
		fmt.Fprintf(out, "provider %s: %s (adapter=%s)\n", id, status, pc.AdapterCommand)
	}

	report := probe.RunStartupChecks(a.contextRoot, triggerApple)
	for _, name := range []string{"shell", "applescript"} {
		r := report.Checks[name]
		fmt.Fprintf(out, "probe %s: %s (%s)\n", r.Name, r.Status, r.Detail)
		if !r.OK && r.Hint != "" {
			fmt.Fprintf(out, "  hint: %s\n", r.Hint)
		}
	}
	if !report.OK {
		return fmt.Errorf("doctor: one or more startup checks failed")
	}
	return nil
}
