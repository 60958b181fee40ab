package main

import (
	"fmt"

	"github.com/perlica/perlica/internal/policy"
	"github.com/spf13/cobra"
)

// =============================================================================
// Policy Commands
// =============================================================================

func buildPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and configure tool approval policy",
	}
	cmd.AddCommand(
		buildPolicyListCmd(),
		buildPolicySetCmd("allow", policy.AlwaysAllow, "Always allow a tool or risk tier without prompting"),
		buildPolicySetCmd("deny", policy.AlwaysDeny, "Always deny a tool or risk tier without prompting"),
		buildPolicySetCmd("ask", policy.Ask, "Prompt for approval on every call to a tool or risk tier"),
	)
	return cmd
}

func buildPolicyListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured policy rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicyList(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}

// buildPolicySetCmd builds the allow/deny/ask subcommand; they differ only
// in the disposition they pin, so one builder covers all three.
func buildPolicySetCmd(use string, disposition policy.Disposition, short string) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   use + " <tool-id|risk:low|risk:medium|risk:high>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicySet(cmd, configPath, args[0], disposition)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}

func runPolicyList(cmd *cobra.Command, configPath string) error {
	a, err := newApp(configPath, "")
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	rules := a.policies.Rules()
	if len(rules) == 0 {
		fmt.Fprintln(out, "no policy rules configured (every tool asks)")
		return nil
	}
	for _, r := range rules {
		fmt.Fprintln(out, r.String())
	}
	return nil
}

func runPolicySet(cmd *cobra.Command, configPath, target string, disposition policy.Disposition) error {
	a, err := newApp(configPath, "")
	if err != nil {
		return err
	}
	defer a.Close()

	if tier, ok := riskTierFromTarget(target); ok {
		a.policies.SetRiskPolicy(tier, disposition)
		fmt.Fprintf(cmd.OutOrStdout(), "set risk tier %s to %s\n", tier, disposition)
		return nil
	}
	a.policies.SetToolPolicy(target, disposition)
	fmt.Fprintf(cmd.OutOrStdout(), "set tool %s to %s\n", target, disposition)
	return nil
}

// riskTierFromTarget parses "risk:low"/"risk:medium"/"risk:high" into a
// policy.RiskTier, reporting false for anything else (a bare tool id).
func riskTierFromTarget(target string) (policy.RiskTier, bool) {
	const prefix = "risk:"
	if len(target) <= len(prefix) || target[:len(prefix)] != prefix {
		return "", false
	}
	tier := policy.RiskTier(target[len(prefix):])
	return tier, tier.Valid()
}
