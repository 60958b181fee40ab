package main

import (
	"fmt"
	"path/filepath"

	"github.com/perlica/perlica/internal/skills"
	"github.com/perlica/perlica/internal/staticsync"
	"github.com/spf13/cobra"
)

// =============================================================================
// Sync Command
// =============================================================================

const syncNamespacePrefix = "perlica"

func buildSyncCmd() *cobra.Command {
	var (
		configPath string
		provider   string
		scope      string
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Write skills and MCP server config into a provider's own static config files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, configPath, provider, scope)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider id to sync (defaults to the first enabled provider)")
	cmd.Flags().StringVar(&scope, "scope", "project_first", "Where to write: project_first, project, or user")
	return cmd
}

func runSync(cmd *cobra.Command, configPath, providerID, scope string) error {
	a, err := newApp(configPath, "")
	if err != nil {
		return err
	}
	defer a.Close()

	if providerID == "" {
		providerID, err = a.defaultProviderID()
		if err != nil {
			return err
		}
	}
	syncer, ok := syncerFor(providerID)
	if !ok {
		return fmt.Errorf("sync: no syncer for provider %q", providerID)
	}

	skillEngine := skills.NewEngine([]string{filepath.Join(a.contextRoot, ".perlica", "skills")}, nil, nil)
	skillEngine.Reload()

	var payloadSkills []staticsync.Skill
	for _, s := range skillEngine.ListSkills() {
		payloadSkills = append(payloadSkills, staticsync.Skill{
			ID:           s.SkillID,
			Name:         s.Name,
			Description:  s.Description,
			SystemPrompt: s.SystemPrompt,
		})
	}

	payload := staticsync.Payload{
		WorkspaceDir:    a.contextRoot,
		ScopeMode:       staticsync.ScopeMode(scope),
		Skills:          payloadSkills,
		StaleCleanup:    true,
		NamespacePrefix: syncNamespacePrefix,
	}

	report := staticsync.Sync(syncer, payload)
	out := cmd.OutOrStdout()
	for _, item := range report.Applied {
		fmt.Fprintf(out, "applied %s %s\n", item.Kind, item.ID)
	}
	for _, item := range report.Skipped {
		fmt.Fprintf(out, "skipped %s %s: %s\n", item.Kind, item.ID, item.Reason)
	}
	for _, item := range report.Failed {
		fmt.Fprintf(out, "failed %s %s: %s\n", item.Kind, item.ID, item.Reason)
	}
	if report.HasFailures() {
		return fmt.Errorf("sync: %d item(s) failed", len(report.Failed))
	}
	return nil
}
