package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// =============================================================================
// Session Command Handlers
// =============================================================================

func runSessionList(cmd *cobra.Command, configPath string) error {
	a, err := newApp(configPath, "")
	if err != nil {
		return err
	}
	defer a.Close()

	sessions, err := a.sessions.List(a.contextRoot)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "no sessions in this context")
		return nil
	}
	for _, s := range sessions {
		status := "ephemeral"
		if !s.Ephemeral {
			status = "saved"
		}
		name := s.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(out, "%s  %-12s %-20s provider=%-10s updated=%s\n", s.ID, status, name, s.ProviderID, s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runSessionShow(cmd *cobra.Command, configPath, ref string) error {
	a, err := newApp(configPath, "")
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.sessions.ResolveRef(a.contextRoot, ref)
	if err != nil {
		return fmt.Errorf("resolve session %q: %w", ref, err)
	}
	messages, err := a.sessions.Messages(sess.ID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	summaries, err := a.sessions.Summaries(sess.ID)
	if err != nil {
		return fmt.Errorf("load summaries: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s (name=%q provider=%s ephemeral=%v)\n", sess.ID, sess.Name, sess.ProviderID, sess.Ephemeral)
	for _, sm := range summaries {
		fmt.Fprintf(out, "[summary #%d] %s\n", sm.Seq, sm.Text)
	}
	for _, m := range messages {
		fmt.Fprintf(out, "[%d] %s: %s\n", m.Seq, m.Role, m.Content)
	}
	return nil
}

func runSessionSave(cmd *cobra.Command, configPath, ref, name string) error {
	a, err := newApp(configPath, "")
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.sessions.ResolveRef(a.contextRoot, ref)
	if err != nil {
		return fmt.Errorf("resolve session %q: %w", ref, err)
	}
	saved, err := a.sessions.Save(sess.ID, name)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved session %s as %q\n", saved.ID, saved.Name)
	return nil
}

func runSessionDiscard(cmd *cobra.Command, configPath, ref string) error {
	a, err := newApp(configPath, "")
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.sessions.ResolveRef(a.contextRoot, ref)
	if err != nil {
		return fmt.Errorf("resolve session %q: %w", ref, err)
	}
	if err := a.sessions.Discard(sess.ID); err != nil {
		return fmt.Errorf("discard session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "discarded session %s\n", sess.ID)
	return nil
}

func runSessionClear(cmd *cobra.Command, configPath, ref string) error {
	a, err := newApp(configPath, "")
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.sessions.ResolveRef(a.contextRoot, ref)
	if err != nil {
		return fmt.Errorf("resolve session %q: %w", ref, err)
	}
	report, err := a.sessions.ClearContext(sess.ID)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cleared session %s: %d message(s), %d summary(ies) removed\n",
		sess.ID, report.DeletedMessages, report.DeletedSummaries)
	return nil
}

func runSessionDropProvider(cmd *cobra.Command, configPath, providerID string) error {
	a, err := newApp(configPath, "")
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.sessions.DropByProvider(providerID)
	if err != nil {
		return fmt.Errorf("drop provider sessions: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "dropped %d session(s), %d message(s), %d summary(ies) for provider %s\n",
		report.DeletedSessions, report.DeletedMessages, report.DeletedSummaries, providerID)
	return nil
}
