// Package main is the CLI entry point for Perlica, a local command-line
// agent that drives an external LLM provider over the Agent-Client-Protocol.
//
// # Basic Usage
//
//	perlica run "summarize this repo"
//	perlica session list
//	perlica policy allow shell.exec
//	perlica doctor
//
// # Environment Variables
//
//   - PERLICA_CONFIG: path to the YAML/JSON5 configuration file
//   - PERLICA_CONTEXT_ROOT: overrides the context root (defaults to the cwd)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/perlica/perlica/internal/acp"
	"github.com/perlica/perlica/internal/approval"
	"github.com/perlica/perlica/internal/config"
	"github.com/perlica/perlica/internal/dispatcher"
	"github.com/perlica/perlica/internal/eventlog"
	"github.com/perlica/perlica/internal/mcp"
	"github.com/perlica/perlica/internal/obslog"
	"github.com/perlica/perlica/internal/policy"
	"github.com/perlica/perlica/internal/runner"
	"github.com/perlica/perlica/internal/sessionstore"
	"github.com/perlica/perlica/internal/skills"
	"github.com/perlica/perlica/internal/taskcoord"
	"github.com/perlica/perlica/internal/tools"
)

const defaultConfigName = "perlica.yaml"

// DefaultConfigPath is ~/.perlica/perlica.yaml, mirroring the teacher's
// per-user profile convention (profile.DefaultConfigPath in cmd/nexus).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(home, ".perlica", defaultConfigName)
}

// DefaultStateDir is where Perlica keeps its sqlite stores and pairing data,
// rooted alongside the config file rather than inside the workspace the
// agent operates on.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".perlica-state"
	}
	return filepath.Join(home, ".perlica", "state")
}

func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	if env := os.Getenv("PERLICA_CONFIG"); env != "" {
		return env
	}
	return DefaultConfigPath()
}

func resolveContextRoot(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	if env := os.Getenv("PERLICA_CONTEXT_ROOT"); env != "" {
		return env
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// app bundles every long-lived collaborator a command needs, opened once per
// invocation and closed on return. Commands that don't touch every store
// (e.g. "policy list") still pay the cost of opening them — a CLI process is
// short-lived enough that this is simpler than threading partial wiring
// through each command.
type app struct {
	cfg         *config.Config
	contextRoot string
	stateDir    string
	logger      *slog.Logger
	debugLog    *obslog.Sink

	sessions *sessionstore.Store
	events   *eventlog.Store
	tasks    *taskcoord.Coordinator
	policies *policy.Store
}

func newApp(configPath, contextRoot string) (*app, error) {
	configPath = resolveConfigPath(configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	stateDir := DefaultStateDir()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	sessions, err := sessionstore.Open(filepath.Join(stateDir, "sessions.db"))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	events, err := eventlog.Open(filepath.Join(stateDir, "events.db"), logger)
	if err != nil {
		sessions.Close()
		return nil, fmt.Errorf("open event log: %w", err)
	}

	debugLog, err := obslog.NewSink(cfg.Runtime.Logs, filepath.Join(stateDir, "debug.jsonl"))
	if err != nil {
		sessions.Close()
		events.Close()
		return nil, fmt.Errorf("open debug log: %w", err)
	}

	a := &app{
		cfg:         cfg,
		contextRoot: resolveContextRoot(contextRoot),
		stateDir:    stateDir,
		logger:      logger,
		debugLog:    debugLog,
		sessions:    sessions,
		events:      events,
		policies:    policy.NewStore(),
	}
	a.tasks = taskcoord.New(&taskcoordEventSink{app: a})
	return a, nil
}

func (a *app) Close() {
	a.sessions.Close()
	a.events.Close()
	a.debugLog.Close()
}

// profileFor builds an acp.Profile for providerID, layering the operator's
// config.ProviderConfig over the built-in default for that provider id so an
// operator only needs to set the fields they want to change.
func (a *app) profileFor(providerID string) (acp.Profile, error) {
	var base acp.Profile
	found := false
	for _, p := range acp.DefaultProfiles() {
		if p.ProviderID == providerID {
			base = p
			found = true
			break
		}
	}
	if !found {
		return acp.Profile{}, fmt.Errorf("app: unknown provider id %q", providerID)
	}

	pc, ok := a.cfg.Providers[providerID]
	if !ok {
		return base, nil
	}

	if pc.AdapterCommand != "" {
		base.AdapterCommand = pc.AdapterCommand
	}
	if len(pc.AdapterArgs) > 0 {
		base.AdapterArgs = pc.AdapterArgs
	}
	if len(pc.AdapterEnvAllowlist) > 0 {
		base.EnvAllowlist = pc.AdapterEnvAllowlist
	}
	if pc.ACPConnectTimeoutSec > 0 {
		base.ConnectTimeoutSec = pc.ACPConnectTimeoutSec
	}
	if pc.ACPRequestTimeoutSec > 0 {
		base.RequestTimeoutSec = pc.ACPRequestTimeoutSec
	}
	if pc.ACPMaxRetries > 0 {
		base.MaxRetries = pc.ACPMaxRetries
	}
	if pc.ACPBackoff != "" {
		base.Backoff = pc.ACPBackoff
	}
	base.CircuitBreakerEnabled = pc.ACPCircuitBreakerEnabled
	if pc.ToolExecutionMode != "" {
		base.ToolExecutionMode = pc.ToolExecutionMode
	}
	if pc.InjectionFailurePolicy != "" {
		base.InjectionFailurePolicy = pc.InjectionFailurePolicy
	}
	return base, nil
}

// defaultProviderID returns the first enabled provider id in the config, in
// map-stable (sorted) order so repeated runs pick the same default.
func (a *app) defaultProviderID() (string, error) {
	var ids []string
	for id, pc := range a.cfg.Providers {
		if pc.Enabled {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("app: no provider is enabled in config")
	}
	sortStrings(ids)
	return ids[0], nil
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}

// runnerStack bundles every object buildRunner constructs, so callers can
// close the provider transport after the turn without the app package
// reaching back into runner internals.
type runnerStack struct {
	run      *runner.Runner
	provider *acp.Provider
}

func (rs *runnerStack) Close() {
	rs.provider.Close()
}

// buildRunner assembles a Runner for providerID: transport, codec, provider,
// dispatcher, the static tool catalog, skill engine, and compaction
// summarizer. workspaceDir scopes both the shell tool and the provider's own
// session root. resolver is consulted for an Ask disposition; a nil resolver
// means an Ask-tier call is denied rather than blocking (the right default
// for a non-interactive caller like the background service).
func (a *app) buildRunner(providerID, workspaceDir string, resolver dispatcher.ApprovalResolver) (*runnerStack, error) {
	profile, err := a.profileFor(providerID)
	if err != nil {
		return nil, err
	}

	transport, err := acp.BuildTransport(profile, nil, a.logger)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}
	codec, err := acp.NewCodec(providerID)
	if err != nil {
		return nil, fmt.Errorf("build codec: %w", err)
	}
	provider := acp.NewProvider(profile, transport, codec, a.logger)
	if err := provider.Connect(context.Background()); err != nil {
		return nil, fmt.Errorf("connect provider %s: %w", providerID, err)
	}

	mcpManager := mcp.NewManager(&mcp.Config{Enabled: false}, a.logger)

	registry, catalog := buildToolset(workspaceDir, mcpManager)
	approvals := approval.NewStore()
	disp := dispatcher.New(registry, a.policies, approvals, &dispatcherEventSink{app: a})
	if resolver != nil {
		disp = disp.WithResolver(resolver)
	}

	skillEngine := skills.NewEngine([]string{filepath.Join(workspaceDir, ".perlica", "skills")}, nil, nil)
	skillEngine.Reload()

	summarizer := &runner.ProviderSummarizer{Provider: provider, WorkspaceDir: workspaceDir}

	r := runner.New(
		a.sessions, a.events, a.tasks,
		provider, disp, catalog, skillEngine, summarizer,
		runner.FromRuntimeConfig(a.cfg.Runtime),
		providerID, "", a.logger,
	)

	return &runnerStack{run: r, provider: provider}, nil
}
