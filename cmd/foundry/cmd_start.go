package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"foundry/pkg/engine"
	"foundry/pkg/eventlog"
	"foundry/pkg/protocol"
	"foundry/pkg/recovery"
	"foundry/pkg/registry"
	"foundry/pkg/tracker"
)

// newStartCmd creates the "foundry start" subcommand.
func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the foundry daemon",
		Long: `Runs the dispatch daemon in the foreground: reconciles tracker state,
watches for the restart signal, polls for ready work, and dispatches each
issue to its routed agent. SIGTERM or SIGINT triggers graceful shutdown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}
			return runStart(cmd.Context(), cmd.OutOrStdout(), paths)
		},
	}
}

// runStart wires the daemon together and blocks until shutdown.
func runStart(parent context.Context, w io.Writer, paths *Paths) error {
	status, pid, err := DaemonStatus(paths.PIDPath)
	if err != nil {
		return err
	}
	switch status {
	case DaemonRunning:
		return fmt.Errorf("daemon already running (PID %d)", pid)
	case DaemonStale:
		fmt.Fprintln(w, "removing stale PID file (process already dead)")
		if err := RemovePIDFile(paths.PIDPath); err != nil {
			return err
		}
	case DaemonStopped:
	}

	if err := os.MkdirAll(paths.FoundryHome, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	cfg, err := LoadDaemonConfig(paths.ConfigPath)
	if err != nil {
		return err
	}

	if err := WritePIDFile(paths.PIDPath, os.Getpid()); err != nil {
		return err
	}
	ctx, cleanup := SetupSignalHandler(parent, paths.PIDPath)
	defer cleanup()

	events, err := eventlog.Open(paths.EventDBPath)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer func() { _ = events.Close() }()

	reg, queue, loadErrs := recovery.LoadState(paths.RegistryPath, paths.QueuePath)
	for _, err := range loadErrs {
		log.Printf("startup: %v", err)
	}

	var docs protocol.StageDocs
	if cfg.StageDocsPath != "" {
		docs, err = protocol.LoadStageDocs(cfg.StageDocsPath)
		if err != nil {
			return fmt.Errorf("load stage docs: %w", err)
		}
	}

	trk := tracker.NewCLITracker(cfg.TrackerBin, nil)
	// Each dispatch gets a source rooted at its project's workspace so
	// relative artifact paths resolve there, not in the daemon's cwd.
	artifacts := func(workspaceRoot string) protocol.ArtifactSource {
		return tracker.NewCLIArtifactSource(cfg.TrackerBin, workspaceRoot, nil)
	}
	eng := engine.New(cfg.EngineConfig(), reg, queue, events, trk)
	worker := engine.CommandWorker(cfg.AgentCommand[0], cfg.AgentCommand[1:]...)

	coordinator := recovery.New(recovery.Config{
		SignalPath:           paths.SignalPath,
		FallbackPollInterval: cfg.FallbackPollInterval(),
	}, eng, reg, trk, artifacts, worker)

	// Crash recovery: pick up whatever the tracker still shows in flight.
	report, err := coordinator.Run(ctx)
	if err != nil {
		log.Printf("startup reconcile: %v", err)
	} else if len(report.Redispatched) > 0 {
		fmt.Fprintf(w, "recovered %d in-flight issue(s)\n", len(report.Redispatched))
	}

	go func() {
		if err := coordinator.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("restart watcher: %v", err)
		}
	}()

	d := &daemon{
		cfg:       cfg,
		engine:    eng,
		registry:  reg,
		tracker:   trk,
		artifacts: artifacts,
		worker:    worker,
		docs:      docs,
		logger:    log.Default(),
	}

	fmt.Fprintf(w, "foundry daemon running (PID %d)\n", os.Getpid())
	d.loop(ctx)

	fmt.Fprintln(w, "shutting down...")
	eng.Shutdown()
	fmt.Fprintln(w, "shutdown complete")
	return nil
}

// daemon holds the dispatch loop's collaborators.
type daemon struct {
	cfg       DaemonConfig
	engine    *engine.Engine
	registry  *registry.Registry
	tracker   tracker.IssueTracker
	artifacts recovery.ArtifactSourceFactory
	worker    engine.Worker
	docs      protocol.StageDocs
	logger    *log.Logger
}

// loop polls the tracker for ready work until ctx is cancelled.
func (d *daemon) loop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.dispatchReady(ctx)
		}
	}
}

// dispatchReady performs one poll-and-dispatch pass. Individual issue
// failures are logged and skipped; a saturated engine ends the pass early.
func (d *daemon) dispatchReady(ctx context.Context) {
	issues, err := d.tracker.ListReady(ctx)
	if err != nil {
		d.logger.Printf("daemon: list ready work: %v", err)
		return
	}

	for _, issue := range issues {
		if err := d.dispatchIssue(ctx, issue); err != nil {
			var exhausted *engine.ConcurrencyExhaustedError
			if errors.As(err, &exhausted) {
				// Pool is full; remaining issues wait for the next tick.
				return
			}
			d.logger.Printf("daemon: dispatch %s: %v", issue.ID, err)
		}
	}
}

// dispatchIssue moves one ready issue into execution: marks it in_progress,
// builds its dispatch, and hands it to the engine. The tracker status is
// rolled back if no agent could be spawned.
func (d *daemon) dispatchIssue(ctx context.Context, issue tracker.Issue) error {
	project, ok := d.registry.Get(issue.ProjectKey)
	if !ok {
		return fmt.Errorf("project %s not in registry", issue.ProjectKey)
	}
	if project.Status != registry.StatusActive {
		return nil // paused or completed projects accept no new work
	}

	msg, err := protocol.BuildDispatch(ctx, d.artifacts(project.WorkspacePath), protocol.BuildOptions{
		StageName:     issue.Stage,
		IssueID:       issue.ID,
		ProjectKey:    issue.ProjectKey,
		WorkspaceRoot: project.WorkspacePath,
		StageDocs:     d.docs,
	})
	if err != nil {
		return err
	}

	if err := d.tracker.SetStatus(ctx, issue.ID, tracker.StatusInProgress); err != nil {
		return err
	}

	if _, err := d.engine.Spawn(ctx, msg, d.worker); err != nil {
		if rbErr := d.tracker.SetStatus(ctx, issue.ID, tracker.StatusReady); rbErr != nil {
			d.logger.Printf("daemon: roll back status of %s: %v", issue.ID, rbErr)
		}
		return err
	}
	return nil
}
