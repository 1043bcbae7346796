// Package recovery rebuilds in-memory orchestration state after a daemon
// restart. Durable state (project registry, notification queue) reloads from
// snapshots; agent state is gone, so the Coordinator reconciles against the
// external issue tracker and re-dispatches whatever was in flight.
package recovery

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"foundry/pkg/engine"
	"foundry/pkg/notify"
	"foundry/pkg/protocol"
	"foundry/pkg/registry"
	"foundry/pkg/tracker"
)

// RecoveryError indicates the recovery procedure could not restore a piece of
// state. Partial recovery is normal: individual entries are skipped and the
// errors surface here rather than aborting startup.
type RecoveryError struct {
	Source string // which store or collaborator failed
	Err    error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("recover %s: %v", e.Source, e.Err)
}

func (e *RecoveryError) Unwrap() error { return e.Err }

// LoadState reloads the durable stores from their snapshots. Missing
// snapshots yield empty stores; corrupt entries are skipped and reported as
// RecoveryErrors. The stores are always usable on return.
func LoadState(registryPath, queuePath string) (*registry.Registry, *notify.Queue, []error) {
	var errs []error

	reg, regErrs := registry.Open(registryPath)
	for _, err := range regErrs {
		errs = append(errs, &RecoveryError{Source: "registry", Err: err})
	}

	queue, queueErrs := notify.Open(queuePath)
	for _, err := range queueErrs {
		errs = append(errs, &RecoveryError{Source: "notifications", Err: err})
	}

	return reg, queue, errs
}

// --- Coordinator ---

// Config holds Coordinator configuration.
type Config struct {
	SignalPath           string        // Restart-signal file to watch; empty disables Watch.
	FallbackPollInterval time.Duration // Safety-net poll interval for Watch (default 60s).
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.FallbackPollInterval == 0 {
		out.FallbackPollInterval = 60 * time.Second
	}
	return out
}

// ArtifactSourceFactory builds an artifact source rooted at one project's
// workspace, so relative artifact paths resolve inside that project rather
// than against the daemon's working directory.
type ArtifactSourceFactory func(workspaceRoot string) protocol.ArtifactSource

// Coordinator reconciles tracker state against the live engine. After a crash
// the tracker still shows issues in_progress but no agent holds them; the
// Coordinator re-dispatches each one exactly once.
type Coordinator struct {
	cfg       Config
	engine    *engine.Engine
	registry  *registry.Registry
	tracker   tracker.IssueTracker
	artifacts ArtifactSourceFactory
	worker    engine.Worker
	logger    *log.Logger
}

// New creates a Coordinator. It does nothing until Run or Watch is called.
func New(cfg Config, eng *engine.Engine, reg *registry.Registry, trk tracker.IssueTracker, artifacts ArtifactSourceFactory, w engine.Worker) *Coordinator {
	return &Coordinator{
		cfg:       cfg.withDefaults(),
		engine:    eng,
		registry:  reg,
		tracker:   trk,
		artifacts: artifacts,
		worker:    w,
		logger:    log.Default(),
	}
}

// Report summarizes one reconciliation pass.
type Report struct {
	Redispatched []string         // issue ids handed back to the engine
	AlreadyHeld  []string         // issue ids an active agent already owns
	Skipped      map[string]error // issue id -> why it could not be re-dispatched
}

// Run performs one reconciliation pass: every tracker issue that is
// in_progress but held by no active agent gets re-dispatched. Individual
// failures are recorded in the report and logged, never fatal; only an
// unreachable tracker aborts the pass.
func (c *Coordinator) Run(ctx context.Context) (Report, error) {
	report := Report{Skipped: make(map[string]error)}

	issues, err := c.tracker.ListInProgress(ctx)
	if err != nil {
		return report, &RecoveryError{Source: "tracker", Err: err}
	}

	held := make(map[string]bool)
	for _, inst := range c.engine.ListActive() {
		if inst.CurrentTask != "" {
			held[inst.CurrentTask] = true
		}
	}

	seen := make(map[string]bool)
	for _, issue := range issues {
		if seen[issue.ID] {
			continue
		}
		seen[issue.ID] = true

		if held[issue.ID] {
			report.AlreadyHeld = append(report.AlreadyHeld, issue.ID)
			continue
		}

		if err := c.redispatch(ctx, issue); err != nil {
			c.logger.Printf("recovery: re-dispatch %s: %v", issue.ID, err)
			report.Skipped[issue.ID] = err
			continue
		}
		report.Redispatched = append(report.Redispatched, issue.ID)
	}

	sort.Strings(report.Redispatched)
	sort.Strings(report.AlreadyHeld)
	return report, nil
}

// redispatch rebuilds the dispatch for one orphaned issue and hands it to the
// engine.
func (c *Coordinator) redispatch(ctx context.Context, issue tracker.Issue) error {
	project, ok := c.registry.Get(issue.ProjectKey)
	if !ok {
		return fmt.Errorf("project %s not in registry", issue.ProjectKey)
	}
	if project.Status != registry.StatusActive {
		return fmt.Errorf("project %s is %s, not active", project.Key, project.Status)
	}

	msg, err := protocol.BuildDispatch(ctx, c.artifacts(project.WorkspacePath), protocol.BuildOptions{
		StageName:     issue.Stage,
		IssueID:       issue.ID,
		ProjectKey:    issue.ProjectKey,
		WorkspaceRoot: project.WorkspacePath,
	})
	if err != nil {
		return err
	}

	if _, err := c.engine.Spawn(ctx, msg, c.worker); err != nil {
		return err
	}
	return nil
}
