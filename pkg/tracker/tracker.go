// Package tracker is the client for the external issue tracker the engine
// coordinates against. All access goes through the tracker CLI so the daemon
// never needs tracker credentials of its own; the CommandRunner seam keeps
// the package testable without a real tracker installed.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"

	"foundry/pkg/protocol"
)

// IssueStatus is the tracker-side status of an issue.
type IssueStatus string

// Issue statuses the engine cares about.
const (
	StatusReady      IssueStatus = "ready"
	StatusInProgress IssueStatus = "in_progress"
	StatusDone       IssueStatus = "done"
	StatusBlocked    IssueStatus = "blocked"
)

// Issue is one unit of trackable work as the tracker CLI reports it.
type Issue struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Status      IssueStatus `json:"status"`
	Stage       string      `json:"stage"`
	ProjectKey  string      `json:"project_key"`
	Priority    int         `json:"priority"`
	Description string      `json:"description,omitempty"`
}

// IssueTracker is the engine's view of the external tracker.
type IssueTracker interface {
	// ListReady returns issues that are unblocked and awaiting dispatch.
	ListReady(ctx context.Context) ([]Issue, error)
	// ListInProgress returns issues the tracker believes are being worked.
	ListInProgress(ctx context.Context) ([]Issue, error)
	// Show returns one issue by id.
	Show(ctx context.Context, id string) (*Issue, error)
	// AppendNote posts a progress note onto an issue.
	AppendNote(ctx context.Context, id, note string) error
	// SetStatus moves an issue to a new tracker status.
	SetStatus(ctx context.Context, id string, status IssueStatus) error
}

// CommandRunner abstracts command execution for testability.
// Production implementation uses os/exec; tests provide a mock.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CLITracker implements IssueTracker by shelling out to the tracker CLI.
type CLITracker struct {
	runner CommandRunner
	bin    string
}

// NewCLITracker creates a CLITracker that invokes the given tracker binary.
// A nil runner gets the os/exec implementation.
func NewCLITracker(bin string, runner CommandRunner) *CLITracker {
	if runner == nil {
		runner = &ExecCommandRunner{}
	}
	return &CLITracker{runner: runner, bin: bin}
}

// ListReady runs `<bin> list --status=ready --json`.
func (t *CLITracker) ListReady(ctx context.Context) ([]Issue, error) {
	return t.list(ctx, StatusReady)
}

// ListInProgress runs `<bin> list --status=in_progress --json`.
func (t *CLITracker) ListInProgress(ctx context.Context) ([]Issue, error) {
	return t.list(ctx, StatusInProgress)
}

func (t *CLITracker) list(ctx context.Context, status IssueStatus) ([]Issue, error) {
	out, err := t.runner.Run(ctx, t.bin, "list", "--status="+string(status), "--json")
	if err != nil {
		return nil, t.unavailable(err)
	}

	var issues []Issue
	if err := json.Unmarshal(out, &issues); err != nil {
		return nil, fmt.Errorf("parse %s list output: %w", t.bin, err)
	}
	return issues, nil
}

// Show runs `<bin> show <id> --json`.
func (t *CLITracker) Show(ctx context.Context, id string) (*Issue, error) {
	out, err := t.runner.Run(ctx, t.bin, "show", id, "--json")
	if err != nil {
		return nil, t.unavailable(err)
	}

	var issue Issue
	if err := json.Unmarshal(out, &issue); err != nil {
		return nil, fmt.Errorf("parse %s show output: %w", t.bin, err)
	}
	return &issue, nil
}

// AppendNote runs `<bin> note <id> <note>`.
func (t *CLITracker) AppendNote(ctx context.Context, id, note string) error {
	if _, err := t.runner.Run(ctx, t.bin, "note", id, note); err != nil {
		return t.unavailable(err)
	}
	return nil
}

// SetStatus runs `<bin> update <id> --status=<status>`.
func (t *CLITracker) SetStatus(ctx context.Context, id string, status IssueStatus) error {
	if _, err := t.runner.Run(ctx, t.bin, "update", id, "--status="+string(status)); err != nil {
		return t.unavailable(err)
	}
	return nil
}

// CreateDiscovered files follow-up work an agent surfaced mid-stage. Runs
// `<bin> create --title=... --kind=... --priority=N`.
func (t *CLITracker) CreateDiscovered(ctx context.Context, projectKey string, work protocol.DiscoveredWork) (string, error) {
	out, err := t.runner.Run(ctx, t.bin, "create",
		"--project="+projectKey,
		"--title="+work.Title,
		"--kind="+work.Kind,
		fmt.Sprintf("--priority=%d", work.Priority),
	)
	if err != nil {
		return "", t.unavailable(err)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(out, &created); err != nil {
		return "", fmt.Errorf("parse %s create output: %w", t.bin, err)
	}
	return created.ID, nil
}

func (t *CLITracker) unavailable(err error) error {
	return &protocol.CollaboratorUnavailableError{Collaborator: t.bin, Err: err}
}
