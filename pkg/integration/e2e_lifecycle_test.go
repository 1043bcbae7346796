// Package integration_test provides end-to-end lifecycle tests for foundry:
// tracker issue -> dispatch -> agent execution -> completion notification,
// plus crash recovery across a simulated restart.
package integration_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"foundry/pkg/engine"
	"foundry/pkg/eventlog"
	"foundry/pkg/notify"
	"foundry/pkg/protocol"
	"foundry/pkg/recovery"
	"foundry/pkg/registry"
	"foundry/pkg/tracker"
)

// trackingIssueSource is an in-memory IssueTracker that records status
// changes and notes.
type trackingIssueSource struct {
	mu       sync.Mutex
	issues   map[string]tracker.Issue
	notes    map[string][]string
	statuses map[string]tracker.IssueStatus
}

func newTrackingIssueSource(issues ...tracker.Issue) *trackingIssueSource {
	s := &trackingIssueSource{
		issues:   make(map[string]tracker.Issue),
		notes:    make(map[string][]string),
		statuses: make(map[string]tracker.IssueStatus),
	}
	for _, issue := range issues {
		s.issues[issue.ID] = issue
		s.statuses[issue.ID] = issue.Status
	}
	return s
}

func (s *trackingIssueSource) listByStatus(status tracker.IssueStatus) []tracker.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []tracker.Issue
	for id, issue := range s.issues {
		if s.statuses[id] == status {
			issue.Status = status
			out = append(out, issue)
		}
	}
	return out
}

func (s *trackingIssueSource) ListReady(context.Context) ([]tracker.Issue, error) {
	return s.listByStatus(tracker.StatusReady), nil
}

func (s *trackingIssueSource) ListInProgress(context.Context) ([]tracker.Issue, error) {
	return s.listByStatus(tracker.StatusInProgress), nil
}

func (s *trackingIssueSource) Show(_ context.Context, id string) (*tracker.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue := s.issues[id]
	return &issue, nil
}

func (s *trackingIssueSource) AppendNote(_ context.Context, id, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[id] = append(s.notes[id], note)
	return nil
}

func (s *trackingIssueSource) SetStatus(_ context.Context, id string, status tracker.IssueStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
	return nil
}

func (s *trackingIssueSource) statusOf(id string) tracker.IssueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[id]
}

func (s *trackingIssueSource) notesFor(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notes[id]...)
}

type stubArtifacts struct{}

func (stubArtifacts) ListForIssue(context.Context, string) ([]string, error) {
	return []string{"design/api.md"}, nil
}

func (stubArtifacts) Read(context.Context, string) ([]byte, error) { return []byte("# api"), nil }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// TestFullLifecycle drives one issue from ready through dispatch, agent
// execution, and completion, checking every externally visible effect.
func TestFullLifecycle(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New(filepath.Join(dir, "registry.json"))
	if _, err := reg.Create("atlas", "Atlas", "/work/atlas"); err != nil {
		t.Fatal(err)
	}
	queue := notify.New(filepath.Join(dir, "notifications.json"))
	events, err := eventlog.Open(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = events.Close() }()

	src := newTrackingIssueSource(tracker.Issue{
		ID: "X-1", Title: "Generate parser", Status: tracker.StatusReady,
		Stage: "code-generation", ProjectKey: "atlas", Priority: 1,
	})
	eng := engine.New(engine.Config{MaxConcurrentAgents: 2}, reg, queue, events, src)

	ctx := context.Background()
	ready, err := src.ListReady(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ready) != 1 {
		t.Fatalf("%d ready issues", len(ready))
	}

	msg, err := protocol.BuildDispatch(ctx, stubArtifacts{}, protocol.BuildOptions{
		StageName:     ready[0].Stage,
		IssueID:       ready[0].ID,
		ProjectKey:    ready[0].ProjectKey,
		WorkspaceRoot: "/work/atlas",
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.AssignedAgent != protocol.RoleForge {
		t.Fatalf("routed to %q", msg.AssignedAgent)
	}
	if len(msg.InputArtifacts) != 1 || msg.InputArtifacts[0] != "design/api.md" {
		t.Errorf("InputArtifacts = %v", msg.InputArtifacts)
	}

	if err := src.SetStatus(ctx, "X-1", tracker.StatusInProgress); err != nil {
		t.Fatal(err)
	}
	_, err = eng.Spawn(ctx, msg, func(_ context.Context, m protocol.DispatchMessage) (*protocol.CompletionMessage, error) {
		return &protocol.CompletionMessage{
			StageName:       m.StageName,
			IssueID:         m.IssueID,
			Status:          protocol.StatusCompleted,
			OutputArtifacts: []string{"src/parser.go"},
			Summary:         "parser generated",
		}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, "agent completion", func() bool { return eng.ActiveCount() == 0 })

	// Completion notification in the queue.
	unread := queue.GetUnread("atlas", 0)
	if len(unread) != 1 || unread[0].Type != notify.TypeStatusUpdate {
		t.Fatalf("notifications = %+v", unread)
	}

	// Tracker note recorded via the NoteAppender seam.
	notes := src.notesFor("X-1")
	if len(notes) != 1 {
		t.Fatalf("notes = %v", notes)
	}

	// Lifecycle events in the log, newest first.
	logged, err := events.Query(ctx, eventlog.QueryOpts{AgentID: ""})
	if err != nil {
		t.Fatal(err)
	}
	if len(logged) < 3 {
		t.Fatalf("%d events logged", len(logged))
	}
	if logged[0].Type != "agent_done" {
		t.Errorf("last event = %q", logged[0].Type)
	}
}

// TestCrashRecoveryRedispatches simulates a daemon restart: durable state is
// reloaded from snapshots and the in-progress issue the dead daemon was
// working is re-dispatched exactly once.
func TestCrashRecoveryRedispatches(t *testing.T) {
	dir := t.TempDir()
	regPath := filepath.Join(dir, "registry.json")
	queuePath := filepath.Join(dir, "notifications.json")

	// First life: registry and queue written, then the process "dies" with
	// X-1 still in_progress at the tracker.
	firstReg := registry.New(regPath)
	if _, err := firstReg.Create("atlas", "Atlas", "/work/atlas"); err != nil {
		t.Fatal(err)
	}
	firstQueue := notify.New(queuePath)
	if _, err := firstQueue.Add(notify.TypeInfo, "pre-crash note", "", "atlas", 3, ""); err != nil {
		t.Fatal(err)
	}

	src := newTrackingIssueSource(tracker.Issue{
		ID: "X-1", Title: "Generate parser", Status: tracker.StatusInProgress,
		Stage: "code-generation", ProjectKey: "atlas", Priority: 1,
	})

	// Second life.
	reg, queue, errs := recovery.LoadState(regPath, queuePath)
	if len(errs) != 0 {
		t.Fatalf("LoadState errors: %v", errs)
	}
	if queue.Len() != 1 {
		t.Error("pre-crash notification lost")
	}

	eng := engine.New(engine.Config{MaxConcurrentAgents: 2}, reg, queue, nil, src)
	var dispatched []string
	var mu sync.Mutex
	release := make(chan struct{})
	defer close(release)
	worker := func(ctx context.Context, m protocol.DispatchMessage) (*protocol.CompletionMessage, error) {
		mu.Lock()
		dispatched = append(dispatched, m.IssueID)
		mu.Unlock()
		select {
		case <-release:
		case <-ctx.Done():
		}
		return &protocol.CompletionMessage{
			StageName: m.StageName, IssueID: m.IssueID,
			Status: protocol.StatusCompleted, Summary: "recovered",
		}, nil
	}
	coordinator := recovery.New(recovery.Config{}, eng, reg, src, func(string) protocol.ArtifactSource {
		return stubArtifacts{}
	}, worker)

	report, err := coordinator.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Redispatched) != 1 || report.Redispatched[0] != "X-1" {
		t.Fatalf("Redispatched = %v", report.Redispatched)
	}

	waitFor(t, "re-dispatch to reach the worker", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(dispatched) == 1
	})

	// A second pass must not dispatch again while the agent holds the issue.
	report, err = coordinator.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Redispatched) != 0 || len(report.AlreadyHeld) != 1 {
		t.Errorf("second pass report = %+v", report)
	}

	eng.Shutdown()
}
