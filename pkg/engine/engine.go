// Package engine implements the agent lifecycle manager: it spawns worker
// tasks for dispatched work, bounds their concurrency, enforces per-agent
// deadlines, and drives every instance through the
// starting -> running -> stopping -> stopped state machine (with an error
// terminal reachable from any non-terminal state).
//
// The engine never mutates registry or notification storage directly; it
// calls their operations, preserving single-writer-per-entity discipline.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"foundry/pkg/eventlog"
	"foundry/pkg/notify"
	"foundry/pkg/protocol"
	"foundry/pkg/registry"
)

// AgentStatus is the lifecycle state of one agent instance.
type AgentStatus string

// Agent status constants.
const (
	StatusStarting AgentStatus = "starting"
	StatusRunning  AgentStatus = "running"
	StatusStopping AgentStatus = "stopping"
	StatusStopped  AgentStatus = "stopped"
	StatusError    AgentStatus = "error"
)

// AgentInstance is the live handle for a running worker, owned exclusively by
// the engine for its lifetime.
type AgentInstance struct {
	ID          string      `json:"id"`
	Role        string      `json:"role"`
	Status      AgentStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	ProjectKey  string      `json:"project_key"`
	CurrentTask string      `json:"current_task,omitempty"`
}

// Worker is one opaque unit of execution supplied by the embedding system. It
// runs until it yields a CompletionMessage or fails; cancellation of ctx is
// the cooperative stop request.
type Worker func(ctx context.Context, msg protocol.DispatchMessage) (*protocol.CompletionMessage, error)

// NoteAppender posts progress notes back to the issue tracker. nil disables
// note posting.
type NoteAppender interface {
	AppendNote(ctx context.Context, issueID, note string) error
}

// DiscoveredFiler files follow-up work items an agent surfaced mid-stage. A
// NoteAppender that also implements it gets discovered work from completion
// messages; one that does not has those items dropped with a log line.
type DiscoveredFiler interface {
	CreateDiscovered(ctx context.Context, projectKey string, work protocol.DiscoveredWork) (string, error)
}

// --- Config ---

// Config holds engine configuration.
type Config struct {
	MaxConcurrentAgents int           // Concurrency slot count (default 5).
	AgentTimeout        time.Duration // Per-agent execution deadline (default 1h).
	StopGracePeriod     time.Duration // Cooperative-stop grace before force (default 10s).
	ShutdownTimeout     time.Duration // Whole-engine shutdown deadline (default 30s).
	Blocking            bool          // Spawn blocks for a slot instead of failing fast.
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxConcurrentAgents == 0 {
		out.MaxConcurrentAgents = 5
	}
	if out.AgentTimeout == 0 {
		out.AgentTimeout = time.Hour
	}
	if out.StopGracePeriod == 0 {
		out.StopGracePeriod = 10 * time.Second
	}
	if out.ShutdownTimeout == 0 {
		out.ShutdownTimeout = 30 * time.Second
	}
	return out
}

// --- Engine ---

// agentHandle holds the engine-internal state for one spawned agent.
type agentHandle struct {
	inst       AgentInstance
	msg        protocol.DispatchMessage
	cancel     context.CancelFunc
	stopReason string
	finalized  bool
	done       chan struct{}
}

type workerResult struct {
	completion *protocol.CompletionMessage
	err        error
}

// Engine is the agent lifecycle manager. Construct with New; the zero value
// is not usable.
type Engine struct {
	cfg      Config
	registry *registry.Registry
	mailbox  *notify.Queue
	events   *eventlog.Log // optional, nil disables event logging
	notes    NoteAppender  // optional, nil disables tracker notes
	logger   *log.Logger

	mu     sync.Mutex
	agents map[string]*agentHandle
	slots  chan struct{}
	wg     sync.WaitGroup

	// nowFunc and idFunc allow tests to control time and identity.
	nowFunc func() time.Time
	idFunc  func() string
}

// New creates an Engine. events and notes may be nil.
func New(cfg Config, reg *registry.Registry, mailbox *notify.Queue, events *eventlog.Log, notes NoteAppender) *Engine {
	resolved := cfg.withDefaults()
	return &Engine{
		cfg:      resolved,
		registry: reg,
		mailbox:  mailbox,
		events:   events,
		notes:    notes,
		logger:   log.Default(),
		agents:   make(map[string]*agentHandle),
		slots:    make(chan struct{}, resolved.MaxConcurrentAgents),
		nowFunc:  time.Now,
		idFunc:   uuid.NewString,
	}
}

// Spawn acquires a concurrency slot and starts a worker for the dispatched
// work. With Blocking set the caller is suspended until a slot frees or ctx
// is cancelled; otherwise a saturated pool fails fast with
// ConcurrencyExhaustedError. The returned id identifies the new instance.
//
// The DispatchMessage is consumed here: the engine retains only what it needs
// to synthesize a failure completion, and never mutates it.
func (e *Engine) Spawn(ctx context.Context, msg protocol.DispatchMessage, w Worker) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	if e.cfg.Blocking {
		select {
		case e.slots <- struct{}{}:
		case <-ctx.Done():
			return "", fmt.Errorf("await concurrency slot: %w", ctx.Err())
		}
	} else {
		select {
		case e.slots <- struct{}{}:
		default:
			return "", &ConcurrencyExhaustedError{Max: e.cfg.MaxConcurrentAgents}
		}
	}

	id := e.idFunc()
	wctx, cancel := context.WithCancel(context.Background())
	h := &agentHandle{
		inst: AgentInstance{
			ID:          id,
			Role:        msg.AssignedAgent,
			Status:      StatusStarting,
			CreatedAt:   e.nowFunc(),
			ProjectKey:  msg.ProjectKey,
			CurrentTask: msg.IssueID,
		},
		msg:    msg,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	e.mu.Lock()
	e.agents[id] = h
	e.mu.Unlock()

	e.logEvent("agent_spawn", msg.IssueID, id, msg.AssignedAgent)
	// First agent on a project becomes its coordinator; later agents on the
	// same project leave the existing claim alone.
	if err := e.registry.ClaimCoordinator(msg.ProjectKey, id); err != nil {
		e.logger.Printf("engine: claim coordinator for %s: %v", msg.ProjectKey, err)
	}

	e.wg.Add(1)
	go e.run(h, wctx, w)
	return id, nil
}

// run drives one agent from running to a terminal state.
func (e *Engine) run(h *agentHandle, wctx context.Context, w Worker) {
	defer e.wg.Done()

	e.mu.Lock()
	if !h.finalized && h.inst.Status == StatusStarting {
		h.inst.Status = StatusRunning
	}
	e.mu.Unlock()
	e.logEvent("agent_running", h.msg.IssueID, h.inst.ID, "")

	deadline := time.NewTimer(e.cfg.AgentTimeout)
	defer deadline.Stop()

	resCh := make(chan workerResult, 1)
	go func() {
		cm, err := w(wctx, h.msg)
		resCh <- workerResult{completion: cm, err: err}
	}()

	select {
	case r := <-resCh:
		e.finishWorker(h, r)
	case <-deadline.C:
		h.cancel()
		timeoutErr := &AgentTimeoutError{AgentID: h.inst.ID, IssueID: h.msg.IssueID, Timeout: e.cfg.AgentTimeout}
		e.finalize(h, StatusError, protocol.CompletionMessage{
			StageName:   h.msg.StageName,
			IssueID:     h.msg.IssueID,
			Status:      protocol.StatusFailed,
			ErrorDetail: timeoutErr.Error(),
		}, "agent_timeout")
	case <-wctx.Done():
		// Cooperative stop requested: give the worker the grace period.
		grace := time.NewTimer(e.cfg.StopGracePeriod)
		defer grace.Stop()
		select {
		case r := <-resCh:
			e.finishStopped(h, r)
		case <-grace.C:
			e.finalize(h, StatusError, e.stopCompletion(h, "force-stopped: grace period elapsed"), "agent_force_stopped")
		}
	}
}

// finishWorker handles a worker that returned of its own accord.
func (e *Engine) finishWorker(h *agentHandle, r workerResult) {
	if r.err != nil {
		e.finalize(h, StatusError, protocol.CompletionMessage{
			StageName:   h.msg.StageName,
			IssueID:     h.msg.IssueID,
			Status:      protocol.StatusFailed,
			ErrorDetail: r.err.Error(),
		}, "agent_failed")
		return
	}
	if r.completion == nil || r.completion.Validate() != nil {
		e.finalize(h, StatusError, protocol.CompletionMessage{
			StageName:   h.msg.StageName,
			IssueID:     h.msg.IssueID,
			Status:      protocol.StatusFailed,
			ErrorDetail: "worker yielded no valid completion message",
		}, "agent_failed")
		return
	}
	e.finalize(h, StatusStopped, *r.completion, "agent_done")
}

// finishStopped handles a worker that returned during the stop grace period.
func (e *Engine) finishStopped(h *agentHandle, r workerResult) {
	if r.err == nil && r.completion != nil && r.completion.Validate() == nil {
		e.finalize(h, StatusStopped, *r.completion, "agent_done")
		return
	}
	e.finalize(h, StatusStopped, e.stopCompletion(h, ""), "agent_stopped")
}

// stopCompletion synthesizes the failed completion for a stopped agent.
func (e *Engine) stopCompletion(h *agentHandle, detail string) protocol.CompletionMessage {
	e.mu.Lock()
	reason := h.stopReason
	e.mu.Unlock()
	if detail == "" {
		detail = "stopped"
	}
	if reason != "" {
		detail = detail + ": " + reason
	}
	return protocol.CompletionMessage{
		StageName:   h.msg.StageName,
		IssueID:     h.msg.IssueID,
		Status:      protocol.StatusFailed,
		ErrorDetail: detail,
	}
}

// finalize moves an agent to a terminal state exactly once: it releases the
// concurrency slot, removes the instance from the active set, releases the
// project's coordinator reference if this agent holds it, enqueues the
// completion notification, and posts a tracker note. Late duplicate outcomes (a worker returning after a
// timeout already finalized it) are ignored.
func (e *Engine) finalize(h *agentHandle, status AgentStatus, cm protocol.CompletionMessage, event string) {
	e.mu.Lock()
	if h.finalized {
		e.mu.Unlock()
		return
	}
	h.finalized = true
	h.inst.Status = status
	h.inst.CurrentTask = ""
	e.mu.Unlock()

	// Only the claim holder releases the reference: a sibling agent finishing
	// first must not clear a coordinator it never held.
	if err := e.registry.ClearCoordinator(h.msg.ProjectKey, h.inst.ID); err != nil {
		e.logger.Printf("engine: clear coordinator for %s: %v", h.msg.ProjectKey, err)
	}

	e.notifyCompletion(h, cm)
	e.logEvent(event, h.msg.IssueID, h.inst.ID, string(cm.Status))
	e.appendNote(h, cm)
	e.fileDiscovered(h, cm)

	// Removal comes last: once the instance is no longer visible, its slot is
	// free and its notification, event, and tracker note are already written.
	<-e.slots
	e.mu.Lock()
	delete(e.agents, h.inst.ID)
	e.mu.Unlock()
	close(h.done)
}

// notifyCompletion enqueues the human-facing notification for a terminal
// transition. A failed or needs_rework result never disappears silently.
func (e *Engine) notifyCompletion(h *agentHandle, cm protocol.CompletionMessage) {
	var (
		typ      notify.Type
		priority int
		title    string
	)
	switch cm.Status {
	case protocol.StatusCompleted:
		typ, priority = notify.TypeStatusUpdate, 2
		title = fmt.Sprintf("%s completed %s", h.inst.Role, h.msg.StageName)
	case protocol.StatusNeedsRework:
		typ, priority = notify.TypeQA, 1
		title = fmt.Sprintf("%s needs rework on %s", h.inst.Role, h.msg.StageName)
	default:
		typ, priority = notify.TypeEscalation, 1
		title = fmt.Sprintf("%s failed %s", h.inst.Role, h.msg.StageName)
	}

	body := cm.Summary
	if cm.ErrorDetail != "" {
		body = cm.ErrorDetail
	}
	if cm.ReworkReason != "" {
		body = cm.ReworkReason
	}

	if _, err := e.mailbox.Add(typ, title, body, h.msg.ProjectKey, priority, h.msg.IssueID); err != nil {
		e.logger.Printf("engine: notify completion of %s: %v", h.msg.IssueID, err)
	}
}

// appendNote posts the completion summary back to the tracking issue.
func (e *Engine) appendNote(h *agentHandle, cm protocol.CompletionMessage) {
	if e.notes == nil {
		return
	}
	note := fmt.Sprintf("%s: %s", cm.Status, cm.Summary)
	if cm.ErrorDetail != "" {
		note = fmt.Sprintf("%s: %s", cm.Status, cm.ErrorDetail)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.notes.AppendNote(ctx, h.msg.IssueID, note); err != nil {
		e.logger.Printf("engine: append note to %s: %v", h.msg.IssueID, err)
	}
}

// fileDiscovered creates tracker issues for follow-up work the agent found.
func (e *Engine) fileDiscovered(h *agentHandle, cm protocol.CompletionMessage) {
	if len(cm.DiscoveredWork) == 0 {
		return
	}
	filer, ok := e.notes.(DiscoveredFiler)
	if !ok {
		e.logger.Printf("engine: %d discovered work item(s) from %s dropped: tracker cannot file them", len(cm.DiscoveredWork), h.msg.IssueID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, work := range cm.DiscoveredWork {
		id, err := filer.CreateDiscovered(ctx, h.msg.ProjectKey, work)
		if err != nil {
			e.logger.Printf("engine: file discovered work %q from %s: %v", work.Title, h.msg.IssueID, err)
			continue
		}
		e.logEvent("work_discovered", id, h.inst.ID, work.Title)
	}
}

// Stop requests cooperative termination of one agent, transitioning
// running -> stopping. An instance still starting moves to stopping the same
// way; its worker then observes an already-cancelled context instead of a
// stop mid-flight. If the worker has not returned within the grace period the
// instance is force-finalized.
func (e *Engine) Stop(id, reason string) error {
	e.mu.Lock()
	h, ok := e.agents[id]
	if !ok {
		e.mu.Unlock()
		return &AgentNotFoundError{ID: id}
	}
	if h.finalized || h.inst.Status == StatusStopping {
		e.mu.Unlock()
		return nil
	}
	h.inst.Status = StatusStopping
	h.stopReason = reason
	e.mu.Unlock()

	e.logEvent("agent_stopping", h.msg.IssueID, id, reason)
	h.cancel()
	return nil
}

// Shutdown stops all active agents concurrently, waits up to the shutdown
// deadline for voluntary completion, then force-stops stragglers. It returns
// only after every instance has reached a terminal state.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	ids := make([]string, 0, len(e.agents))
	for id := range e.agents {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		_ = e.Stop(id, "engine shutdown")
	}

	deadline := time.NewTimer(e.cfg.ShutdownTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline.C:
			// Deadline expired: force-finalize whatever remains.
			e.mu.Lock()
			remaining := make([]*agentHandle, 0, len(e.agents))
			for _, h := range e.agents {
				remaining = append(remaining, h)
			}
			e.mu.Unlock()
			for _, h := range remaining {
				e.finalize(h, StatusError, e.stopCompletion(h, "force-stopped: shutdown deadline elapsed"), "agent_force_stopped")
			}
			return
		case <-ticker.C:
			if e.ActiveCount() == 0 {
				return
			}
		}
	}
}

// Get returns a copy of one active instance's state. Read-only, non-blocking.
func (e *Engine) Get(id string) (AgentInstance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.agents[id]
	if !ok {
		return AgentInstance{}, false
	}
	return h.inst, true
}

// ListActive returns copies of all non-terminal instances. Read-only,
// non-blocking.
func (e *Engine) ListActive() []AgentInstance {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]AgentInstance, 0, len(e.agents))
	for _, h := range e.agents {
		out = append(out, h.inst)
	}
	return out
}

// ActiveCount returns the number of non-terminal instances.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.agents)
}

// logEvent appends to the event log when one is configured. Best-effort.
func (e *Engine) logEvent(eventType, issueID, agentID, payload string) {
	if e.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.events.Append(ctx, eventType, "engine", issueID, agentID, payload); err != nil {
		e.logger.Printf("engine: log event %s: %v", eventType, err)
	}
}
