// Package registry holds the durable record of every managed project and its
// lifecycle state. Mutations are linearized per registry and never reported as
// committed until the snapshot is durable on disk.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"foundry/pkg/persist"
)

// Status is a project's lifecycle state.
type Status string

// Project status constants. Legal transitions: active <-> paused and
// active -> completed. Completed is terminal.
const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// ProjectState is the persisted record of one managed project. The key is
// immutable; everything else mutates only through Registry operations.
type ProjectState struct {
	Key           string     `json:"key"`
	Name          string     `json:"name"`
	WorkspacePath string     `json:"workspace_path"`
	Status        Status     `json:"status"`
	CoordinatorID string     `json:"coordinator_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	PausedAt      *time.Time `json:"paused_at,omitempty"`
}

// --- Errors ---

// DuplicateProjectError indicates a create with an already-registered key.
type DuplicateProjectError struct {
	Key string
}

func (e *DuplicateProjectError) Error() string {
	return fmt.Sprintf("project %q already exists", e.Key)
}

// ProjectNotFoundError indicates an operation on an unregistered key.
type ProjectNotFoundError struct {
	Key string
}

func (e *ProjectNotFoundError) Error() string {
	return fmt.Sprintf("project %q not found", e.Key)
}

// InvalidTransitionError indicates a status change outside the legal
// transition set.
type InvalidTransitionError struct {
	Key  string
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("project %q: illegal transition %s -> %s", e.Key, e.From, e.To)
}

// --- Registry ---

// Registry is the single writer for all ProjectState records.
type Registry struct {
	mu       sync.Mutex
	path     string
	projects map[string]*ProjectState

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// New creates an empty registry persisting to path.
func New(path string) *Registry {
	return &Registry{
		path:     path,
		projects: make(map[string]*ProjectState),
		nowFunc:  time.Now,
	}
}

// Open loads the registry snapshot at path. A missing file yields an empty
// registry. Unparsable entries are skipped and reported in the returned
// slice; the remaining projects still load.
func Open(path string) (*Registry, []error) {
	r := New(path)

	data, err := persist.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r, nil
		}
		return r, []error{fmt.Errorf("registry snapshot: %w", err)}
	}

	var snap struct {
		Projects []json.RawMessage `json:"projects"`
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return r, []error{fmt.Errorf("registry snapshot %s: %w", path, err)}
	}

	var skipped []error
	for i, raw := range snap.Projects {
		var p ProjectState
		if err := json.Unmarshal(raw, &p); err != nil {
			skipped = append(skipped, fmt.Errorf("project entry %d: %w", i, err))
			continue
		}
		if p.Key == "" {
			skipped = append(skipped, fmt.Errorf("project entry %d: missing key", i))
			continue
		}
		switch p.Status {
		case StatusActive, StatusPaused, StatusCompleted:
		default:
			skipped = append(skipped, fmt.Errorf("project entry %d: unknown status %q", i, p.Status))
			continue
		}
		r.projects[p.Key] = &p
	}
	return r, skipped
}

// Create registers a new project in the active state. The key must be unique.
func (r *Registry) Create(key, name, workspacePath string) (ProjectState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.projects[key]; exists {
		return ProjectState{}, &DuplicateProjectError{Key: key}
	}

	p := &ProjectState{
		Key:           key,
		Name:          name,
		WorkspacePath: workspacePath,
		Status:        StatusActive,
		CreatedAt:     r.nowFunc(),
	}
	r.projects[key] = p

	if err := r.saveLocked(); err != nil {
		delete(r.projects, key)
		return ProjectState{}, err
	}
	return *p, nil
}

// Pause transitions a project from active to paused and records the pause
// timestamp.
func (r *Registry) Pause(key string) error {
	return r.transition(key, StatusActive, StatusPaused)
}

// Resume transitions a project from paused back to active and clears the
// pause timestamp.
func (r *Registry) Resume(key string) error {
	return r.transition(key, StatusPaused, StatusActive)
}

// Complete transitions a project from active to its terminal completed state.
func (r *Registry) Complete(key string) error {
	return r.transition(key, StatusActive, StatusCompleted)
}

// transition applies one legal status change, persisting before success.
func (r *Registry) transition(key string, from, to Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[key]
	if !ok {
		return &ProjectNotFoundError{Key: key}
	}
	if p.Status != from {
		return &InvalidTransitionError{Key: key, From: p.Status, To: to}
	}

	prevStatus, prevPaused := p.Status, p.PausedAt
	p.Status = to
	switch to {
	case StatusPaused:
		now := r.nowFunc()
		p.PausedAt = &now
	case StatusActive:
		p.PausedAt = nil
	case StatusCompleted:
	}

	if err := r.saveLocked(); err != nil {
		p.Status = prevStatus
		p.PausedAt = prevPaused
		return err
	}
	return nil
}

// SetCoordinator records (or, with an empty id, clears) the agent instance
// currently coordinating the project.
func (r *Registry) SetCoordinator(key, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[key]
	if !ok {
		return &ProjectNotFoundError{Key: key}
	}

	prev := p.CoordinatorID
	p.CoordinatorID = agentID
	if err := r.saveLocked(); err != nil {
		p.CoordinatorID = prev
		return err
	}
	return nil
}

// ClaimCoordinator records agentID as the project's coordinating agent if no
// agent currently holds the reference. A claim held by another agent is left
// intact, so the first agent on a project stays its coordinator until it
// releases the reference.
func (r *Registry) ClaimCoordinator(key, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[key]
	if !ok {
		return &ProjectNotFoundError{Key: key}
	}
	if p.CoordinatorID != "" {
		return nil
	}

	p.CoordinatorID = agentID
	if err := r.saveLocked(); err != nil {
		p.CoordinatorID = ""
		return err
	}
	return nil
}

// ClearCoordinator removes the coordinator reference only while agentID still
// holds it. A reference held by a different agent is left intact.
func (r *Registry) ClearCoordinator(key, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[key]
	if !ok {
		return &ProjectNotFoundError{Key: key}
	}
	if p.CoordinatorID != agentID {
		return nil
	}

	p.CoordinatorID = ""
	if err := r.saveLocked(); err != nil {
		p.CoordinatorID = agentID
		return err
	}
	return nil
}

// Get returns a copy of one project's state.
func (r *Registry) Get(key string) (ProjectState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[key]
	if !ok {
		return ProjectState{}, false
	}
	return *p, true
}

// List returns copies of all projects sorted by key.
func (r *Registry) List() []ProjectState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ProjectState, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// saveLocked writes the full registry snapshot atomically. Caller must hold mu.
func (r *Registry) saveLocked() error {
	projects := make([]*ProjectState, 0, len(r.projects))
	for _, p := range r.projects {
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Key < projects[j].Key })

	data, err := json.MarshalIndent(struct {
		Projects []*ProjectState `json:"projects"`
	}{projects}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry snapshot: %w", err)
	}
	return persist.Save(r.path, data)
}
