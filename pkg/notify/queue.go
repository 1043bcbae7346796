// Package notify implements the durable, priority-ordered mailbox of
// human-facing events. Notifications sort by (priority ascending, creation
// time ascending); equal-priority entries preserve insertion order. Every
// mutation is persisted atomically before it is reported as committed.
package notify

import (
	"container/heap"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"foundry/pkg/persist"
)

// Type classifies a notification for the consuming front end.
type Type string

// Notification type constants.
const (
	TypeReviewGate   Type = "review_gate"
	TypeEscalation   Type = "escalation"
	TypeStatusUpdate Type = "status_update"
	TypeQA           Type = "qa"
	TypeInfo         Type = "info"
)

// Priority bounds. 0 is the most urgent band.
const (
	PriorityMin = 0
	PriorityMax = 4
)

// Notification is one human-facing event. Only the read flag is ever mutated
// after creation.
type Notification struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	Title      string    `json:"title"`
	Body       string    `json:"body,omitempty"`
	ProjectKey string    `json:"project_key"`
	Priority   int       `json:"priority"`
	CreatedAt  time.Time `json:"created_at"`
	Read       bool      `json:"read"`
	IssueID    string    `json:"issue_id,omitempty"`
}

// item wraps a notification with its insertion sequence for FIFO tie-breaks
// within a priority band.
type item struct {
	n   *Notification
	seq uint64
}

// notifHeap is a binary min-heap keyed by (priority, created_at, seq).
type notifHeap []*item

func (h notifHeap) Len() int { return len(h) }

func (h notifHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.n.Priority != b.n.Priority {
		return a.n.Priority < b.n.Priority
	}
	if !a.n.CreatedAt.Equal(b.n.CreatedAt) {
		return a.n.CreatedAt.Before(b.n.CreatedAt)
	}
	return a.seq < b.seq
}

func (h notifHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *notifHeap) Push(x any) { *h = append(*h, x.(*item)) }

func (h *notifHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue is the notification mailbox. All mutations are serialized by a single
// mutex and persisted via the atomic snapshot writer before returning.
type Queue struct {
	mu    sync.Mutex
	path  string
	items notifHeap
	byID  map[string]*item
	seq   uint64

	// nowFunc and idFunc allow tests to control time and identity.
	nowFunc func() time.Time
	idFunc  func() string
}

// New creates an empty queue persisting to path.
func New(path string) *Queue {
	return &Queue{
		path:    path,
		byID:    make(map[string]*item),
		nowFunc: time.Now,
		idFunc:  uuid.NewString,
	}
}

// Open loads the queue snapshot at path. A missing file yields an empty
// queue. Unparsable entries are skipped and reported in the returned slice;
// only the skipped entries are lost, never the whole mailbox.
func Open(path string) (*Queue, []error) {
	q := New(path)

	data, err := persist.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return q, nil
		}
		return q, []error{fmt.Errorf("notification snapshot: %w", err)}
	}

	var snap struct {
		Notifications []json.RawMessage `json:"notifications"`
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return q, []error{fmt.Errorf("notification snapshot %s: %w", path, err)}
	}

	var skipped []error
	for i, raw := range snap.Notifications {
		var n Notification
		if err := json.Unmarshal(raw, &n); err != nil {
			skipped = append(skipped, fmt.Errorf("notification entry %d: %w", i, err))
			continue
		}
		if n.ID == "" {
			skipped = append(skipped, fmt.Errorf("notification entry %d: missing id", i))
			continue
		}
		q.insert(&n)
	}
	return q, skipped
}

// insert adds a notification to the heap and index. Caller must hold mu (or
// own the queue exclusively, as during Open).
func (q *Queue) insert(n *Notification) {
	q.seq++
	it := &item{n: n, seq: q.seq}
	heap.Push(&q.items, it)
	q.byID[n.ID] = it
}

// Add creates a notification and enqueues it. The priority is clamped to the
// legal band. The assigned ID is returned once the snapshot is durable; on a
// persistence failure the entry is rolled back and the error returned.
func (q *Queue) Add(typ Type, title, body, projectKey string, priority int, issueID string) (string, error) {
	if priority < PriorityMin {
		priority = PriorityMin
	}
	if priority > PriorityMax {
		priority = PriorityMax
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	n := &Notification{
		ID:         q.idFunc(),
		Type:       typ,
		Title:      title,
		Body:       body,
		ProjectKey: projectKey,
		Priority:   priority,
		CreatedAt:  q.nowFunc(),
		IssueID:    issueID,
	}
	q.insert(n)

	if err := q.saveLocked(); err != nil {
		q.removeLocked(n.ID)
		return "", err
	}
	return n.ID, nil
}

// GetUnread returns up to limit unread notifications in (priority, created_at)
// order, optionally filtered to one project. It never mutates the read flag.
// limit <= 0 means no limit.
func (q *Queue) GetUnread(projectKey string, limit int) []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	ordered := q.sortedLocked()
	out := make([]Notification, 0, len(ordered))
	for _, it := range ordered {
		if it.n.Read {
			continue
		}
		if projectKey != "" && it.n.ProjectKey != projectKey {
			continue
		}
		out = append(out, *it.n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// MarkRead flips the read flag on a notification. Marking an already-read or
// unknown notification is a no-op, not an error.
func (q *Queue) MarkRead(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.byID[id]
	if !ok || it.n.Read {
		return nil
	}
	it.n.Read = true
	if err := q.saveLocked(); err != nil {
		it.n.Read = false
		return err
	}
	return nil
}

// ClearProject removes all notifications, read or unread, for one project.
func (q *Queue) ClearProject(projectKey string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0:0]
	var removed []*item
	for _, it := range q.items {
		if it.n.ProjectKey == projectKey {
			removed = append(removed, it)
			continue
		}
		kept = append(kept, it)
	}
	if len(removed) == 0 {
		return nil
	}

	prior := q.items
	q.items = kept
	heap.Init(&q.items)
	for _, it := range removed {
		delete(q.byID, it.n.ID)
	}

	if err := q.saveLocked(); err != nil {
		q.items = prior
		heap.Init(&q.items)
		for _, it := range removed {
			q.byID[it.n.ID] = it
		}
		return err
	}
	return nil
}

// Len returns the total number of notifications, read and unread.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// removeLocked drops one entry from the heap and index. Caller must hold mu.
func (q *Queue) removeLocked(id string) {
	it, ok := q.byID[id]
	if !ok {
		return
	}
	delete(q.byID, id)
	for i, candidate := range q.items {
		if candidate == it {
			heap.Remove(&q.items, i)
			return
		}
	}
}

// sortedLocked returns the items in delivery order without disturbing the
// heap. Caller must hold mu.
func (q *Queue) sortedLocked() []*item {
	out := make([]*item, len(q.items))
	copy(out, q.items)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.n.Priority != b.n.Priority {
			return a.n.Priority < b.n.Priority
		}
		if !a.n.CreatedAt.Equal(b.n.CreatedAt) {
			return a.n.CreatedAt.Before(b.n.CreatedAt)
		}
		return a.seq < b.seq
	})
	return out
}

// saveLocked persists the full snapshot in delivery order. Caller must hold mu.
func (q *Queue) saveLocked() error {
	ordered := q.sortedLocked()
	notifications := make([]*Notification, len(ordered))
	for i, it := range ordered {
		notifications[i] = it.n
	}

	data, err := json.MarshalIndent(struct {
		Notifications []*Notification `json:"notifications"`
	}{notifications}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal notification snapshot: %w", err)
	}
	return persist.Save(q.path, data)
}
