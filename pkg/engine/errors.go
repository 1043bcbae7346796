package engine

import (
	"fmt"
	"time"
)

// ConcurrencyExhaustedError indicates the concurrency pool is saturated and
// the engine is configured to fail fast. The condition is transient; the
// caller may retry after backoff.
type ConcurrencyExhaustedError struct {
	Max int
}

func (e *ConcurrencyExhaustedError) Error() string {
	return fmt.Sprintf("all %d concurrency slots in use", e.Max)
}

// AgentTimeoutError indicates a worker exceeded its execution deadline. The
// engine surfaces it as a failed CompletionMessage plus an escalation
// notification.
type AgentTimeoutError struct {
	AgentID string
	IssueID string
	Timeout time.Duration
}

func (e *AgentTimeoutError) Error() string {
	return fmt.Sprintf("agent %s (issue %s) exceeded %s deadline", e.AgentID, e.IssueID, e.Timeout)
}

// AgentNotFoundError indicates an operation on an agent id that is not in the
// active set.
type AgentNotFoundError struct {
	ID string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("agent %s not found", e.ID)
}
