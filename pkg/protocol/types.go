// Package protocol defines the wire messages exchanged between the Foundry
// coordinator and its agents: the DispatchMessage handed to a worker at spawn
// and the CompletionMessage the worker yields at termination. It also owns the
// static stage-to-role routing table and the JSON codec for both shapes.
package protocol

// Phase identifies which half of the delegation workflow a stage belongs to.
type Phase string

// Workflow phase constants.
const (
	PhaseInception    Phase = "inception"
	PhaseConstruction Phase = "construction"
)

// Valid reports whether p is a recognized phase value.
func (p Phase) Valid() bool {
	return p == PhaseInception || p == PhaseConstruction
}

// CompletionStatus is the terminal status of one unit of work.
type CompletionStatus string

// Completion status constants.
const (
	StatusCompleted   CompletionStatus = "completed"
	StatusFailed      CompletionStatus = "failed"
	StatusNeedsRework CompletionStatus = "needs_rework"
)

// Valid reports whether s is a recognized completion status.
func (s CompletionStatus) Valid() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusNeedsRework
}

// DispatchMessage describes one delegated unit of work. It is built by the
// coordinator, consumed exactly once by the lifecycle engine, and never
// mutated after creation.
type DispatchMessage struct {
	StageName      string   `json:"stage_name"`
	StageType      string   `json:"stage_type,omitempty"`
	IssueID        string   `json:"issue_id"`
	ReviewGateID   string   `json:"review_gate_id,omitempty"`
	UnitName       string   `json:"unit_name,omitempty"`
	Phase          Phase    `json:"phase"`
	InputArtifacts []string `json:"input_artifacts,omitempty"`
	ReferenceDocs  []string `json:"reference_docs,omitempty"`
	ProjectKey     string   `json:"project_key"`
	WorkspaceRoot  string   `json:"workspace_root"`
	AssignedAgent  string   `json:"assigned_agent"`
	Instructions   string   `json:"instructions,omitempty"`
}

// DiscoveredWork describes a follow-up work item an agent found while
// executing a stage.
type DiscoveredWork struct {
	Title       string `json:"title"`
	Kind        string `json:"kind"`
	Priority    int    `json:"priority"`
	Description string `json:"description,omitempty"`
}

// CompletionMessage is the result of one unit of work. It is produced by the
// worker at termination, or synthesized by the lifecycle engine on timeout or
// crash, and is immutable once created.
type CompletionMessage struct {
	StageName       string           `json:"stage_name"`
	IssueID         string           `json:"issue_id"`
	Status          CompletionStatus `json:"status"`
	OutputArtifacts []string         `json:"output_artifacts,omitempty"`
	Summary         string           `json:"summary,omitempty"`
	DiscoveredWork  []DiscoveredWork `json:"discovered_work,omitempty"`
	ErrorDetail     string           `json:"error_detail,omitempty"`
	ReworkReason    string           `json:"rework_reason,omitempty"`
}

// Validate checks the structural invariants of a DispatchMessage: required
// fields present, a recognized phase, and a non-empty assigned agent.
func (m DispatchMessage) Validate() error {
	switch {
	case m.StageName == "":
		return &MalformedMessageError{Field: "stage_name", Reason: "required"}
	case m.IssueID == "":
		return &MalformedMessageError{Field: "issue_id", Reason: "required"}
	case m.ProjectKey == "":
		return &MalformedMessageError{Field: "project_key", Reason: "required"}
	case m.WorkspaceRoot == "":
		return &MalformedMessageError{Field: "workspace_root", Reason: "required"}
	case m.AssignedAgent == "":
		return &MalformedMessageError{Field: "assigned_agent", Reason: "required"}
	case !m.Phase.Valid():
		return &MalformedMessageError{Field: "phase", Reason: "unrecognized value " + string(m.Phase)}
	}
	return nil
}

// Validate checks the structural invariants of a CompletionMessage. Error
// detail and rework reason may only be populated on a non-completed status.
func (m CompletionMessage) Validate() error {
	switch {
	case m.StageName == "":
		return &MalformedMessageError{Field: "stage_name", Reason: "required"}
	case m.IssueID == "":
		return &MalformedMessageError{Field: "issue_id", Reason: "required"}
	case !m.Status.Valid():
		return &MalformedMessageError{Field: "status", Reason: "unrecognized value " + string(m.Status)}
	case m.Status == StatusCompleted && m.ErrorDetail != "":
		return &MalformedMessageError{Field: "error_detail", Reason: "must be empty on completed status"}
	case m.Status == StatusCompleted && m.ReworkReason != "":
		return &MalformedMessageError{Field: "rework_reason", Reason: "must be empty on completed status"}
	}
	return nil
}
