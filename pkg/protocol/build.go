package protocol

import (
	"context"
	"fmt"
)

// ArtifactSource lists and reads the artifacts recorded against a tracking
// issue. The production implementation shells out to the tracker CLI; tests
// provide a mock.
type ArtifactSource interface {
	ListForIssue(ctx context.Context, issueID string) ([]string, error)
	Read(ctx context.Context, path string) ([]byte, error)
}

// BuildOptions carries the caller-supplied fields for BuildDispatch.
type BuildOptions struct {
	StageName     string
	StageType     string
	IssueID       string
	ReviewGateID  string
	UnitName      string
	Phase         Phase // empty = derived from the stage
	ProjectKey    string
	WorkspaceRoot string
	AgentOverride string // bypasses the routing table when set
	Instructions  string
	ReferenceDocs []string // appended before the stage document
	StageDocs     StageDocs // nil = DefaultStageDocs
}

// BuildDispatch assembles a DispatchMessage for one stage of work. The
// assigned agent is resolved from the routing table unless an override is
// given. Input artifacts are loaded from the issue's recorded references, and
// the stage's rule document is always appended to the reference docs.
func BuildDispatch(ctx context.Context, artifacts ArtifactSource, opts BuildOptions) (DispatchMessage, error) {
	agent := opts.AgentOverride
	if agent == "" {
		resolved, err := ResolveAgent(opts.StageName)
		if err != nil {
			return DispatchMessage{}, err
		}
		agent = resolved
	}

	phase := opts.Phase
	if phase == "" {
		derived, err := StagePhase(opts.StageName)
		if err != nil {
			// Overridden agent on an unrouted stage: default to construction.
			derived = PhaseConstruction
		}
		phase = derived
	}

	inputs, err := artifacts.ListForIssue(ctx, opts.IssueID)
	if err != nil {
		return DispatchMessage{}, fmt.Errorf("list artifacts for %s: %w", opts.IssueID, err)
	}

	docs := opts.StageDocs
	if docs == nil {
		docs = DefaultStageDocs()
	}
	refs := append([]string(nil), opts.ReferenceDocs...)
	if doc, ok := docs[opts.StageName]; ok {
		refs = append(refs, doc)
	}

	msg := DispatchMessage{
		StageName:      opts.StageName,
		StageType:      opts.StageType,
		IssueID:        opts.IssueID,
		ReviewGateID:   opts.ReviewGateID,
		UnitName:       opts.UnitName,
		Phase:          phase,
		InputArtifacts: inputs,
		ReferenceDocs:  refs,
		ProjectKey:     opts.ProjectKey,
		WorkspaceRoot:  opts.WorkspaceRoot,
		AssignedAgent:  agent,
		Instructions:   opts.Instructions,
	}
	if err := msg.Validate(); err != nil {
		return DispatchMessage{}, err
	}
	return msg, nil
}
