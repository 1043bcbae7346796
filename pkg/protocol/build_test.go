package protocol_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"foundry/pkg/protocol"
)

// mockArtifactSource returns canned artifact lists per issue.
type mockArtifactSource struct {
	byIssue map[string][]string
	err     error
}

func (m *mockArtifactSource) ListForIssue(_ context.Context, issueID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byIssue[issueID], nil
}

func (m *mockArtifactSource) Read(_ context.Context, path string) ([]byte, error) {
	return nil, fmt.Errorf("read %s: not implemented", path)
}

func TestBuildDispatchResolvesAgentAndAppendsStageDoc(t *testing.T) {
	src := &mockArtifactSource{byIssue: map[string][]string{
		"X-1": {"artifacts/design.md", "artifacts/stories.md"},
	}}

	msg, err := protocol.BuildDispatch(context.Background(), src, protocol.BuildOptions{
		StageName:     "code-generation",
		IssueID:       "X-1",
		ProjectKey:    "atlas",
		WorkspaceRoot: "/work/atlas",
	})
	if err != nil {
		t.Fatalf("BuildDispatch error: %v", err)
	}

	if msg.AssignedAgent != protocol.RoleForge {
		t.Errorf("AssignedAgent = %q, want %q", msg.AssignedAgent, protocol.RoleForge)
	}
	if msg.Phase != protocol.PhaseConstruction {
		t.Errorf("Phase = %q, want construction", msg.Phase)
	}
	wantInputs := []string{"artifacts/design.md", "artifacts/stories.md"}
	if !reflect.DeepEqual(msg.InputArtifacts, wantInputs) {
		t.Errorf("InputArtifacts = %v, want %v", msg.InputArtifacts, wantInputs)
	}
	wantRefs := []string{"rules/code-generation.md"}
	if !reflect.DeepEqual(msg.ReferenceDocs, wantRefs) {
		t.Errorf("ReferenceDocs = %v, want %v", msg.ReferenceDocs, wantRefs)
	}
}

func TestBuildDispatchUnknownStageWithoutOverride(t *testing.T) {
	src := &mockArtifactSource{}
	_, err := protocol.BuildDispatch(context.Background(), src, protocol.BuildOptions{
		StageName:     "yak-shaving",
		IssueID:       "X-1",
		ProjectKey:    "atlas",
		WorkspaceRoot: "/work/atlas",
	})
	var unknown *protocol.UnknownStageError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownStageError, got %v", err)
	}
}

func TestBuildDispatchAgentOverride(t *testing.T) {
	src := &mockArtifactSource{}
	msg, err := protocol.BuildDispatch(context.Background(), src, protocol.BuildOptions{
		StageName:     "yak-shaving",
		IssueID:       "X-1",
		ProjectKey:    "atlas",
		WorkspaceRoot: "/work/atlas",
		AgentOverride: protocol.RoleSteward,
	})
	if err != nil {
		t.Fatalf("BuildDispatch error: %v", err)
	}
	if msg.AssignedAgent != protocol.RoleSteward {
		t.Errorf("AssignedAgent = %q, want override %q", msg.AssignedAgent, protocol.RoleSteward)
	}
}

func TestBuildDispatchKeepsCallerReferenceDocs(t *testing.T) {
	src := &mockArtifactSource{}
	msg, err := protocol.BuildDispatch(context.Background(), src, protocol.BuildOptions{
		StageName:     "nfr-design",
		IssueID:       "X-3",
		ProjectKey:    "atlas",
		WorkspaceRoot: "/work/atlas",
		ReferenceDocs: []string{"docs/slo-targets.md"},
	})
	if err != nil {
		t.Fatalf("BuildDispatch error: %v", err)
	}
	want := []string{"docs/slo-targets.md", "rules/nfr-design.md"}
	if !reflect.DeepEqual(msg.ReferenceDocs, want) {
		t.Errorf("ReferenceDocs = %v, want %v", msg.ReferenceDocs, want)
	}
}

func TestBuildDispatchPropagatesCollaboratorFailure(t *testing.T) {
	src := &mockArtifactSource{err: &protocol.CollaboratorUnavailableError{
		Collaborator: "artifact store",
		Err:          errors.New("connection refused"),
	}}
	_, err := protocol.BuildDispatch(context.Background(), src, protocol.BuildOptions{
		StageName:     "code-generation",
		IssueID:       "X-1",
		ProjectKey:    "atlas",
		WorkspaceRoot: "/work/atlas",
	})
	var unavailable *protocol.CollaboratorUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected CollaboratorUnavailableError, got %v", err)
	}
}
