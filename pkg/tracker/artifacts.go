package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"foundry/pkg/protocol"
)

// CLIArtifactSource implements protocol.ArtifactSource. Artifact paths come
// from the tracker CLI; contents are read from the workspace filesystem, since
// agents write their outputs there rather than uploading them.
type CLIArtifactSource struct {
	runner CommandRunner
	bin    string
	root   string // workspace root that relative artifact paths resolve against
}

// NewCLIArtifactSource creates an artifact source rooted at the given
// workspace. A nil runner gets the os/exec implementation.
func NewCLIArtifactSource(bin, root string, runner CommandRunner) *CLIArtifactSource {
	if runner == nil {
		runner = &ExecCommandRunner{}
	}
	return &CLIArtifactSource{runner: runner, bin: bin, root: root}
}

// ListForIssue runs `<bin> artifacts <id> --json` and returns the artifact
// paths recorded against the issue.
func (s *CLIArtifactSource) ListForIssue(ctx context.Context, issueID string) ([]string, error) {
	out, err := s.runner.Run(ctx, s.bin, "artifacts", issueID, "--json")
	if err != nil {
		return nil, &protocol.CollaboratorUnavailableError{Collaborator: s.bin, Err: err}
	}

	var paths []string
	if err := json.Unmarshal(out, &paths); err != nil {
		return nil, fmt.Errorf("parse %s artifacts output: %w", s.bin, err)
	}
	return paths, nil
}

// Read returns the content of one artifact. Relative paths resolve against
// the workspace root.
func (s *CLIArtifactSource) Read(_ context.Context, path string) ([]byte, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}
