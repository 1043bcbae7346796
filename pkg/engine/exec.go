package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"foundry/pkg/protocol"
)

// CommandWorker returns a Worker that executes an external agent command. The
// encoded DispatchMessage is fed on stdin and a CompletionMessage is decoded
// from stdout. Cancelling the worker context kills the subprocess, which is
// how cooperative stop and timeout reach the agent.
func CommandWorker(name string, args ...string) Worker {
	return func(ctx context.Context, msg protocol.DispatchMessage) (*protocol.CompletionMessage, error) {
		payload, err := protocol.EncodeDispatch(msg)
		if err != nil {
			return nil, err
		}

		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Stdin = bytes.NewReader(payload)
		cmd.Dir = msg.WorkspaceRoot

		out, err := cmd.Output()
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, exitErr.Stderr)
			}
			return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
		}

		cm, err := protocol.DecodeCompletion(bytes.TrimSpace(out))
		if err != nil {
			return nil, fmt.Errorf("agent output: %w", err)
		}
		return &cm, nil
	}
}
