package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// newDashCmd creates the "foundry dash" subcommand, which launches the
// foundry-dash TUI as a child process.
func newDashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dash",
		Short: "Launch the notification dashboard TUI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bin, err := exec.LookPath("foundry-dash")
			if err != nil {
				return fmt.Errorf("foundry-dash not found on PATH (build it with the main binary): %w", err)
			}

			dash := exec.CommandContext(cmd.Context(), bin)
			dash.Stdin = os.Stdin
			dash.Stdout = os.Stdout
			dash.Stderr = os.Stderr
			return dash.Run()
		},
	}
}
