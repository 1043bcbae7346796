package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newStopCmd creates the "foundry stop" subcommand.
func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Graceful shutdown of the foundry daemon",
		Long:  "Sends SIGTERM to the daemon; it stops all active agents within the\nshutdown deadline and exits.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}

			status, pid, err := DaemonStatus(paths.PIDPath)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			switch status {
			case DaemonStopped:
				fmt.Fprintln(w, "daemon is not running")
				return nil
			case DaemonStale:
				fmt.Fprintln(w, "removing stale PID file (process already dead)")
				return RemovePIDFile(paths.PIDPath)
			case DaemonRunning:
				fmt.Fprintf(w, "sending SIGTERM to daemon (PID %d)\n", pid)
				if err := StopDaemon(paths.PIDPath); err != nil {
					return err
				}
				fmt.Fprintln(w, "stop signal sent")
			}
			return nil
		},
	}
}
