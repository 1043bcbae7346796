package main

import (
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"foundry/pkg/notify"
	"foundry/pkg/registry"
)

// newStatusCmd creates the "foundry status" subcommand.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon health, projects, and pending notifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}
			return runStatus(cmd.OutOrStdout(), paths)
		},
	}
}

func runStatus(w io.Writer, paths *Paths) error {
	status, pid, err := DaemonStatus(paths.PIDPath)
	if err != nil {
		return err
	}
	switch status {
	case DaemonRunning:
		fmt.Fprintf(w, "daemon: running (PID %d)\n", pid)
	case DaemonStale:
		fmt.Fprintf(w, "daemon: stale PID file (PID %d is dead)\n", pid)
	case DaemonStopped:
		fmt.Fprintln(w, "daemon: stopped")
	}

	reg, regErrs := registry.Open(paths.RegistryPath)
	for _, err := range regErrs {
		log.Printf("status: %v", err)
	}
	projects := reg.List()
	fmt.Fprintf(w, "projects: %d\n", len(projects))
	for _, p := range projects {
		line := fmt.Sprintf("  %-16s %-10s %s", p.Key, p.Status, p.WorkspacePath)
		if p.CoordinatorID != "" {
			line += "  coordinator=" + p.CoordinatorID
		}
		fmt.Fprintln(w, line)
	}

	queue, queueErrs := notify.Open(paths.QueuePath)
	for _, err := range queueErrs {
		log.Printf("status: %v", err)
	}
	fmt.Fprintf(w, "unread notifications: %d\n", len(queue.GetUnread("", 0)))
	return nil
}
