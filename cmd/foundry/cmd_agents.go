package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"foundry/pkg/eventlog"
)

// newAgentsCmd creates the "foundry agents" subcommand. Agent state lives in
// the daemon process, so the CLI reconstructs recent activity from the event
// log instead of talking to the daemon directly.
func newAgentsCmd() *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Show recent agent lifecycle activity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}

			events, err := eventlog.Open(paths.EventDBPath)
			if err != nil {
				return fmt.Errorf("open event log: %w", err)
			}
			defer func() { _ = events.Close() }()

			list, err := events.Query(cmd.Context(), eventlog.QueryOpts{Limit: tail})
			if err != nil {
				return err
			}
			printAgentActivity(cmd.OutOrStdout(), list)
			return nil
		},
	}

	cmd.Flags().IntVar(&tail, "tail", 50, "number of recent events to inspect")
	return cmd
}

// printAgentActivity summarizes the latest event per agent, newest first.
func printAgentActivity(w io.Writer, events []eventlog.Event) {
	seen := make(map[string]bool)
	shown := 0
	for _, e := range events {
		if e.AgentID == "" || seen[e.AgentID] {
			continue
		}
		seen[e.AgentID] = true
		fmt.Fprintf(w, "%-36s  %-20s issue=%-10s %s\n", e.AgentID, e.Type, e.IssueID, e.CreatedAt.Format("15:04:05"))
		shown++
	}
	if shown == 0 {
		fmt.Fprintln(w, "no agent activity recorded")
	}
}
