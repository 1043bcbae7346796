package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"foundry/pkg/eventlog"
)

// newLogsCmd creates the "foundry logs" subcommand.
func newLogsCmd() *cobra.Command {
	var (
		agentID   string
		eventType string
		tail      int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Query the daemon event log",
		Long:  "Displays lifecycle events (spawn, completion, timeout, stop) from the\nevent database, newest first.",
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

			list, err := events.Query(cmd.Context(), eventlog.QueryOpts{
				AgentID:   agentID,
				EventType: eventType,
				Limit:     tail,
			})
			if err != nil {
				return err
			}
			printEvents(cmd.OutOrStdout(), list)
			return nil
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "filter by agent id")
	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type")
	cmd.Flags().IntVar(&tail, "tail", 20, "number of recent events to show")
	return cmd
}

func printEvents(w io.Writer, events []eventlog.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "no events")
		return
	}
	for _, e := range events {
		fmt.Fprintf(w, "%s  %-20s issue=%-10s agent=%s", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Type, e.IssueID, e.AgentID)
		if e.Payload != "" {
			fmt.Fprintf(w, "  %s", e.Payload)
		}
		fmt.Fprintln(w)
	}
}
