package main

import (
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"foundry/pkg/notify"
)

// newNotificationsCmd creates the "foundry notifications" subcommand group.
func newNotificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notify"},
		Short:   "Inspect and manage the notification queue",
	}

	cmd.AddCommand(
		newNotificationsListCmd(),
		newNotificationsReadCmd(),
		newNotificationsClearCmd(),
	)
	return cmd
}

// openQueue loads the notification queue snapshot, logging skipped entries.
func openQueue() (*notify.Queue, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return nil, fmt.Errorf("resolve paths: %w", err)
	}
	queue, skipped := notify.Open(paths.QueuePath)
	for _, err := range skipped {
		log.Printf("notifications: %v", err)
	}
	return queue, nil
}

func newNotificationsListCmd() *cobra.Command {
	var (
		project string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List unread notifications in delivery order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, err := openQueue()
			if err != nil {
				return err
			}
			printNotifications(cmd.OutOrStdout(), queue.GetUnread(project, limit))
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "filter to one project key")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries to show (0 = all)")
	return cmd
}

func printNotifications(w io.Writer, ns []notify.Notification) {
	if len(ns) == 0 {
		fmt.Fprintln(w, "no unread notifications")
		return
	}
	for _, n := range ns {
		fmt.Fprintf(w, "[p%d] %-14s %-12s %s  (%s)\n", n.Priority, n.Type, n.ProjectKey, n.Title, n.ID)
		if n.Body != "" {
			fmt.Fprintf(w, "     %s\n", n.Body)
		}
	}
}

func newNotificationsReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := openQueue()
			if err != nil {
				return err
			}
			if err := queue.MarkRead(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %s read\n", args[0])
			return nil
		},
	}
}

func newNotificationsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <project-key>",
		Short: "Remove all notifications for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := openQueue()
			if err != nil {
				return err
			}
			if err := queue.ClearProject(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared notifications for %s\n", args[0])
			return nil
		},
	}
}
