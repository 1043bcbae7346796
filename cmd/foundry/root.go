package main

import (
	"fmt"

	"foundry/internal/appversion"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root foundry command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "foundry",
		Short:         "Foundry agent dispatch and lifecycle engine",
		Long:          "foundry dispatches pipeline stages to role-specific agents and\nsupervises their lifecycle, concurrency, and recovery.",
		Version:       fmt.Sprintf("foundry %s", appversion.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newInitCmd(),
		newStartCmd(),
		newStopCmd(),
		newStatusCmd(),
		newProjectsCmd(),
		newNotificationsCmd(),
		newDispatchCmd(),
		newAgentsCmd(),
		newLogsCmd(),
		newDashCmd(),
	)

	return cmd
}
