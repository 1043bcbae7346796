package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// newInitCmd creates the "foundry init" subcommand.
func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the foundry state directory and default config",
		Long: `Creates ~/.foundry (or $FOUNDRY_HOME) with a default config.toml and
verifies that the configured tracker CLI and agent command are installed.

Use --force to overwrite an existing config.toml.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}
			return runInit(cmd.OutOrStdout(), paths, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config.toml")
	return cmd
}

// runInit is the core logic for the init command, separated for testability.
func runInit(w io.Writer, paths *Paths, force bool) error {
	if err := os.MkdirAll(paths.FoundryHome, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	if _, err := os.Stat(paths.ConfigPath); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", paths.ConfigPath)
	}

	cfg := DefaultDaemonConfig()
	if err := WriteDaemonConfig(paths.ConfigPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %s\n", paths.ConfigPath)

	// Best-effort tool check: missing collaborators are a warning, not a
	// failure, since the daemon config may still be edited.
	for _, bin := range []string{cfg.TrackerBin, cfg.AgentCommand[0]} {
		if _, err := exec.LookPath(bin); err != nil {
			fmt.Fprintf(w, "warning: %s not found on PATH\n", bin)
		}
	}

	fmt.Fprintf(w, "state directory ready at %s\n", paths.FoundryHome)
	return nil
}
