package main

import (
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"foundry/pkg/registry"
)

// newProjectsCmd creates the "foundry projects" subcommand group.
func newProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage the project registry",
		Long:  "Subcommands for registering projects and driving their lifecycle\n(active <-> paused, active -> completed).",
	}

	cmd.AddCommand(
		newProjectsListCmd(),
		newProjectsCreateCmd(),
		newProjectsPauseCmd(),
		newProjectsResumeCmd(),
		newProjectsCompleteCmd(),
	)
	return cmd
}

// openRegistry loads the registry snapshot, logging skipped entries.
func openRegistry() (*registry.Registry, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return nil, fmt.Errorf("resolve paths: %w", err)
	}
	reg, skipped := registry.Open(paths.RegistryPath)
	for _, err := range skipped {
		log.Printf("projects: %v", err)
	}
	return reg, nil
}

func newProjectsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			printProjects(cmd.OutOrStdout(), reg.List())
			return nil
		},
	}
}

func printProjects(w io.Writer, projects []registry.ProjectState) {
	if len(projects) == 0 {
		fmt.Fprintln(w, "no projects registered")
		return
	}
	fmt.Fprintf(w, "%-16s %-24s %-10s %s\n", "Key", "Name", "Status", "Workspace")
	for _, p := range projects {
		fmt.Fprintf(w, "%-16s %-24s %-10s %s\n", p.Key, p.Name, p.Status, p.WorkspacePath)
	}
}

func newProjectsCreateCmd() *cobra.Command {
	var (
		name      string
		workspace string
	)

	cmd := &cobra.Command{
		Use:   "create <key>",
		Short: "Register a new project in the active state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			if name == "" {
				name = args[0]
			}
			p, err := reg.Create(args[0], name, workspace)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created project %s (%s)\n", p.Key, p.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "human-readable project name (default: the key)")
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace root for the project's agents")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

// newProjectsPauseCmd, Resume, Complete share the single-transition shape.
func newProjectsPauseCmd() *cobra.Command {
	return transitionCmd("pause", "Pause an active project", func(reg *registry.Registry, key string) error {
		return reg.Pause(key)
	})
}

func newProjectsResumeCmd() *cobra.Command {
	return transitionCmd("resume", "Resume a paused project", func(reg *registry.Registry, key string) error {
		return reg.Resume(key)
	})
}

func newProjectsCompleteCmd() *cobra.Command {
	return transitionCmd("complete", "Mark an active project completed (terminal)", func(reg *registry.Registry, key string) error {
		return reg.Complete(key)
	})
}

func transitionCmd(verb, short string, apply func(*registry.Registry, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <key>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			if err := apply(reg, args[0]); err != nil {
				return err
			}
			p, _ := reg.Get(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "project %s is now %s\n", p.Key, p.Status)
			return nil
		},
	}
}
