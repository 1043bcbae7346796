package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"foundry/pkg/protocol"
	"foundry/pkg/registry"
	"foundry/pkg/tracker"
)

// newDispatchCmd creates the "foundry dispatch" subcommand. It builds and
// prints the DispatchMessage for one stage of work without spawning anything,
// which is the fastest way to check routing and artifact wiring.
func newDispatchCmd() *cobra.Command {
	var (
		stage   string
		issueID string
		project string
		agent   string
	)

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Build and print the dispatch message for a stage (dry run)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}
			cfg, err := LoadDaemonConfig(paths.ConfigPath)
			if err != nil {
				return err
			}

			reg, skipped := registry.Open(paths.RegistryPath)
			for _, err := range skipped {
				log.Printf("dispatch: %v", err)
			}
			p, ok := reg.Get(project)
			if !ok {
				return fmt.Errorf("project %s not in registry", project)
			}

			var docs protocol.StageDocs
			if cfg.StageDocsPath != "" {
				docs, err = protocol.LoadStageDocs(cfg.StageDocsPath)
				if err != nil {
					return fmt.Errorf("load stage docs: %w", err)
				}
			}

			artifacts := tracker.NewCLIArtifactSource(cfg.TrackerBin, p.WorkspacePath, nil)
			msg, err := protocol.BuildDispatch(cmd.Context(), artifacts, protocol.BuildOptions{
				StageName:     stage,
				IssueID:       issueID,
				ProjectKey:    project,
				WorkspaceRoot: p.WorkspacePath,
				AgentOverride: agent,
				StageDocs:     docs,
			})
			if err != nil {
				return err
			}

			payload, err := protocol.EncodeDispatch(msg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(payload))
			return nil
		},
	}

	cmd.Flags().StringVar(&stage, "stage", "", "pipeline stage name")
	cmd.Flags().StringVar(&issueID, "issue", "", "tracking issue id")
	cmd.Flags().StringVar(&project, "project", "", "project key")
	cmd.Flags().StringVar(&agent, "agent", "", "override the routed agent role")
	_ = cmd.MarkFlagRequired("stage")
	_ = cmd.MarkFlagRequired("issue")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}
