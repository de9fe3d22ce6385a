package main

import (
	"context"
	"fmt"

	"github.com/aretw0/fable/internal/cli"
	"github.com/aretw0/fable/internal/logging"
	"github.com/aretw0/fable/internal/presentation/graph"
	"github.com/aretw0/fable/pkg/adapters/file"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [story]",
	Short: "Export the story graph as a Mermaid diagram",
	Long: `Outputs a Mermaid diagram (graph TD) of the story. With --session the
nodes visited by that session and its current node are highlighted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := storyPath(cmd, args)
		sessionID, _ := cmd.Flags().GetString("session")

		if sessionID == "" {
			story, err := file.LoadStory(path)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(story, nil))
			return nil
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := context.Background()
		app, err := cli.NewApp(ctx, path, cfg, logging.NewNop())
		if err != nil {
			return err
		}
		defer app.Close()

		eng, err := app.Sessions.Load(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("load session %q: %w", sessionID, err)
		}
		state := eng.State()
		overlay := &graph.GraphOverlay{
			VisitedNodes: state.History,
			CurrentNode:  state.CurrentNodeID,
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(app.Story, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("session", "", "Highlight the path taken by this session")
}
