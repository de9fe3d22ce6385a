package main

import (
	"fmt"

	"github.com/aretw0/fable/internal/validator"
	"github.com/aretw0/fable/pkg/adapters/file"
	"github.com/aretw0/fable/pkg/condition"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [story]",
	Short: "Check the story for consistency",
	Long: `Loads the story and reports broken links, invalid conditions and nodes
that cannot be reached from the initial node. Warnings do not fail the command
unless --strict is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := storyPath(cmd, args)
		story, err := file.LoadStory(path)
		if err != nil {
			return err
		}
		strict, _ := cmd.Flags().GetBool("strict")

		report := validator.ValidateStory(story, condition.New())
		out := cmd.OutOrStdout()
		for _, issue := range report.Issues {
			fmt.Fprintln(out, issue.String())
		}
		if err := report.Err(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		if strict && len(report.Warnings()) > 0 {
			return fmt.Errorf("validation failed: %d warning(s) in strict mode", len(report.Warnings()))
		}
		fmt.Fprintf(out, "%s is valid (%d nodes) ✅\n", path, len(story.Nodes))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("strict", false, "Treat warnings as errors")
}
