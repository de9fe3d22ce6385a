package main

import (
	"fmt"
	"os"

	"github.com/aretw0/fable/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fable",
	Short: "Fable is a narrative state engine for branching stories",
	Long: `Fable plays branching stories described in YAML or JSON, keeping flags,
undo history and checkpoints for every reader session.

Settings are read from FABLE_* environment variables; flags override them.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("story", "s", "story.yaml", "Story file (YAML or JSON)")
	rootCmd.PersistentFlags().String("storage", "", "Storage backend: memory, file, redis, sqlite or postgres")
	rootCmd.PersistentFlags().String("storage-path", "", "Directory or database file for file and sqlite storage")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
}

// loadConfig reads the environment and applies explicitly set flags on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("storage") {
		cfg.Storage, _ = flags.GetString("storage")
	}
	if flags.Changed("storage-path") {
		cfg.StoragePath, _ = flags.GetString("storage-path")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Lookup("addr") != nil && flags.Changed("addr") {
		cfg.HTTPAddr, _ = flags.GetString("addr")
	}
	return cfg, cfg.Validate()
}

// storyPath resolves the story from the first positional argument or --story.
func storyPath(cmd *cobra.Command, args []string) string {
	if len(args) > 0 && !cmd.Flags().Changed("story") {
		return args[0]
	}
	path, _ := cmd.Flags().GetString("story")
	return path
}
