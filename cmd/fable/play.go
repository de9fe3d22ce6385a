package main

import (
	"context"
	"os"

	"github.com/aretw0/fable/internal/cli"
	"github.com/aretw0/fable/internal/logging"
	"github.com/aretw0/fable/internal/presentation/tui"
	"github.com/spf13/cobra"
)

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play [story]",
	Short: "Play a story in the terminal",
	Long: `Starts an interactive reading session. Type a choice number to pick it,
or one of: undo, redo, flags, quit.

Progress is saved to the configured storage backend under the session ID,
so the same session can be resumed later.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		sessionID, _ := cmd.Flags().GetString("session")
		fresh, _ := cmd.Flags().GetBool("fresh")
		headless, _ := cmd.Flags().GetBool("headless")
		debug, _ := cmd.Flags().GetBool("debug")

		// The reader loop owns stdout; keep logs quiet unless asked.
		logger := logging.NewNop()
		if debug || cmd.Flags().Changed("log-level") {
			logger = logging.New(cfg.Level(), logging.WithFormat(cfg.LogFormat))
		}

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		app, err := cli.NewApp(sigCtx, storyPath(cmd, args), cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		interactive := !headless && tui.IsInteractive(os.Stdout)
		width := 0
		if interactive {
			tui.PrintBanner(cmd.OutOrStdout())
			width = tui.Width(os.Stdout)
		}

		return cli.Play(sigCtx, app, cli.PlayOptions{
			SessionID: sessionID,
			Fresh:     fresh,
			Headless:  headless,
			Width:     width,
			Input:     cmd.InOrStdin(),
			Output:    cmd.OutOrStdout(),
		})
	},
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().String("session", cli.DefaultSessionID, "Session ID to resume or create")
	playCmd.Flags().Bool("fresh", false, "Discard saved progress and start over")
	playCmd.Flags().Bool("headless", false, "Run without prompts or banner (for scripts)")
	playCmd.Flags().Bool("debug", false, "Log engine events to stderr")

	// 'fable story.yaml' plays directly.
	rootCmd.Args = cobra.MaximumNArgs(1)
	rootCmd.RunE = playCmd.RunE
	rootCmd.Flags().AddFlagSet(playCmd.Flags())
}
