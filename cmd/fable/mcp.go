package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/fable/internal/cli"
	"github.com/aretw0/fable/internal/logging"
	"github.com/aretw0/fable/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp [story]",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the story to AI agents as MCP tools (get_scene, make_choice,
set_flag, undo, redo, create_checkpoint, restore_checkpoint) and the story
itself as the fable://story resource.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		transport, _ := cmd.Flags().GetString("transport")
		baseURL, _ := cmd.Flags().GetString("base-url")

		// Stdout carries JSON-RPC, so logs always go to stderr.
		logger := logging.New(cfg.Level(), logging.WithFormat(cfg.LogFormat))

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		app, err := cli.NewApp(sigCtx, storyPath(cmd, args), cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		srv := mcp.NewServer(app.Sessions, mcp.WithLogger(logger))

		switch transport {
		case "stdio":
			logger.Info("starting MCP server", "transport", "stdio")
			return srv.ServeStdio()
		case "sse":
			addr := cfg.HTTPAddr
			if baseURL == "" {
				baseURL = "http://localhost" + addr
			}
			if err := srv.ServeSSE(sigCtx, addr, baseURL); err != nil {
				return err
			}
			logger.Info("MCP server stopped gracefully")
			return nil
		default:
			fmt.Fprintln(os.Stderr, "supported transports: stdio, sse")
			return fmt.Errorf("unknown transport %q", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", "", "Address to listen on for SSE (default $FABLE_HTTP_ADDR or :8080)")
	mcpCmd.Flags().String("base-url", "", "Public base URL advertised to SSE clients")
}
