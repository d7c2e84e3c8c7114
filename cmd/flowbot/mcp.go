package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vinculobrasil/flowbot"
	flowmcp "github.com/vinculobrasil/flowbot/pkg/adapters/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve flows as MCP tools",
	Long: `Exposes send_message, get_graph, get_session and list_flows to MCP clients.
The stdio transport keeps stdout for JSON-RPC; logs always go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")
		useSimulated, _ := cmd.Flags().GetBool("simulated")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger, useSimulated)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := flowmcp.NewServer(a.engine, flowbot.Version, flowmcp.WithLogger(logger))
		switch transport {
		case "stdio":
			return srv.ServeStdio(ctx)
		case "sse":
			return srv.ServeSSE(ctx, addr, "http://"+addr)
		default:
			return fmt.Errorf("unknown transport %q (want stdio or sse)", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "stdio or sse")
	mcpCmd.Flags().String("addr", "localhost:8090", "Listen address for the sse transport")
	mcpCmd.Flags().Bool("simulated", true, "Use in-memory contracts, leads, ticketing and media")
}
