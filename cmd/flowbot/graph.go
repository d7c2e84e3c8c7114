package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	presentation "github.com/vinculobrasil/flowbot/internal/presentation/graph"
)

var graphCmd = &cobra.Command{
	Use:   "graph <flow-id>",
	Short: "Print a flow as a Mermaid diagram",
	Long: `Renders the flow as Mermaid "graph TD" source. With --session the nodes the
session visited and the node it is waiting on are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		format, _ := cmd.Flags().GetString("format")

		a, err := newApp(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer a.Close()

		g, err := a.engine.Flow(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		switch format {
		case "json":
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(g)
		case "mermaid":
		default:
			return fmt.Errorf("unknown format %q (want mermaid or json)", format)
		}

		var overlay *presentation.GraphOverlay
		if sessionID != "" {
			sess, err := a.engine.Session(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			if sess.FlowID != g.ID {
				logger.Warn("session belongs to another flow", "session", sessionID, "flow", sess.FlowID)
			}
			overlay = presentation.OverlayFromSession(sess)
		}
		fmt.Fprint(cmd.OutOrStdout(), presentation.GenerateMermaid(g, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("session", "s", "", "Highlight the path of this session")
	graphCmd.Flags().StringP("format", "f", "mermaid", "mermaid or json")
}
