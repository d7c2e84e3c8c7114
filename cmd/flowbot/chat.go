package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/vinculobrasil/flowbot/internal/presentation/tui"
	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/runner"
	"golang.org/x/term"
)

var chatCmd = &cobra.Command{
	Use:   "chat [flow-id]",
	Short: "Talk to a flow in the terminal",
	Long: `Runs a flow interactively, one line per inbound message. The session is
persisted in the configured store, so --session resumes where it stopped.
Ctrl+C cancels a running turn; Ctrl+C again, EOF or "sair" leaves.
Type /reiniciar to start the flow over.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flowID := cfg.Flows.DefaultFlow
		if len(args) > 0 {
			flowID = args[0]
		}
		sessionID, _ := cmd.Flags().GetString("session")
		phone, _ := cmd.Flags().GetString("phone")
		name, _ := cmd.Flags().GetString("name")
		useSimulated, _ := cmd.Flags().GetBool("simulated")
		jsonMode, _ := cmd.Flags().GetBool("json")

		a, err := newApp(cmd.Context(), cfg, logger, useSimulated)
		if err != nil {
			return err
		}
		defer a.Close()

		var handler runner.IOHandler
		if jsonMode {
			handler = runner.NewJSONHandler(os.Stdin, os.Stdout)
		} else {
			var opts []runner.TextHandlerOption
			if runner.IsTerminal(os.Stdout) {
				width, _, err := term.GetSize(int(os.Stdout.Fd()))
				if err != nil {
					width = 80
				}
				opts = append(opts, runner.WithTextHandlerRenderer(tui.NewRenderer(width)))
			}
			th := runner.NewTextHandler(os.Stdin, os.Stdout, opts...)
			if th.Interactive() {
				tui.PrintBanner(os.Stdout, "flow "+flowID)
			}
			handler = th
		}

		r := runner.New(a.engine,
			runner.WithFlowID(flowID),
			runner.WithSessionID(sessionID),
			runner.WithContact(domain.Contact{Phone: phone, Name: name}),
			runner.WithLogger(logger),
			runner.WithInputHandler(handler),
			runner.WithMiddleware(runner.ResetMiddleware(a.engine)),
		)
		return r.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("session", "s", "", "Session id to resume or create (random when empty)")
	chatCmd.Flags().String("phone", "", "Contact phone sent with every message")
	chatCmd.Flags().String("name", "", "Contact name sent with every message")
	chatCmd.Flags().Bool("simulated", true, "Use in-memory contracts, leads, ticketing and media")
	chatCmd.Flags().Bool("json", false, "Speak JSON lines instead of text")
}
