package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/vinculobrasil/flowbot/internal/config"
	"github.com/vinculobrasil/flowbot/internal/logging"
)

// defaultConfigFile is picked up from the working directory when --config
// is not given.
const defaultConfigFile = "flowbot.yaml"

var (
	cfgFile  string
	flowsDir string
	logLevel string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "flowbot",
	Short: "flowbot runs chatbot and IVR conversation flows",
	Long: `flowbot interprets conversation flows authored as node graphs (JSON or YAML)
and runs them one inbound message at a time, persisting each session between turns.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			if _, err := os.Stat(defaultConfigFile); err == nil {
				path = defaultConfigFile
			}
		}
		c, err := config.Load(path)
		if err != nil {
			return err
		}
		if flowsDir != "" {
			c.Flows.Dir = flowsDir
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		cfg = c
		logger = logging.FromConfig(c.Log.Level, c.Log.Format)
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// errReported signals that the command already printed its failure.
var errReported = errors.New("failure already reported")

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default ./flowbot.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&flowsDir, "flows", "", "Directory containing flow documents (overrides flows.dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
}
