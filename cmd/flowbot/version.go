package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vinculobrasil/flowbot"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "flowbot version %s\n", flowbot.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
