package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/vinculobrasil/flowbot/internal/compiler"
	"github.com/vinculobrasil/flowbot/internal/validator"
	"github.com/vinculobrasil/flowbot/pkg/domain"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file-or-dir]...",
	Short: "Check flows for consistency",
	Long: `Parses every flow document and reports dangling edges, unknown node kinds,
invalid node configuration (errors) and unreachable nodes, dead ends or
uncovered branch handles (warnings). Exits non-zero when any error is found.
Without arguments it checks the configured flows directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = []string{cfg.Flows.Dir}
		}
		files, err := flowFiles(args)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no flow documents found in %v", args)
		}

		strict, _ := cmd.Flags().GetBool("strict")
		parser := compiler.NewParser()
		failed := false
		for _, path := range files {
			g, err := parseFile(parser, path)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "✗ %s: %v\n", path, err)
				failed = true
				continue
			}
			report := validator.ValidateGraph(g)
			bad := report.HasErrors() || (strict && len(report.Issues) > 0)
			mark := "✓"
			if bad {
				mark = "✗"
				failed = true
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, %d nodes)\n", mark, path, g.ID, len(g.Nodes))
			for _, issue := range report.Issues {
				fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", issue)
			}
		}
		if failed {
			return errReported
		}
		return nil
	},
}

func parseFile(parser *compiler.Parser, path string) (*domain.Graph, error) {
	format, ok := compiler.FormatFromPath(path)
	if !ok {
		return nil, fmt.Errorf("unsupported flow format")
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied
	if err != nil {
		return nil, err
	}
	g, err := parser.Parse(data, format)
	if err != nil {
		return nil, err
	}
	if g.ID == "" {
		base := filepath.Base(path)
		g.ID = base[:len(base)-len(filepath.Ext(base))]
	}
	return g, nil
}

// flowFiles expands directories to the flow documents they contain.
func flowFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if _, ok := compiler.FormatFromPath(e.Name()); ok {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("strict", false, "Treat warnings as failures")
}
