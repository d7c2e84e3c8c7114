package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{`   __ _                 _           _   `, "#34d399"},
	{`  / _| | _____      __ | |__   ___ | |_ `, "#2dd4bf"},
	{` | |_| |/ _ \ \ /\ / / | '_ \ / _ \| __|`, "#22d3ee"},
	{` |  _| | (_) \ V  V /  | |_) | (_) | |_ `, "#38bdf8"},
	{` |_| |_|\___/ \_/\_/   |_.__/ \___/ \__|`, "#60a5fa"},
}

// PrintBanner writes the flowbot banner to w, colored when w is a terminal.
func PrintBanner(w io.Writer, subtitle string) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	if subtitle != "" {
		fmt.Fprintln(w, out.String("  "+subtitle).Faint())
	}
	fmt.Fprintln(w)
}

// Dim renders s faint, for system notices in the chat.
func Dim(w io.Writer, s string) string {
	return termenv.NewOutput(w).String(s).Faint().String()
}
