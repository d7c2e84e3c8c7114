package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders bot replies as markdown using
// glamour, adapting to a light or dark terminal. If the renderer cannot be
// built, the text is passed through trimmed.
func NewRenderer(width int) func(string) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return plain
	}

	return func(markdown string) (string, error) {
		out, err := r.Render(markdown)
		if err != nil {
			return plain(markdown)
		}
		return strings.TrimSpace(out), nil
	}
}

func plain(s string) (string, error) {
	return strings.TrimSpace(s), nil
}
