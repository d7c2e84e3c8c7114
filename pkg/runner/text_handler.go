package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/vinculobrasil/flowbot/internal/presentation/tui"
	"github.com/vinculobrasil/flowbot/pkg/domain"
	"golang.org/x/term"
)

// ContentRenderer transforms a bot reply before it is printed, e.g.
// markdown to ANSI.
type ContentRenderer func(string) (string, error)

// TextHandler reads lines from a reader and prints replies to a writer.
// Reads happen on a pump goroutine so Input can honor cancellation.
type TextHandler struct {
	reader      *bufio.Reader
	writer      io.Writer
	renderer    ContentRenderer
	prompt      string
	interactive bool

	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption configures a TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer sets the reply renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.renderer = renderer
	}
}

// WithPrompt replaces the "> " input prompt.
func WithPrompt(prompt string) TextHandlerOption {
	return func(h *TextHandler) {
		h.prompt = prompt
	}
}

// NewTextHandler creates a handler over r and w, defaulting to stdin and
// stdout.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		reader:      bufio.NewReader(r),
		writer:      w,
		prompt:      "> ",
		interactive: IsTerminal(r),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// IsTerminal reports whether v is a file attached to a terminal.
func IsTerminal(v any) bool {
	f, ok := v.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// Interactive reports whether input comes from a terminal.
func (h *TextHandler) Interactive() bool {
	return h.interactive
}

func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

func (h *TextHandler) pump() {
	for {
		text, err := h.reader.ReadString('\n')
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}
		if err != nil {
			if err == io.EOF {
				close(h.inputChan)
				return
			}
			h.inputChan <- inputResult{err: err}
			// Back off so a persistently failing reader does not spin.
			time.Sleep(50 * time.Millisecond)
		}
	}
}

// Output prints every reply, then a notice when the conversation left the
// bot (hand-off) or ended.
func (h *TextHandler) Output(ctx context.Context, res *domain.TurnResult) error {
	for _, msg := range res.Messages {
		out := msg
		if h.renderer != nil {
			if rendered, err := h.renderer(msg); err == nil {
				out = rendered
			}
		}
		if _, err := fmt.Fprintln(h.writer, strings.TrimSpace(out)); err != nil {
			return err
		}
	}
	if res.Handoff != nil {
		note := "conversa transferida para atendimento humano"
		if res.Handoff.TargetID != "" {
			note += " (" + res.Handoff.TargetID + ")"
		}
		return h.SystemOutput(ctx, note)
	}
	return nil
}

// Input prompts and waits for one non-rejected line.
func (h *TextHandler) Input(ctx context.Context) (string, error) {
	h.initPump()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
			fmt.Fprint(h.writer, h.prompt)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res, ok := <-h.inputChan:
			if !ok {
				return "", io.EOF
			}
			if res.err != nil {
				return "", res.err
			}
			clean, err := SanitizeInput(res.text)
			if err != nil {
				fmt.Fprintf(h.writer, "Erro: %v. Tente novamente.\n", err)
				continue
			}
			return clean, nil
		}
	}
}

func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	_, err := fmt.Fprintln(h.writer, tui.Dim(h.writer, "["+msg+"]"))
	return err
}
