package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/vinculobrasil/flowbot/pkg/domain"
)

// JSONHandler speaks JSON lines: every turn result is one line on the
// writer, every input line is a JSON string, a {"text": ...} object or raw
// text.
type JSONHandler struct {
	reader  *bufio.Reader
	mu      sync.Mutex
	encoder *json.Encoder
}

// Event is a non-conversational line emitted by SystemOutput.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewJSONHandler creates a handler over r and w, defaulting to stdin and
// stdout.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		reader:  bufio.NewReader(r),
		encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) Output(ctx context.Context, res *domain.TurnResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.encoder.Encode(res)
}

// Input reads one line. It does not observe ctx while blocked in the read.
func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := h.reader.ReadString('\n')
	if err != nil && (err != io.EOF || strings.TrimSpace(line) == "") {
		return "", err
	}
	return SanitizeInput(decodeLine(strings.TrimSpace(line)))
}

func decodeLine(line string) string {
	var s string
	if err := json.Unmarshal([]byte(line), &s); err == nil {
		return s
	}
	var msg struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal([]byte(line), &msg); err == nil && msg.Text != nil {
		return *msg.Text
	}
	return line
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.encoder.Encode(Event{Type: "system", Message: msg})
}
