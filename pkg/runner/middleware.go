package runner

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/ports"
)

// TurnFunc runs one turn for an inbound message.
type TurnFunc func(ctx context.Context, msg domain.Inbound) (*domain.TurnResult, error)

// Middleware wraps a TurnFunc, e.g. to log, time out or intercept
// commands before they reach the flow.
type Middleware func(next TurnFunc) TurnFunc

// Chain applies mws around fn. The first middleware is the outermost.
func Chain(fn TurnFunc, mws ...Middleware) TurnFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		fn = mws[i](fn)
	}
	return fn
}

// LoggingMiddleware logs every turn with its outcome and latency.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next TurnFunc) TurnFunc {
		return func(ctx context.Context, msg domain.Inbound) (*domain.TurnResult, error) {
			start := time.Now()
			res, err := next(ctx, msg)
			attrs := []any{
				"flow_id", msg.FlowID,
				"session_id", msg.SessionID,
				"took", time.Since(start),
			}
			if res != nil {
				attrs = append(attrs, "status", res.Status, "steps", res.Steps)
			}
			if err != nil {
				logger.Warn("turn failed", append(attrs, "err", err)...)
			} else {
				logger.Debug("turn finished", attrs...)
			}
			return res, err
		}
	}
}

// TimeoutMiddleware bounds the whole turn. The session keeps whatever the
// turn committed before the deadline.
func TimeoutMiddleware(d time.Duration) Middleware {
	return func(next TurnFunc) TurnFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, msg domain.Inbound) (*domain.TurnResult, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, msg)
		}
	}
}

// DefaultResetCommands restart the conversation from the start node.
var DefaultResetCommands = []string{"/reiniciar", "/reset"}

// ResetMiddleware ends the session when the message is one of commands
// and runs a fresh turn with no input, so the flow starts over.
func ResetMiddleware(conv ports.Conversation, commands ...string) Middleware {
	if len(commands) == 0 {
		commands = DefaultResetCommands
	}
	return func(next TurnFunc) TurnFunc {
		return func(ctx context.Context, msg domain.Inbound) (*domain.TurnResult, error) {
			if !isCommand(msg.Text, commands) {
				return next(ctx, msg)
			}
			if err := conv.EndSession(ctx, msg.SessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
				return nil, err
			}
			msg.Text = ""
			return next(ctx, msg)
		}
	}
}

func isCommand(text string, commands []string) bool {
	text = strings.TrimSpace(text)
	for _, c := range commands {
		if strings.EqualFold(text, c) {
			return true
		}
	}
	return false
}
