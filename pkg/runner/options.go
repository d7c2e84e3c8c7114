package runner

import (
	"log/slog"

	"github.com/vinculobrasil/flowbot/pkg/domain"
)

// Option configures the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithInputHandler configures the IOHandler. Defaults to a TextHandler on
// stdin/stdout.
func WithInputHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.handler = handler
	}
}

// WithFlowID selects the flow to run.
func WithFlowID(id string) Option {
	return func(r *Runner) {
		r.flowID = id
	}
}

// WithSessionID resumes (or creates) this session instead of a random one.
func WithSessionID(id string) Option {
	return func(r *Runner) {
		r.sessionID = id
	}
}

// WithContact sets the contact sent with every message.
func WithContact(c domain.Contact) Option {
	return func(r *Runner) {
		r.contact = c
	}
}

// WithMiddleware appends turn middleware.
func WithMiddleware(mws ...Middleware) Option {
	return func(r *Runner) {
		r.middleware = append(r.middleware, mws...)
	}
}

// WithSignals toggles Ctrl+C handling. Enabled by default.
func WithSignals(enabled bool) Option {
	return func(r *Runner) {
		r.signals = enabled
	}
}
