package runtime

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/ports"
)

const (
	// DefaultMaxSteps bounds node executions per turn.
	DefaultMaxSteps = 100

	// DefaultCallTimeout bounds every collaborator call.
	DefaultCallTimeout = 30 * time.Second

	// DefaultErrorMessage is emitted when a turn aborts.
	DefaultErrorMessage = "Desculpe, ocorreu um erro ao processar sua mensagem. Tente novamente em instantes."
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Engine interprets flows turn by turn. It holds no per-session state and is
// safe for concurrent use across sessions.
type Engine struct {
	collab       ports.Collaborators
	logger       *slog.Logger
	hooks        domain.LifecycleHooks
	maxSteps     int
	callTimeout  time.Duration
	errorMessage string
	now          func() time.Time
	sleep        Sleeper
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCollaborators injects the external services nodes may call.
func WithCollaborators(c ports.Collaborators) EngineOption {
	return func(e *Engine) {
		e.collab = c
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(h domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = h
	}
}

// WithMaxSteps overrides the per-turn step cap.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithCallTimeout overrides the per-call collaborator timeout.
func WithCallTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithErrorMessage overrides the apology emitted on aborted turns.
func WithErrorMessage(msg string) EngineOption {
	return func(e *Engine) {
		if msg != "" {
			e.errorMessage = msg
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSleeper replaces the Delay node's wait, mainly for tests.
func WithSleeper(s Sleeper) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.sleep = s
		}
	}
}

// NewEngine creates a runtime with defaults for every unset option.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxSteps:     DefaultMaxSteps,
		callTimeout:  DefaultCallTimeout,
		errorMessage: DefaultErrorMessage,
		now:          time.Now,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
