package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/vinculobrasil/flowbot/internal/logging"
	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/ports"
)

// exitWords end the chat without touching the session.
var exitWords = []string{"exit", "quit", "sair"}

// Runner drives one conversation interactively: it sends each line the
// handler reads to the Conversation and shows what the flow replied, until
// the session finishes, input ends or the user leaves.
type Runner struct {
	conv       ports.Conversation
	handler    IOHandler
	logger     *slog.Logger
	flowID     string
	sessionID  string
	contact    domain.Contact
	middleware []Middleware
	signals    bool
}

// New creates a Runner over conv.
func New(conv ports.Conversation, opts ...Option) *Runner {
	r := &Runner{
		conv:    conv,
		logger:  logging.NewNop(),
		signals: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.handler == nil {
		r.handler = NewTextHandler(nil, nil)
	}
	if r.sessionID == "" {
		r.sessionID = uuid.NewString()
	}
	return r
}

// SessionID returns the session this runner talks to.
func (r *Runner) SessionID() string {
	return r.sessionID
}

// Run opens the conversation with an empty message, which starts the flow
// or re-sends the pending prompt of a resumed session, then loops.
func (r *Runner) Run(ctx context.Context) error {
	turn := Chain(r.conv.Handle, append([]Middleware{LoggingMiddleware(r.logger)}, r.middleware...)...)

	current := func() context.Context { return ctx }
	var sm *SignalManager
	if r.signals {
		sm = NewSignalManager(ctx)
		defer sm.Stop()
		current = sm.Context
	}
	interrupted := func() bool { return sm != nil && sm.Interrupted() }

	text := ""
	for {
		res, err := turn(current(), domain.Inbound{
			FlowID:    r.flowID,
			SessionID: r.sessionID,
			Contact:   r.contact,
			Text:      text,
		})
		if res != nil {
			if oerr := r.handler.Output(ctx, res); oerr != nil {
				return fmt.Errorf("output error: %w", oerr)
			}
		}

		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil && interrupted():
			_ = r.handler.SystemOutput(ctx, "turno cancelado")
			sm.Reset()
		case err != nil && res == nil:
			return err
		case err != nil:
			_ = r.handler.SystemOutput(ctx, "erro: "+err.Error())
		case res.Status == domain.StatusEnded || res.Status == domain.StatusHandedOff:
			_ = r.handler.SystemOutput(ctx, "conversa encerrada")
			return nil
		}

		text, err = r.handler.Input(current())
		if err != nil {
			if errors.Is(err, io.EOF) || interrupted() {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("input error: %w", err)
		}
		if isExit(text) {
			return nil
		}
	}
}

func isExit(text string) bool {
	for _, w := range exitWords {
		if strings.EqualFold(text, w) {
			return true
		}
	}
	return false
}
