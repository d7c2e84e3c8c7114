package runner

import (
	"context"

	"github.com/vinculobrasil/flowbot/pkg/domain"
)

// IOHandler is the strategy the Runner uses to talk to the person on the
// other side: text for a terminal, JSON lines for scripts.
type IOHandler interface {
	// Output presents the outcome of one turn.
	Output(ctx context.Context, res *domain.TurnResult) error

	// Input blocks until the next message or until ctx is done.
	Input(ctx context.Context) (string, error)

	// SystemOutput presents a notice that is not part of the conversation.
	SystemOutput(ctx context.Context, msg string) error
}
