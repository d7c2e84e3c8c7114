package ports

import (
	"context"

	"github.com/vinculobrasil/flowbot/pkg/domain"
)

// Conversation is the driving port used by transports (HTTP, MCP, CLI).
// Implementations load or start the session, run one turn under the
// session's lock and persist the result.
type Conversation interface {
	Handle(ctx context.Context, msg domain.Inbound) (*domain.TurnResult, error)
	Session(ctx context.Context, sessionID string) (*domain.Session, error)
	EndSession(ctx context.Context, sessionID string) error
	Sessions(ctx context.Context) ([]string, error)
	Flows(ctx context.Context) ([]string, error)
	Flow(ctx context.Context, flowID string) (*domain.Graph, error)
}
