package ports

import (
	"context"

	"github.com/vinculobrasil/flowbot/pkg/domain"
)

// FlowLoader retrieves serialized flows by ID.
type FlowLoader interface {
	// Load returns the flow with the given ID.
	// Returns domain.ErrFlowNotFound if it does not exist.
	Load(ctx context.Context, flowID string) (*domain.Graph, error)

	// List returns the IDs of all available flows.
	List(ctx context.Context) ([]string, error)
}

// Watchable defines an interface for loaders that can notify about backend changes.
type Watchable interface {
	// Watch returns a channel that is signaled when any flow changes.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
