package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrFlowNotFound is returned when no graph is registered under a flow ID.
var ErrFlowNotFound = errors.New("flow not found")

var (
	ErrNodeNotFound            = errors.New("node not found")
	ErrUnknownNodeKind         = errors.New("unknown node kind")
	ErrHandleNotFound          = errors.New("no edge for handle")
	ErrStepLimit               = errors.New("step limit exceeded")
	ErrTurnCanceled            = errors.New("turn canceled")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)

// ConfigError reports an authoring mistake in a graph: a missing node, a
// dangling edge, a duplicate id or an undecodable node configuration.
type ConfigError struct {
	NodeID string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("invalid flow: %s", e.Reason)
	}
	return fmt.Sprintf("invalid flow: node %q: %s", e.NodeID, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
