package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter  EventType = "node_enter"
	EventNodeLeave  EventType = "node_leave"
	EventCall       EventType = "collaborator_call"
	EventCallReturn EventType = "collaborator_return"
	EventTurnEnd    EventType = "turn_end"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	FlowID    string    `json:"flow_id,omitempty"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID string `json:"node_id"`
	Kind   Kind   `json:"kind"`
	Handle string `json:"handle,omitempty"`
	Error  string `json:"error,omitempty"`
}

// CallEvent represents an external collaborator invocation.
type CallEvent struct {
	EventBase
	NodeID       string        `json:"node_id"`
	Collaborator string        `json:"collaborator"`
	Duration     time.Duration `json:"duration,omitempty"`
	IsError      bool          `json:"is_error,omitempty"`
}

// TurnEvent summarizes a finished turn.
type TurnEvent struct {
	EventBase
	Status   SessionStatus `json:"status"`
	Steps    int           `json:"steps"`
	Handoff  bool          `json:"handoff,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeEnter  func(context.Context, *NodeEvent)
	OnNodeLeave  func(context.Context, *NodeEvent)
	OnCall       func(context.Context, *CallEvent)
	OnCallReturn func(context.Context, *CallEvent)
	OnTurnEnd    func(context.Context, *TurnEvent)
}
