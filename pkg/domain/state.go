package domain

import (
	"maps"
	"time"
)

// MaxHistory bounds Session.History; older records are dropped first.
const MaxHistory = 200

// SessionStatus reports where a conversation stands after the last turn.
type SessionStatus string

const (
	StatusActive       SessionStatus = "active"        // Fresh or mid-turn
	StatusWaitingInput SessionStatus = "waiting_input" // Suspended at CurrentNodeID
	StatusHandedOff    SessionStatus = "handed_off"    // Control yielded to a human queue
	StatusEnded        SessionStatus = "ended"         // End node reached or no successor
	StatusFailed       SessionStatus = "failed"        // Last turn aborted with an error
)

// Contact identifies the person on the other end of the conversation.
type Contact struct {
	ID    string `json:"id,omitempty"`
	Phone string `json:"phone,omitempty"`
	Name  string `json:"name,omitempty"`
}

// StepRecord is a diagnostic entry of the step history.
type StepRecord struct {
	NodeID string    `json:"node_id"`
	Kind   Kind      `json:"kind"`
	At     time.Time `json:"at"`
}

// Pending is the resumable sub-state of the node a session is suspended at.
// It is owned by that node and discarded as soon as the session leaves it.
type Pending struct {
	NodeID string `json:"node_id"`

	// Cursor is the lead capture field index.
	Cursor int `json:"cursor,omitempty"`

	// Answers holds lead capture answers collected so far.
	Answers map[string]string `json:"answers,omitempty"`

	// Candidates holds the contracts offered for selection.
	Candidates []Contract `json:"candidates,omitempty"`

	// Greeted marks that a Welcome AI node already emitted its greeting.
	Greeted bool `json:"greeted,omitempty"`
}

// Session is the serializable per-conversation context.
type Session struct {
	ID             string         `json:"id"`
	FlowID         string         `json:"flow_id"`
	FlowVersion    string         `json:"flow_version,omitempty"`
	Contact        Contact        `json:"contact"`
	CurrentNodeID  string         `json:"current_node_id,omitempty"`
	Status         SessionStatus  `json:"status"`
	Variables      map[string]any `json:"variables"`
	Pending        *Pending       `json:"pending,omitempty"`
	History        []StepRecord   `json:"history,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
}

// NewSession creates an empty session for a flow. CurrentNodeID stays empty
// until the first step runs.
func NewSession(id, flowID string, contact Contact, now time.Time) *Session {
	return &Session{
		ID:             id,
		FlowID:         flowID,
		Contact:        contact,
		Status:         StatusActive,
		Variables:      make(map[string]any),
		StartedAt:      now,
		LastActivityAt: now,
	}
}

// Waiting reports whether the session is suspended waiting for input.
func (s *Session) Waiting() bool {
	return s.Status == StatusWaitingInput
}

// Finished reports whether the bot no longer drives the session.
func (s *Session) Finished() bool {
	return s.Status == StatusEnded || s.Status == StatusHandedOff
}

// Apply merges variable deltas. Later writes overwrite earlier ones.
func (s *Session) Apply(deltas map[string]any) {
	if len(deltas) == 0 {
		return
	}
	if s.Variables == nil {
		s.Variables = make(map[string]any, len(deltas))
	}
	maps.Copy(s.Variables, deltas)
}

// Record appends a step to the bounded history.
func (s *Session) Record(nodeID string, kind Kind, at time.Time) {
	s.History = append(s.History, StepRecord{NodeID: nodeID, Kind: kind, At: at})
	if over := len(s.History) - MaxHistory; over > 0 {
		s.History = append([]StepRecord(nil), s.History[over:]...)
	}
}

// Clone returns a deep copy so a turn can work without touching the caller's
// session until it commits.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Variables = CloneValues(s.Variables)
	c.History = append([]StepRecord(nil), s.History...)
	if s.Pending != nil {
		p := *s.Pending
		if s.Pending.Answers != nil {
			p.Answers = maps.Clone(s.Pending.Answers)
		}
		p.Candidates = append([]Contract(nil), s.Pending.Candidates...)
		c.Pending = &p
	}
	return &c
}

// CloneValues deep-copies nested maps and slices of a variable map.
func CloneValues(src map[string]any) map[string]any {
	if src == nil {
		return make(map[string]any)
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneValues(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case map[string]string:
		return maps.Clone(val)
	default:
		return v
	}
}
