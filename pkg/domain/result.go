package domain

// Contract is a record returned by the contract lookup collaborator.
type Contract struct {
	ID      string         `json:"id"`
	Address string         `json:"address,omitempty"`
	Status  string         `json:"status,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// Handoff describes a transfer of the conversation to a human queue.
type Handoff struct {
	TargetID string `json:"target_id,omitempty"`
	Priority string `json:"priority,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// StepResult is the outcome of executing one node.
//
// Exactly one of the following decides what happens next: a successor is
// resolved (from NextNodeID, or by routing Handle), WaitForInput suspends the
// turn at the same node, or Terminal stops the bot.
type StepResult struct {
	Success   bool           `json:"success"`
	Messages  []string       `json:"messages,omitempty"`
	Handle    string         `json:"handle,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`

	// NextNodeID forces a successor, bypassing the router.
	NextNodeID string `json:"next_node_id,omitempty"`

	WaitForInput bool `json:"wait_for_input,omitempty"`
	Terminal     bool `json:"terminal,omitempty"`

	// Pending is stored on the session while it waits at this node.
	Pending *Pending `json:"pending,omitempty"`

	Handoff *Handoff `json:"handoff,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Failed builds an unsuccessful result carrying a diagnostic.
func Failed(msg string) StepResult {
	return StepResult{Success: false, Error: msg}
}

// TurnResult is what a caller receives for one inbound message.
type TurnResult struct {
	Messages []string      `json:"messages"`
	Status   SessionStatus `json:"status"`
	Steps    int           `json:"steps"`
	Handoff  *Handoff      `json:"handoff,omitempty"`
	Error    string        `json:"error,omitempty"`
	Session  *Session      `json:"session"`
	Diff     *SessionDiff  `json:"diff,omitempty"`
}

// Inbound is one message received from a contact.
// An empty Text means "no new input" and re-emits the pending prompt.
type Inbound struct {
	FlowID    string  `json:"flow_id"`
	SessionID string  `json:"session_id"`
	Contact   Contact `json:"contact"`
	Text      string  `json:"text"`
}
