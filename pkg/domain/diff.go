package domain

import (
	"reflect"
)

// SessionDiff represents the changes a turn made to a session.
// It is serialized alongside turn results so clients can patch local state.
type SessionDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	CurrentNodeID *string        `json:"current_node_id,omitempty"`
	Status        *SessionStatus `json:"status,omitempty"`

	// Variables contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Variables map[string]any `json:"variables,omitempty"`

	// Visited lists node ids appended to the history.
	Visited []string `json:"visited,omitempty"`
}

// Diff calculates the difference between before and after.
// If before is nil, it returns a diff representing the entire session.
// It returns nil when nothing changed.
func Diff(before, after *Session) *SessionDiff {
	if after == nil {
		return nil
	}

	diff := &SessionDiff{SessionID: after.ID}

	if before == nil || before.CurrentNodeID != after.CurrentNodeID {
		diff.CurrentNodeID = &after.CurrentNodeID
	}
	if before == nil || before.Status != after.Status {
		diff.Status = &after.Status
	}
	diff.Variables = diffVariables(before, after)
	diff.Visited = diffHistory(before, after)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffVariables(before, after *Session) map[string]any {
	delta := make(map[string]any)

	if before == nil {
		for k, v := range after.Variables {
			delta[k] = v
		}
	} else {
		for k, v := range after.Variables {
			old, ok := before.Variables[k]
			if !ok || !reflect.DeepEqual(old, v) {
				delta[k] = v
			}
		}
		for k := range before.Variables {
			if _, ok := after.Variables[k]; !ok {
				delta[k] = nil
			}
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// diffHistory assumes append-only history. When the bounded history was
// trimmed, records newer than the last known timestamp are reported.
func diffHistory(before, after *Session) []string {
	var from int
	switch {
	case before == nil:
	case len(before.History) < MaxHistory:
		from = len(before.History)
	default:
		last := before.History[len(before.History)-1].At
		from = len(after.History)
		for i := len(after.History) - 1; i >= 0; i-- {
			if !after.History[i].At.After(last) {
				break
			}
			from = i
		}
	}
	if from >= len(after.History) {
		return nil
	}
	out := make([]string, 0, len(after.History)-from)
	for _, rec := range after.History[from:] {
		out = append(out, rec.NodeID)
	}
	return out
}

// IsEmpty checks if the diff contains any actionable changes. A nil diff is empty.
func (d *SessionDiff) IsEmpty() bool {
	return d == nil || d.CurrentNodeID == nil &&
		d.Status == nil &&
		len(d.Variables) == 0 &&
		len(d.Visited) == 0
}
