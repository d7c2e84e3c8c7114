package graph

import (
	"fmt"

	"github.com/vinculobrasil/flowbot/pkg/domain"
)

// Route describes how Next picked a successor.
type Route struct {
	Edge     domain.Edge
	Fallback bool // handle given but unmatched, first edge taken
}

// Next selects the successor of currentID.
//
// With no outgoing edges it returns (nil, Route{}, nil): the node has no
// successor. With a handle, the first edge carrying that handle wins; when
// none does, the first outgoing edge is taken and Route.Fallback is set,
// unless the index is strict, in which case ErrHandleNotFound is returned.
// Without a handle the first outgoing edge is taken.
func (i *Index) Next(currentID, handle string) (*domain.Node, Route, error) {
	edges := i.outgoing[currentID]
	if len(edges) == 0 {
		return nil, Route{}, nil
	}

	chosen := edges[0]
	fallback := false
	if handle != "" {
		matched := false
		for _, e := range edges {
			if e.Handle == handle {
				chosen = e
				matched = true
				break
			}
		}
		if !matched {
			if i.strict {
				return nil, Route{}, fmt.Errorf("node %q handle %q: %w", currentID, handle, domain.ErrHandleNotFound)
			}
			fallback = true
		}
	}

	n, ok := i.nodes[chosen.Target]
	if !ok {
		return nil, Route{}, fmt.Errorf("edge target %q: %w", chosen.Target, domain.ErrNodeNotFound)
	}
	return n, Route{Edge: chosen, Fallback: fallback}, nil
}

// Handles returns the distinct non-empty handles leaving id, in order.
func (i *Index) Handles(id string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range i.outgoing[id] {
		if e.Handle != "" && !seen[e.Handle] {
			seen[e.Handle] = true
			out = append(out, e.Handle)
		}
	}
	return out
}
