package dsl

import "github.com/vinculobrasil/flowbot/pkg/domain"

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.Node
	edges   []domain.Edge
	builder *Builder
}

// Label sets the editor label. It is shown in diagrams only.
func (n *NodeBuilder) Label(label string) *NodeBuilder {
	n.node.Label = label
	return n
}

// Set stores a configuration key in the node data, using the same keys as
// flow documents (e.g. "variable", "errorMessage").
func (n *NodeBuilder) Set(key string, value any) *NodeBuilder {
	n.node.Data[key] = value
	return n
}

// Go adds an unlabeled edge to target.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	return n.On("", target)
}

// On adds an edge to target taken when the node emits handle.
func (n *NodeBuilder) On(handle, target string) *NodeBuilder {
	n.edges = append(n.edges, domain.Edge{Source: n.node.ID, Target: target, Handle: handle})
	return n
}

// Then returns the owning builder, for chaining the next node.
func (n *NodeBuilder) Then() *Builder {
	return n.builder
}

// Build returns a copy of the underlying node.
func (n *NodeBuilder) Build() domain.Node {
	node := n.node
	node.Data = make(map[string]any, len(n.node.Data))
	for k, v := range n.node.Data {
		node.Data[k] = v
	}
	return node
}
