package dsl

import (
	"fmt"

	"github.com/vinculobrasil/flowbot/pkg/adapters/memory"
	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/graph"
)

// Builder manages the graph construction.
type Builder struct {
	graph domain.Graph
	nodes map[string]*NodeBuilder
	order []string
}

// New creates a builder for the flow with the given ID.
func New(flowID string) *Builder {
	return &Builder{
		graph: domain.Graph{ID: flowID},
		nodes: make(map[string]*NodeBuilder),
	}
}

// Name sets the display name of the flow.
func (b *Builder) Name(name string) *Builder {
	b.graph.Name = name
	return b
}

// Version sets the flow version recorded on new sessions.
func (b *Builder) Version(v string) *Builder {
	b.graph.Version = v
	return b
}

// Add creates a node of the given kind.
// If the node already exists, it returns the existing builder unchanged.
func (b *Builder) Add(id string, kind domain.Kind) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node:    domain.Node{ID: id, Kind: kind, Data: map[string]any{}},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

func (b *Builder) Start(id string) *NodeBuilder { return b.Add(id, domain.KindStart) }

func (b *Builder) End(id string) *NodeBuilder { return b.Add(id, domain.KindEnd) }

// Message adds a node that emits text and moves on.
func (b *Builder) Message(id, text string) *NodeBuilder {
	return b.Add(id, domain.KindMessage).Set("text", text)
}

// Input adds a node that asks question and waits for the reply.
func (b *Builder) Input(id, question string) *NodeBuilder {
	return b.Add(id, domain.KindInput).Set("question", question)
}

// Menu adds a numbered menu. Each option gets its own handle, so pair it
// with On(optionID, target).
func (b *Builder) Menu(id, text string, options ...domain.MenuOption) *NodeBuilder {
	opts := make([]any, 0, len(options))
	for _, o := range options {
		opts = append(opts, map[string]any{"id": o.ID, "label": o.Label, "value": o.Value})
	}
	return b.Add(id, domain.KindMenu).Set("text", text).Set("options", opts)
}

// Condition adds a node that routes on "true" when every condition holds
// and on "false" otherwise.
func (b *Builder) Condition(id string, conds ...domain.Condition) *NodeBuilder {
	list := make([]any, 0, len(conds))
	for _, c := range conds {
		list = append(list, map[string]any{"variable": c.Variable, "operator": c.Operator, "value": c.Value})
	}
	return b.Add(id, domain.KindCondition).Set("conditions", list)
}

// Handoff adds a node that transfers the conversation to a human queue.
func (b *Builder) Handoff(id, targetID string) *NodeBuilder {
	return b.Add(id, domain.KindHandoff).Set("targetId", targetID)
}

// Graph returns the flow and checks that it can be indexed.
func (b *Builder) Graph() (*domain.Graph, error) {
	g := b.graph
	g.Nodes = make([]domain.Node, 0, len(b.order))
	g.Edges = nil
	for _, id := range b.order {
		nb := b.nodes[id]
		g.Nodes = append(g.Nodes, nb.node)
		g.Edges = append(g.Edges, nb.edges...)
	}
	for i := range g.Edges {
		g.Edges[i].ID = fmt.Sprintf("e%d", i+1)
	}
	if _, err := graph.Build(&g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Loader compiles the flow into an in-memory loader.
func (b *Builder) Loader() (*memory.Loader, error) {
	g, err := b.Graph()
	if err != nil {
		return nil, err
	}
	loader, err := memory.NewFromGraphs(g)
	if err != nil {
		return nil, fmt.Errorf("failed to build memory loader: %w", err)
	}
	return loader, nil
}
