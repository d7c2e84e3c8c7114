// Package graph indexes a flow for constant-time node and edge lookup and
// implements the routing rule used between steps.
package graph

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/vinculobrasil/flowbot/pkg/domain"
)

// Index is the read-only lookup structure built once per flow version.
// It is safe for concurrent use by any number of sessions.
type Index struct {
	graph    *domain.Graph
	nodes    map[string]*domain.Node
	outgoing map[string][]domain.Edge
	start    *domain.Node
	strict   bool
}

// Option configures an Index.
type Option func(*Index)

// WithStrictHandles makes Next refuse to fall back to the first edge when a
// handle matches no outgoing edge.
func WithStrictHandles(strict bool) Option {
	return func(i *Index) {
		i.strict = strict
	}
}

// Build validates g and returns its index. Every node's Data is decoded into
// its typed configuration. Nodes of unknown kind are kept without a config so
// that executing them surfaces a structured error instead of failing the load.
func Build(g *domain.Graph, opts ...Option) (*Index, error) {
	if g == nil {
		return nil, &domain.ConfigError{Reason: "nil graph"}
	}

	// Work on a private copy so the caller's graph is never mutated.
	cp := *g
	cp.Nodes = append([]domain.Node(nil), g.Nodes...)
	cp.Edges = append([]domain.Edge(nil), g.Edges...)
	g = &cp

	idx := &Index{
		graph:    g,
		nodes:    make(map[string]*domain.Node, len(g.Nodes)),
		outgoing: make(map[string][]domain.Edge, len(g.Nodes)),
	}
	for _, opt := range opts {
		opt(idx)
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID == "" {
			return nil, &domain.ConfigError{Reason: fmt.Sprintf("node at position %d has no id", i)}
		}
		if _, dup := idx.nodes[n.ID]; dup {
			return nil, &domain.ConfigError{NodeID: n.ID, Reason: "duplicate node id"}
		}
		if n.Config == nil {
			cfg, err := DecodeConfig(n.Kind, n.Data)
			if err != nil {
				return nil, &domain.ConfigError{NodeID: n.ID, Reason: "invalid configuration", Err: err}
			}
			n.Config = cfg
		}
		if n.Kind == domain.KindStart {
			if idx.start != nil {
				return nil, &domain.ConfigError{NodeID: n.ID, Reason: fmt.Sprintf("second start node (first is %q)", idx.start.ID)}
			}
			idx.start = n
		}
		idx.nodes[n.ID] = n
	}
	if idx.start == nil {
		return nil, &domain.ConfigError{Reason: "flow has no start node"}
	}

	for _, e := range g.Edges {
		if _, ok := idx.nodes[e.Source]; !ok {
			return nil, &domain.ConfigError{NodeID: e.Source, Reason: fmt.Sprintf("edge %q: unknown source", e.ID), Err: domain.ErrNodeNotFound}
		}
		if _, ok := idx.nodes[e.Target]; !ok {
			return nil, &domain.ConfigError{NodeID: e.Target, Reason: fmt.Sprintf("edge %q: unknown target", e.ID), Err: domain.ErrNodeNotFound}
		}
		idx.outgoing[e.Source] = append(idx.outgoing[e.Source], e)
	}

	return idx, nil
}

// DecodeConfig converts an editor data bag into the typed config for kind.
// Unknown kinds yield a nil config and no error.
func DecodeConfig(kind domain.Kind, data map[string]any) (domain.NodeConfig, error) {
	cfg := domain.ConfigFor(kind)
	if cfg == nil || len(data) == 0 {
		return cfg, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(data); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", kind, err)
	}
	return cfg, nil
}

// Graph returns the indexed flow.
func (i *Index) Graph() *domain.Graph { return i.graph }

// ID returns the flow id.
func (i *Index) ID() string { return i.graph.ID }

// Version returns the flow version.
func (i *Index) Version() string { return i.graph.Version }

// Start returns the single start node.
func (i *Index) Start() *domain.Node { return i.start }

// Node returns the node with the given id.
func (i *Index) Node(id string) (*domain.Node, bool) {
	n, ok := i.nodes[id]
	return n, ok
}

// Outgoing returns the edges leaving id in authoring order.
func (i *Index) Outgoing(id string) []domain.Edge {
	return i.outgoing[id]
}

// Nodes returns the nodes in authoring order.
func (i *Index) Nodes() []domain.Node { return i.graph.Nodes }
