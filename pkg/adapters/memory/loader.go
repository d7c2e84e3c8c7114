package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/vinculobrasil/flowbot/pkg/domain"
)

// Loader implements ports.FlowLoader using an in-memory map.
// Flows are stored serialized so every Load returns an independent copy.
type Loader struct {
	mu    sync.RWMutex
	flows map[string][]byte
}

// NewLoader creates a Loader from raw JSON flow documents keyed by flow ID.
func NewLoader(data map[string]string) *Loader {
	flows := make(map[string][]byte, len(data))
	for k, v := range data {
		flows[k] = []byte(v)
	}
	return &Loader{flows: flows}
}

// NewFromGraphs creates a Loader from domain objects.
func NewFromGraphs(graphs ...*domain.Graph) (*Loader, error) {
	l := &Loader{flows: make(map[string][]byte, len(graphs))}
	for _, g := range graphs {
		if err := l.Put(g); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Put adds or replaces a flow.
func (l *Loader) Put(g *domain.Graph) error {
	if g == nil || g.ID == "" {
		return fmt.Errorf("flow missing ID")
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal flow %s: %w", g.ID, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flows[g.ID] = raw
	return nil
}

// Load decodes the flow with the given ID.
func (l *Loader) Load(ctx context.Context, flowID string) (*domain.Graph, error) {
	l.mu.RLock()
	raw, ok := l.flows[flowID]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, flowID)
	}

	var g domain.Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("failed to decode flow %s: %w", flowID, err)
	}
	if g.ID == "" {
		g.ID = flowID
	}
	return &g, nil
}

// List returns all flow IDs in deterministic order.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	keys := make([]string, 0, len(l.flows))
	for k := range l.flows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
