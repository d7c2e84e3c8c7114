package validator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinculobrasil/flowbot/internal/validator"
	"github.com/vinculobrasil/flowbot/pkg/domain"
)

func n(id string, kind domain.Kind, data map[string]any) domain.Node {
	return domain.Node{ID: id, Kind: kind, Data: data}
}

func messagesFor(r *validator.Report, nodeID string) []string {
	var out []string
	for _, i := range r.Issues {
		if i.NodeID == nodeID {
			out = append(out, i.Message)
		}
	}
	return out
}

func TestValidateGraph_Clean(t *testing.T) {
	g := &domain.Graph{
		ID: "ok",
		Nodes: []domain.Node{
			n("start", domain.KindStart, nil),
			n("cond", domain.KindCondition, map[string]any{"conditions": []any{map[string]any{"variable": "x", "operator": "is_empty"}}}),
			n("a", domain.KindEnd, nil),
			n("b", domain.KindEnd, nil),
		},
		Edges: []domain.Edge{
			{Source: "start", Target: "cond"},
			{Source: "cond", Target: "a", Handle: "true"},
			{Source: "cond", Target: "b", Handle: "false"},
		},
	}
	r := validator.ValidateGraph(g)
	assert.Empty(t, r.Issues)
	assert.NoError(t, r.Err())
}

func TestValidateGraph_Warnings(t *testing.T) {
	g := &domain.Graph{
		ID: "warn",
		Nodes: []domain.Node{
			n("start", domain.KindStart, nil),
			n("menu", domain.KindMenu, map[string]any{"text": "?", "options": []any{
				map[string]any{"id": "a", "label": "A"},
				map[string]any{"id": "b", "label": "B"},
			}}),
			n("lookup", domain.KindIdentifyContract, nil),
			n("orphan", domain.KindMessage, map[string]any{"text": "nunca"}),
			n("bye", domain.KindEnd, nil),
		},
		Edges: []domain.Edge{
			{Source: "start", Target: "menu"},
			{Source: "menu", Target: "lookup", Handle: "a"},
			{Source: "lookup", Target: "bye", Handle: "found"},
			{Source: "orphan", Target: "bye"},
		},
	}
	r := validator.ValidateGraph(g)
	require.False(t, r.HasErrors(), "%v", r.Issues)

	assert.Contains(t, messagesFor(r, "menu"), `no edge for handle "b"; falls back to the first edge`)
	assert.Contains(t, messagesFor(r, "lookup"), `no edge for handle "not_found"; falls back to the first edge`)
	assert.Contains(t, messagesFor(r, "orphan"), "unreachable from the start node")
	assert.Empty(t, messagesFor(r, "bye"))
}

func TestValidateGraph_Errors(t *testing.T) {
	tests := []struct {
		name   string
		graph  *domain.Graph
		nodeID string
		want   string
	}{
		{
			name:  "missing start",
			graph: &domain.Graph{ID: "x", Nodes: []domain.Node{n("a", domain.KindMessage, nil)}},
			want:  "flow has no start node",
		},
		{
			name: "broken edge",
			graph: &domain.Graph{ID: "x",
				Nodes: []domain.Node{n("start", domain.KindStart, nil)},
				Edges: []domain.Edge{{ID: "e1", Source: "start", Target: "ghost"}},
			},
			nodeID: "ghost",
			want:   "unknown target",
		},
		{
			name: "unknown kind",
			graph: &domain.Graph{ID: "x",
				Nodes: []domain.Node{n("start", domain.KindStart, nil), n("q", "quiz", nil)},
				Edges: []domain.Edge{{Source: "start", Target: "q"}},
			},
			nodeID: "q",
			want:   `unknown node kind "quiz"`,
		},
		{
			name: "webhook without url",
			graph: &domain.Graph{ID: "x",
				Nodes: []domain.Node{n("start", domain.KindStart, nil), n("w", domain.KindWebhook, nil)},
				Edges: []domain.Edge{{Source: "start", Target: "w"}},
			},
			nodeID: "w",
			want:   "webhook has no url",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validator.ValidateGraph(tt.graph)
			require.True(t, r.HasErrors())
			require.Error(t, r.Err())
			assert.Contains(t, r.Err().Error(), tt.want)
			if tt.nodeID != "" {
				assert.NotEmpty(t, messagesFor(r, tt.nodeID))
			}
		})
	}
}
