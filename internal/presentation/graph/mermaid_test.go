package graph_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vinculobrasil/flowbot/internal/presentation/graph"
	"github.com/vinculobrasil/flowbot/pkg/domain"
)

func sample() *domain.Graph {
	return &domain.Graph{
		ID: "atendimento",
		Nodes: []domain.Node{
			{ID: "start", Kind: domain.KindStart},
			{ID: "menu-1", Kind: domain.KindMenu, Label: "Menu \"principal\""},
			{ID: "check", Kind: domain.KindCondition},
			{ID: "api", Kind: domain.KindWebhook},
			{ID: "human", Kind: domain.KindHandoff},
			{ID: "bye", Kind: domain.KindEnd},
		},
		Edges: []domain.Edge{
			{Source: "start", Target: "menu-1"},
			{Source: "menu-1", Target: "check", Handle: "a"},
			{Source: "check", Target: "api", Handle: "true"},
			{Source: "check", Target: "human", Handle: "false"},
			{Source: "api", Target: "bye"},
		},
	}
}

func TestGenerateMermaid(t *testing.T) {
	out := graph.GenerateMermaid(sample(), nil)

	tests := []struct {
		name string
		want string
	}{
		{"header", "graph TD\n"},
		{"start circle", `start(("start <br/> <i>start</i>"))`},
		{"menu parallelogram with escaped label", `menu_1[/"Menu 'principal' <br/> <i>menu</i>"/]`},
		{"condition rhombus", `check{"check <br/> <i>condition</i>"}`},
		{"webhook subroutine", `api[["api <br/> <i>webhook</i>"]]`},
		{"handoff hexagon", `human{{"human <br/> <i>handoff</i>"}}`},
		{"plain edge", "start --> menu_1"},
		{"handle edge", `check -- "true" --> api`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, out, tt.want)
		})
	}
	assert.NotContains(t, out, "classDef")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	sess := domain.NewSession("s1", "atendimento", domain.Contact{}, time.Now())
	for _, id := range []string{"start", "menu-1", "menu-1"} {
		sess.Record(id, domain.KindMenu, time.Now())
	}
	sess.CurrentNodeID = "menu-1"

	out := graph.GenerateMermaid(sample(), graph.OverlayFromSession(sess))
	assert.Contains(t, out, "class start visited;")
	assert.Equal(t, 1, strings.Count(out, "class menu_1 visited;"))
	assert.Contains(t, out, "class menu_1 current;")
	assert.Nil(t, graph.OverlayFromSession(nil))
}
