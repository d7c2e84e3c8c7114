package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinculobrasil/flowbot/internal/runtime"
	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/graph"
	"github.com/vinculobrasil/flowbot/pkg/ports"
)

func ageFlow(t *testing.T) *graph.Index {
	return flow(t,
		[]domain.Node{
			node("start", domain.KindStart, nil),
			node("cond", domain.KindCondition, map[string]any{
				"conditions": []any{map[string]any{"variable": "age", "operator": "greater_than", "value": "18"}},
			}),
			node("adult", domain.KindMessage, map[string]any{"text": "adulto"}),
			node("minor", domain.KindMessage, map[string]any{"text": "menor"}),
		},
		[]domain.Edge{
			edge("start", "cond", ""),
			edge("cond", "adult", "true"),
			edge("cond", "minor", "false"),
		},
	)
}

func paymentFlow(t *testing.T) *graph.Index {
	return flow(t,
		[]domain.Node{
			node("start", domain.KindStart, nil),
			node("menu", domain.KindMenu, map[string]any{
				"text": "Como deseja pagar?",
				"options": []any{
					map[string]any{"id": "a", "label": "Pix"},
					map[string]any{"id": "b", "label": "Boleto"},
				},
			}),
			node("pix", domain.KindMessage, map[string]any{"text": "Chave pix enviada"}),
			node("boleto", domain.KindMessage, map[string]any{"text": "Boleto enviado"}),
		},
		[]domain.Edge{
			edge("start", "menu", ""),
			edge("menu", "pix", "a"),
			edge("menu", "boleto", "b"),
		},
	)
}

func TestTurn_ConditionRouting(t *testing.T) {
	tests := []struct {
		age  string
		want string
	}{
		{"17", "menor"},
		{"25", "adulto"},
		{"dezoito", "menor"},
	}
	idx := ageFlow(t)
	e := newEngine(ports.Collaborators{})
	for _, tt := range tests {
		t.Run(tt.age, func(t *testing.T) {
			res := send(t, e, idx, newSession(map[string]any{"age": tt.age}), "")
			assert.Equal(t, []string{tt.want}, res.Messages)
			assert.Equal(t, domain.StatusEnded, res.Status)
			assert.Equal(t, 3, res.Steps)
		})
	}
}

func TestTurn_MenuMatching(t *testing.T) {
	idx := paymentFlow(t)
	e := newEngine(ports.Collaborators{})

	first := send(t, e, idx, newSession(nil), "")
	require.Equal(t, domain.StatusWaitingInput, first.Status)
	assert.Equal(t, []string{"Como deseja pagar?\n1. Pix\n2. Boleto"}, first.Messages)
	assert.Equal(t, "menu", first.Session.CurrentNodeID)

	tests := []struct {
		input string
		want  []string
		id    string
	}{
		{"2", []string{"Boleto enviado"}, "b"},
		{"boleto", []string{"Boleto enviado"}, "b"},
		{"PIX", []string{"Chave pix enviada"}, "a"},
		{"quero pagar no pix", []string{"Chave pix enviada"}, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res := send(t, e, idx, first.Session, tt.input)
			assert.Equal(t, tt.want, res.Messages)
			assert.Equal(t, domain.StatusEnded, res.Status)
			assert.Equal(t, tt.id, res.Session.Variables["menu_choice_id"])
		})
	}

	t.Run("no match re-prompts", func(t *testing.T) {
		res := send(t, e, idx, first.Session, "cash")
		assert.Equal(t, domain.StatusWaitingInput, res.Status)
		assert.Equal(t, "menu", res.Session.CurrentNodeID)
		require.Len(t, res.Messages, 2)
		assert.Contains(t, res.Messages[1], "2. Boleto")
		assert.NotContains(t, res.Session.Variables, "menu_choice")
	})

	t.Run("out of range index re-prompts", func(t *testing.T) {
		res := send(t, e, idx, first.Session, "7")
		assert.Equal(t, domain.StatusWaitingInput, res.Status)
	})
}

func TestTurn_RepromptIsIdempotent(t *testing.T) {
	idx := paymentFlow(t)
	e := newEngine(ports.Collaborators{})

	first := send(t, e, idx, newSession(nil), "")
	second := send(t, e, idx, first.Session, "")
	third := send(t, e, idx, second.Session, "")

	assert.Equal(t, first.Messages, second.Messages)
	assert.Equal(t, second.Messages, third.Messages)
	assert.True(t, second.Diff.IsEmpty(), "re-prompt must not change the session: %+v", second.Diff)
	assert.Equal(t, first.Session.Variables, third.Session.Variables)
	assert.Len(t, third.Session.History, len(first.Session.History))
}

func TestTurn_Deterministic(t *testing.T) {
	idx := flow(t,
		[]domain.Node{
			node("start", domain.KindStart, nil),
			node("ask", domain.KindInput, map[string]any{"question": "Seu nome?", "variable": "nome", "validation": "name"}),
			node("tag", domain.KindTag, map[string]any{"tag": "lead"}),
			node("set", domain.KindVariable, map[string]any{"name": "greeting", "value": "Olá {nome}"}),
			node("menu", domain.KindMenu, map[string]any{
				"text":    "{greeting}, escolha:",
				"options": []any{map[string]any{"id": "a", "label": "Pix"}, map[string]any{"id": "b", "label": "Boleto"}},
			}),
			node("end", domain.KindEnd, map[string]any{"message": "Até logo {nome}", "resolved": true}),
		},
		[]domain.Edge{
			edge("start", "ask", ""),
			edge("ask", "tag", ""),
			edge("tag", "set", ""),
			edge("set", "menu", ""),
			edge("menu", "end", ""),
		},
	)
	script := []string{"", "Ana", "Ana Silva", "boleto"}

	play := func() ([]string, map[string]any) {
		e := newEngine(ports.Collaborators{})
		sess := newSession(nil)
		var out []string
		for _, in := range script {
			res := send(t, e, idx, sess, in)
			out = append(out, res.Messages...)
			sess = res.Session
		}
		assert.Equal(t, domain.StatusEnded, sess.Status)
		return out, sess.Variables
	}

	msgs1, vars1 := play()
	msgs2, vars2 := play()
	if diff := cmp.Diff(msgs1, msgs2); diff != "" {
		t.Errorf("messages differ (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(vars1, vars2); diff != "" {
		t.Errorf("variables differ (-first +second):\n%s", diff)
	}
	assert.Contains(t, msgs1, "Olá Ana Silva, escolha:\n1. Pix\n2. Boleto")
	assert.Equal(t, "Até logo Ana Silva", msgs1[len(msgs1)-1])
	assert.Equal(t, []string{"lead"}, vars1["tags"])
	assert.Equal(t, true, vars1["resolved"])
}

func TestTurn_InputIsOnlyDeliveredToWaitingNode(t *testing.T) {
	idx := flow(t,
		[]domain.Node{
			node("start", domain.KindStart, nil),
			node("ask", domain.KindInput, map[string]any{"question": "Seu e-mail?", "variable": "email", "validation": "email"}),
		},
		[]domain.Edge{edge("start", "ask", "")},
	)
	e := newEngine(ports.Collaborators{})

	res := send(t, e, idx, newSession(nil), "oi")
	assert.Equal(t, domain.StatusWaitingInput, res.Status)
	assert.Equal(t, []string{"Seu e-mail?"}, res.Messages)
	assert.NotContains(t, res.Session.Variables, "email")
	assert.Equal(t, "oi", res.Session.Variables[runtime.VarLastMessage])

	bad := send(t, e, idx, res.Session, "not-an-email")
	assert.Equal(t, domain.StatusWaitingInput, bad.Status)
	assert.NotContains(t, bad.Session.Variables, "email")

	ok := send(t, e, idx, bad.Session, "ana@example.com")
	assert.Equal(t, domain.StatusEnded, ok.Status)
	assert.Equal(t, "ana@example.com", ok.Session.Variables["email"])
}

func TestTurn_RunawayGuard(t *testing.T) {
	idx := flow(t,
		[]domain.Node{
			node("start", domain.KindStart, nil),
			node("a", domain.KindVariable, map[string]any{"name": "x", "value": 1}),
			node("b", domain.KindVariable, map[string]any{"name": "y", "value": 2}),
		},
		[]domain.Edge{
			edge("start", "a", ""),
			edge("a", "b", ""),
			edge("b", "a", ""),
		},
	)

	t.Run("default cap", func(t *testing.T) {
		res := send(t, newEngine(ports.Collaborators{}), idx, newSession(nil), "")
		assert.Equal(t, domain.StatusFailed, res.Status)
		assert.Equal(t, runtime.DefaultMaxSteps, res.Steps)
		assert.Contains(t, res.Error, domain.ErrStepLimit.Error())
		assert.Equal(t, []string{runtime.DefaultErrorMessage}, res.Messages)
	})

	t.Run("custom cap", func(t *testing.T) {
		e := newEngine(ports.Collaborators{}, runtime.WithMaxSteps(7), runtime.WithErrorMessage("falhou"))
		res := send(t, e, idx, newSession(nil), "")
		assert.Equal(t, 7, res.Steps)
		assert.Equal(t, []string{"falhou"}, res.Messages)
	})
}

func TestTurn_UnknownKindFailsTurn(t *testing.T) {
	idx := flow(t,
		[]domain.Node{
			node("start", domain.KindStart, nil),
			node("hello", domain.KindMessage, map[string]any{"text": "oi"}),
			node("weird", domain.Kind("carousel"), map[string]any{"cards": 3}),
		},
		[]domain.Edge{edge("start", "hello", ""), edge("hello", "weird", "")},
	)
	res := send(t, newEngine(ports.Collaborators{}), idx, newSession(nil), "")

	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, "weird", res.Session.CurrentNodeID)
	assert.Contains(t, res.Error, "carousel")
	assert.Equal(t, []string{"oi", runtime.DefaultErrorMessage}, res.Messages)
	assert.Equal(t, []string{"start", "hello"}, res.Diff.Visited)
}

func TestTurn_InvalidNodeConfigFailsTurn(t *testing.T) {
	idx := flow(t,
		[]domain.Node{
			node("start", domain.KindStart, nil),
			node("menu", domain.KindMenu, map[string]any{"text": "vazio"}),
		},
		[]domain.Edge{edge("start", "menu", "")},
	)
	res := send(t, newEngine(ports.Collaborators{}), idx, newSession(nil), "")
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "no options")
}

func TestTurn_MissingResumeNode(t *testing.T) {
	e := newEngine(ports.Collaborators{})
	idx := ageFlow(t)

	sess := newSession(nil)
	sess.FlowVersion = "1"
	sess.CurrentNodeID = "gone"
	sess.Status = domain.StatusWaitingInput

	res := send(t, e, idx, sess, "oi")
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Contains(t, res.Error, domain.ErrNodeNotFound.Error())
	assert.Empty(t, res.Session.CurrentNodeID)
	assert.Nil(t, res.Session.Pending)

	// The failure is confined to that turn.
	res = send(t, e, idx, res.Session, "")
	assert.Empty(t, res.Error)
	assert.Equal(t, []string{"menor"}, res.Messages)
	assert.Equal(t, domain.StatusEnded, res.Status)
}

func TestTurn_ResumeNodeRemovedByNewVersion(t *testing.T) {
	sess := newSession(map[string]any{"age": "30"})
	sess.FlowVersion = "0"
	sess.CurrentNodeID = "gone"
	sess.Status = domain.StatusWaitingInput
	sess.Pending = &domain.Pending{NodeID: "gone", Cursor: 2}

	res := send(t, newEngine(ports.Collaborators{}), ageFlow(t), sess, "oi")
	assert.Empty(t, res.Error)
	assert.Equal(t, []string{"adulto"}, res.Messages)
	assert.Equal(t, domain.StatusEnded, res.Status)
	assert.Equal(t, "1", res.Session.FlowVersion)
	assert.Equal(t, "oi", res.Session.Variables[runtime.VarLastMessage])
}

func TestTurn_StrictRouting(t *testing.T) {
	nodes := []domain.Node{
		node("start", domain.KindStart, nil),
		node("menu", domain.KindMenu, map[string]any{
			"options": []any{map[string]any{"id": "a", "label": "Pix"}, map[string]any{"id": "c", "label": "Cartão"}},
		}),
		node("pix", domain.KindMessage, map[string]any{"text": "pix"}),
	}
	edges := []domain.Edge{edge("start", "menu", ""), edge("menu", "pix", "a")}
	e := newEngine(ports.Collaborators{})

	t.Run("permissive falls back to first edge", func(t *testing.T) {
		idx := flow(t, nodes, edges)
		first := send(t, e, idx, newSession(nil), "")
		res := send(t, e, idx, first.Session, "2")
		assert.Equal(t, []string{"pix"}, res.Messages)
		assert.Equal(t, domain.StatusEnded, res.Status)
	})

	t.Run("strict fails the turn", func(t *testing.T) {
		idx := flow(t, nodes, edges, graph.WithStrictHandles(true))
		first := send(t, e, idx, newSession(nil), "")
		res := send(t, e, idx, first.Session, "2")
		assert.Equal(t, domain.StatusFailed, res.Status)
		assert.Contains(t, res.Error, domain.ErrHandleNotFound.Error())
		assert.Equal(t, "menu", res.Session.CurrentNodeID)
	})
}

func TestTurn_Cancellation(t *testing.T) {
	idx := flow(t,
		[]domain.Node{
			node("start", domain.KindStart, nil),
			node("hi", domain.KindMessage, map[string]any{"text": "oi"}),
			node("wait", domain.KindDelay, map[string]any{"seconds": 2}),
			node("bye", domain.KindMessage, map[string]any{"text": "tchau"}),
		},
		[]domain.Edge{edge("start", "hi", ""), edge("hi", "wait", ""), edge("wait", "bye", "")},
	)

	t.Run("already canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		sess := newSession(nil)
		res, err := newEngine(ports.Collaborators{}).Turn(ctx, idx, sess, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrTurnCanceled))
		assert.True(t, errors.Is(err, context.Canceled))
		require.NotNil(t, res)
		assert.Equal(t, 0, res.Steps)
		assert.Empty(t, res.Messages)
	})

	t.Run("canceled during delay keeps committed steps", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		e := newEngine(ports.Collaborators{}, runtime.WithSleeper(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}))
		sess := newSession(nil)
		res, err := e.Turn(ctx, idx, sess, nil)

		var te *runtime.TurnError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "wait", te.NodeID)
		assert.Equal(t, []string{"oi"}, res.Messages)
		assert.Equal(t, "wait", res.Session.CurrentNodeID)
		assert.Equal(t, domain.StatusActive, res.Session.Status)
		assert.Empty(t, sess.CurrentNodeID, "caller's session is untouched")
	})
}

func TestTurn_HandoffYields(t *testing.T) {
	idx := flow(t,
		[]domain.Node{
			node("start", domain.KindStart, nil),
			node("human", domain.KindHandoff, map[string]any{"targetId": "financeiro", "priority": "high", "reason": "pedido de {nome}"}),
			node("never", domain.KindMessage, map[string]any{"text": "nunca"}),
		},
		[]domain.Edge{edge("start", "human", "")},
	)
	tickets := &fakeTicketing{}
	e := newEngine(ports.Collaborators{Ticketing: tickets})

	res := send(t, e, idx, newSession(map[string]any{"nome": "Ana"}), "")
	assert.Equal(t, domain.StatusHandedOff, res.Status)
	require.NotNil(t, res.Handoff)
	assert.Equal(t, "financeiro", res.Handoff.TargetID)
	assert.Equal(t, "pedido de Ana", res.Handoff.Reason)
	require.Len(t, tickets.handoffs, 1)
	assert.Equal(t, "high", tickets.handoffs[0].Priority)
	assert.Equal(t, "financeiro", res.Session.Variables["handoff_target"])

	again := send(t, e, idx, res.Session, "alô?")
	assert.Equal(t, 0, again.Steps)
	assert.Empty(t, again.Messages)
	assert.Equal(t, domain.StatusHandedOff, again.Status)
	assert.Len(t, tickets.handoffs, 1)
}

func TestTurn_EndedSessionIsNoOp(t *testing.T) {
	idx := ageFlow(t)
	e := newEngine(ports.Collaborators{})
	res := send(t, e, idx, newSession(map[string]any{"age": 30}), "")
	require.Equal(t, domain.StatusEnded, res.Status)

	again := send(t, e, idx, res.Session, "oi")
	assert.Equal(t, 0, again.Steps)
	assert.Empty(t, again.Messages)
}

func TestTurn_LifecycleHooks(t *testing.T) {
	var entered, left []string
	var turns []*domain.TurnEvent
	hooks := domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, ev *domain.NodeEvent) { entered = append(entered, ev.NodeID) },
		OnNodeLeave: func(_ context.Context, ev *domain.NodeEvent) { left = append(left, ev.NodeID+":"+ev.Handle) },
		OnTurnEnd:   func(_ context.Context, ev *domain.TurnEvent) { turns = append(turns, ev) },
	}
	e := newEngine(ports.Collaborators{}, runtime.WithLifecycleHooks(hooks))
	send(t, e, ageFlow(t), newSession(map[string]any{"age": "40"}), "")

	assert.Equal(t, []string{"start", "cond", "adult"}, entered)
	assert.Equal(t, []string{"start:", "cond:true", "adult:"}, left)
	require.Len(t, turns, 1)
	assert.Equal(t, domain.StatusEnded, turns[0].Status)
	assert.Equal(t, 3, turns[0].Steps)
	assert.Equal(t, "sess-1", turns[0].SessionID)
}

func TestTurn_NilArguments(t *testing.T) {
	e := newEngine(ports.Collaborators{})
	_, err := e.Turn(context.Background(), nil, newSession(nil), nil)
	assert.Error(t, err)
	_, err = e.Turn(context.Background(), ageFlow(t), nil, nil)
	assert.Error(t, err)
}
