package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/graph"
)

// VarLastMessage holds the latest non-empty inbound text.
const VarLastMessage = "last_message"

// TurnError describes why a turn aborted.
type TurnError struct {
	NodeID string
	Step   int
	Err    error
}

func (e *TurnError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("turn aborted at step %d: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("turn aborted at node %q (step %d): %v", e.NodeID, e.Step, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// Turn runs one conversation turn against a flow.
//
// Execution starts at the Start node for a fresh session, or resumes at the
// node the session is suspended at, which is the only node that receives
// input. Non-suspending nodes are chained until a node waits for input, a
// terminal or hand-off is reached, or the step cap is hit.
//
// sess is never modified. The returned TurnResult carries a new session
// holding every successful step. A non-nil error is only returned for
// invalid arguments and for cancellation; in the latter case the result is
// still valid and holds the steps committed before ctx was done.
func (e *Engine) Turn(ctx context.Context, idx *graph.Index, sess *domain.Session, input *string) (*domain.TurnResult, error) {
	if idx == nil {
		return nil, errors.New("turn: nil flow index")
	}
	if sess == nil {
		return nil, errors.New("turn: nil session")
	}

	started := e.now()
	t := &turn{
		engine:      e,
		idx:         idx,
		work:        sess.Clone(),
		prevVersion: sess.FlowVersion,
		log: e.logger.With(
			slog.String("flow_id", idx.ID()),
			slog.String("session_id", sess.ID),
		),
	}
	t.work.FlowID = idx.ID()
	t.work.FlowVersion = idx.Version()

	err := t.run(ctx, input)

	t.work.LastActivityAt = e.now()
	res := &domain.TurnResult{
		Messages: t.messages,
		Status:   t.work.Status,
		Steps:    t.steps,
		Handoff:  t.handoff,
		Session:  t.work,
		Diff:     domain.Diff(sess, t.work),
	}
	if t.failure != nil {
		res.Error = t.failure.Error()
	}
	if res.Messages == nil {
		res.Messages = []string{}
	}

	e.emitTurnEnd(ctx, t, res, e.now().Sub(started))
	return res, err
}

type turn struct {
	engine      *Engine
	idx         *graph.Index
	work        *domain.Session
	prevVersion string
	log         *slog.Logger
	messages    []string
	steps       int
	handoff     *domain.Handoff
	failure     error
}

func (t *turn) run(ctx context.Context, input *string) error {
	e := t.engine
	if input != nil && *input == "" {
		input = nil
	}

	if t.work.Finished() {
		t.log.Debug("turn on finished session ignored", "status", t.work.Status)
		return nil
	}

	var node *domain.Node
	var delivered *string
	if t.work.CurrentNodeID == "" {
		node = t.idx.Start()
	} else {
		n, ok := t.idx.Node(t.work.CurrentNodeID)
		switch {
		case ok:
			node = n
			if t.work.Waiting() {
				delivered = input
			}
		case t.prevVersion != t.idx.Version():
			t.log.Warn("resume node removed by flow update, restarting session",
				"node_id", t.work.CurrentNodeID,
				"from_version", t.prevVersion,
				"to_version", t.idx.Version(),
			)
			t.restart()
			node = t.idx.Start()
		default:
			// Same version: abort this turn only. The next one starts over.
			missing := t.work.CurrentNodeID
			t.restart()
			t.fail(missing, fmt.Errorf("resume node %q: %w", missing, domain.ErrNodeNotFound))
			return nil
		}
	}
	if input != nil {
		t.work.Apply(map[string]any{VarLastMessage: *input})
	}

	for {
		if err := ctx.Err(); err != nil {
			return t.cancel(node, err)
		}
		if t.steps >= e.maxSteps {
			t.work.CurrentNodeID = node.ID
			t.work.Pending = nil
			t.fail(node.ID, fmt.Errorf("%w: %d steps without suspending", domain.ErrStepLimit, e.maxSteps))
			return nil
		}
		t.steps++

		reprompt := delivered == nil && t.work.Waiting() && t.work.CurrentNodeID == node.ID
		e.emitNodeEnter(ctx, t.work, node)
		res := e.execute(ctx, t.work, node, delivered)
		delivered = nil
		e.emitNodeLeave(ctx, t.work, node, res)

		if err := ctx.Err(); err != nil {
			return t.cancel(node, err)
		}

		if !res.Success && !t.recoverable(node, res) {
			t.messages = append(t.messages, res.Messages...)
			t.work.CurrentNodeID = node.ID
			t.work.Pending = nil
			t.fail(node.ID, errors.New(res.Error))
			return nil
		}

		// Step succeeded: commit.
		t.messages = append(t.messages, res.Messages...)
		t.work.Apply(res.Variables)
		if !reprompt {
			t.work.Record(node.ID, node.Kind, e.now())
		}
		t.work.CurrentNodeID = node.ID

		if res.Handoff != nil {
			next, ok := t.explicitEdge(node, res.Handle)
			if !ok {
				t.yield(ctx, node, res.Handoff)
				return nil
			}
			t.enter(next)
			node = next
			continue
		}

		if res.WaitForInput {
			p := res.Pending
			if p == nil {
				p = &domain.Pending{}
			}
			p.NodeID = node.ID
			t.work.Pending = p
			t.work.Status = domain.StatusWaitingInput
			return nil
		}

		if res.Terminal {
			t.work.Pending = nil
			t.work.Status = domain.StatusEnded
			return nil
		}

		next, err := t.successor(node, res)
		if err != nil {
			t.fail(node.ID, err)
			return nil
		}
		if next == nil {
			t.work.Pending = nil
			t.work.Status = domain.StatusEnded
			return nil
		}
		t.enter(next)
		node = next
	}
}

// recoverable reports whether a failed step can be routed through an
// explicit edge for its handle (e.g. a webhook "error" edge).
func (t *turn) recoverable(node *domain.Node, res domain.StepResult) bool {
	if res.Handle == "" {
		return false
	}
	if _, ok := t.explicitEdge(node, res.Handle); !ok {
		return false
	}
	t.log.Warn("node failed, taking error route",
		"node_id", node.ID, "handle", res.Handle, "err", res.Error)
	return true
}

func (t *turn) explicitEdge(node *domain.Node, handle string) (*domain.Node, bool) {
	if handle == "" {
		return nil, false
	}
	for _, edge := range t.idx.Outgoing(node.ID) {
		if edge.Handle == handle {
			return t.idx.Node(edge.Target)
		}
	}
	return nil, false
}

func (t *turn) successor(node *domain.Node, res domain.StepResult) (*domain.Node, error) {
	if res.NextNodeID != "" {
		next, ok := t.idx.Node(res.NextNodeID)
		if !ok {
			return nil, fmt.Errorf("next node %q: %w", res.NextNodeID, domain.ErrNodeNotFound)
		}
		return next, nil
	}
	next, route, err := t.idx.Next(node.ID, res.Handle)
	if err != nil {
		return nil, err
	}
	if route.Fallback {
		t.log.Warn("no edge for handle, taking default edge",
			"node_id", node.ID, "handle", res.Handle, "target", route.Edge.Target)
	}
	return next, nil
}

// restart detaches the session from its position in the flow. Variables
// and history are kept.
func (t *turn) restart() {
	t.work.CurrentNodeID = ""
	t.work.Pending = nil
	t.work.Status = domain.StatusActive
}

func (t *turn) enter(next *domain.Node) {
	t.work.CurrentNodeID = next.ID
	t.work.Pending = nil
	t.work.Status = domain.StatusActive
}

func (t *turn) yield(ctx context.Context, node *domain.Node, h *domain.Handoff) {
	e := t.engine
	t.handoff = h
	t.work.Pending = nil
	t.work.Status = domain.StatusHandedOff

	if e.collab.Ticketing == nil {
		t.log.Warn("handoff without ticketing collaborator", "node_id", node.ID, "target", h.TargetID)
		return
	}
	err := e.call(ctx, t.work, node, "ticketing", 0, func(ctx context.Context) error {
		return e.collab.Ticketing.Handoff(ctx, t.work.ID, t.work.Contact, *h)
	})
	if err != nil {
		t.log.Error("handoff notification failed", "node_id", node.ID, "err", err)
	}
}

func (t *turn) fail(nodeID string, err error) {
	t.failure = &TurnError{NodeID: nodeID, Step: t.steps, Err: err}
	t.work.Status = domain.StatusFailed
	t.messages = append(t.messages, t.engine.errorMessage)
	t.log.Error("turn aborted", "node_id", nodeID, "step", t.steps, "err", err)
}

func (t *turn) cancel(node *domain.Node, cause error) error {
	err := &TurnError{NodeID: node.ID, Step: t.steps, Err: fmt.Errorf("%w: %w", domain.ErrTurnCanceled, cause)}
	t.failure = err
	t.log.Warn("turn canceled", "node_id", node.ID, "step", t.steps, "err", cause)
	return err
}

func (e *Engine) emitNodeEnter(ctx context.Context, sess *domain.Session, node *domain.Node) {
	if e.hooks.OnNodeEnter == nil {
		return
	}
	e.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
		EventBase: e.eventBase(domain.EventNodeEnter, sess),
		NodeID:    node.ID,
		Kind:      node.Kind,
	})
}

func (e *Engine) emitNodeLeave(ctx context.Context, sess *domain.Session, node *domain.Node, res domain.StepResult) {
	if e.hooks.OnNodeLeave == nil {
		return
	}
	e.hooks.OnNodeLeave(ctx, &domain.NodeEvent{
		EventBase: e.eventBase(domain.EventNodeLeave, sess),
		NodeID:    node.ID,
		Kind:      node.Kind,
		Handle:    res.Handle,
		Error:     res.Error,
	})
}

func (e *Engine) emitTurnEnd(ctx context.Context, t *turn, res *domain.TurnResult, took time.Duration) {
	if e.hooks.OnTurnEnd == nil {
		return
	}
	e.hooks.OnTurnEnd(ctx, &domain.TurnEvent{
		EventBase: e.eventBase(domain.EventTurnEnd, t.work),
		Status:    res.Status,
		Steps:     res.Steps,
		Handoff:   res.Handoff != nil,
		Error:     res.Error,
		Duration:  took,
	})
}

func (e *Engine) eventBase(typ domain.EventType, sess *domain.Session) domain.EventBase {
	return domain.EventBase{
		Timestamp: e.now(),
		Type:      typ,
		SessionID: sess.ID,
		FlowID:    sess.FlowID,
	}
}
