package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/vinculobrasil/flowbot/pkg/domain"
)

// execute runs the handler for node's kind. Handlers never return errors:
// every outcome, including failures, is a StepResult.
func (e *Engine) execute(ctx context.Context, sess *domain.Session, node *domain.Node, input *string) (res domain.StepResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("node handler panicked", "node_id", node.ID, "kind", node.Kind, "panic", r)
			res = domain.Failed(fmt.Sprintf("node %s: internal error", node.ID))
		}
	}()

	if err := e.validateExecution(node); err != nil {
		return domain.Failed(err.Error())
	}

	switch cfg := node.Config.(type) {
	case *domain.StartConfig:
		return domain.StepResult{Success: true}
	case *domain.MessageConfig:
		return e.handleMessage(sess, cfg)
	case *domain.InputConfig:
		return e.handleInput(sess, node, cfg, input)
	case *domain.MenuConfig:
		return e.handleMenu(sess, cfg, input)
	case *domain.ConditionConfig:
		return e.handleCondition(sess, node, cfg)
	case *domain.AIAgentConfig:
		return e.handleAIAgent(ctx, sess, node, cfg, input)
	case *domain.WelcomeAIConfig:
		return e.handleWelcomeAI(ctx, sess, node, cfg, input)
	case *domain.HandoffConfig:
		return e.handleHandoff(sess, cfg)
	case *domain.WebhookConfig:
		return e.handleWebhook(ctx, sess, node, cfg)
	case *domain.DelayConfig:
		return e.handleDelay(ctx, cfg)
	case *domain.TagConfig:
		return e.handleTag(sess, cfg)
	case *domain.VariableConfig:
		return e.handleVariable(sess, node, cfg)
	case *domain.IdentifyContractConfig:
		return e.handleIdentifyContract(ctx, sess, node, cfg, input)
	case *domain.ClientTagConfig:
		return e.handleClientTag(ctx, sess, node, cfg)
	case *domain.LeadCaptureConfig:
		return e.handleLeadCapture(ctx, sess, node, cfg, input)
	case *domain.EndConfig:
		return e.handleEnd(sess, cfg)
	}
	return domain.Failed(fmt.Sprintf("%v: %q", domain.ErrUnknownNodeKind, node.Kind))
}

// call invokes a collaborator under a per-call timeout, emitting hooks and
// logging failures. A zero timeout means the engine default.
func (e *Engine) call(ctx context.Context, sess *domain.Session, node *domain.Node, name string, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		timeout = e.callTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ev := &domain.CallEvent{
		EventBase:    e.eventBase(domain.EventCall, sess),
		NodeID:       node.ID,
		Collaborator: name,
	}
	if e.hooks.OnCall != nil {
		e.hooks.OnCall(ctx, ev)
	}

	start := time.Now()
	err := fn(cctx)

	if e.hooks.OnCallReturn != nil {
		ret := *ev
		ret.EventBase = e.eventBase(domain.EventCallReturn, sess)
		ret.Duration = time.Since(start)
		ret.IsError = err != nil
		e.hooks.OnCallReturn(ctx, &ret)
	}
	if err != nil {
		e.logger.Warn("collaborator call failed",
			"collaborator", name, "node_id", node.ID, "session_id", sess.ID, "err", err)
	}
	return err
}

func unavailable(name string) error {
	return fmt.Errorf("%s: %w", name, domain.ErrCollaboratorUnavailable)
}
