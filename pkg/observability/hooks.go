package observability

import (
	"context"
	"log/slog"

	"github.com/vinculobrasil/flowbot/pkg/domain"
)

// Combine fans every event out to all hook sets, in order.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		out.OnNodeEnter = chainNode(out.OnNodeEnter, h.OnNodeEnter)
		out.OnNodeLeave = chainNode(out.OnNodeLeave, h.OnNodeLeave)
		out.OnCall = chainCall(out.OnCall, h.OnCall)
		out.OnCallReturn = chainCall(out.OnCallReturn, h.OnCallReturn)
		out.OnTurnEnd = chainTurn(out.OnTurnEnd, h.OnTurnEnd)
	}
	return out
}

func chainNode(a, b func(context.Context, *domain.NodeEvent)) func(context.Context, *domain.NodeEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *domain.NodeEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

func chainCall(a, b func(context.Context, *domain.CallEvent)) func(context.Context, *domain.CallEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *domain.CallEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

func chainTurn(a, b func(context.Context, *domain.TurnEvent)) func(context.Context, *domain.TurnEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *domain.TurnEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

// LoggingHooks logs node transitions at debug level and turn outcomes at
// info (warn when the turn failed).
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter",
				"session_id", e.SessionID,
				"node_id", e.NodeID,
				"kind", e.Kind,
			)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_leave",
				"session_id", e.SessionID,
				"node_id", e.NodeID,
				"handle", e.Handle,
			)
		},
		OnCallReturn: func(ctx context.Context, e *domain.CallEvent) {
			logger.DebugContext(ctx, "collaborator_return",
				"session_id", e.SessionID,
				"node_id", e.NodeID,
				"collaborator", e.Collaborator,
				"duration", e.Duration,
				"is_error", e.IsError,
			)
		},
		OnTurnEnd: func(ctx context.Context, e *domain.TurnEvent) {
			level := slog.LevelInfo
			if e.Error != "" {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "turn_end",
				"session_id", e.SessionID,
				"flow_id", e.FlowID,
				"status", e.Status,
				"steps", e.Steps,
				"handoff", e.Handoff,
				"duration", e.Duration,
				"err", e.Error,
			)
		},
	}
}
