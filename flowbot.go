package flowbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vinculobrasil/flowbot/internal/logging"
	"github.com/vinculobrasil/flowbot/internal/runtime"
	"github.com/vinculobrasil/flowbot/pkg/adapters/file"
	"github.com/vinculobrasil/flowbot/pkg/adapters/memory"
	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/graph"
	"github.com/vinculobrasil/flowbot/pkg/ports"
	"github.com/vinculobrasil/flowbot/pkg/session"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

// ErrNoFlow is returned by Handle when neither the message nor the engine
// names a flow.
var ErrNoFlow = errors.New("no flow selected")

var _ ports.Conversation = (*Engine)(nil)

// Engine is the high-level entry point of the library. It resolves flows,
// keeps one built index per flow, and runs turns under the session lock.
type Engine struct {
	runtime  *runtime.Engine
	loader   ports.FlowLoader
	store    ports.StateStore
	locker   ports.DistributedLocker
	lockTTL  time.Duration
	sessions *session.Manager
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	hooks        domain.LifecycleHooks
	collab       ports.Collaborators
	maxSteps     int
	callTimeout  time.Duration
	errorMessage string
	strict       bool
	defaultFlow  string

	mu      sync.RWMutex
	indexes map[string]*graph.Index
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLoader injects a custom FlowLoader, bypassing the flow directory.
func WithLoader(l ports.FlowLoader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithStore sets where sessions are persisted. Defaults to memory.
func WithStore(s ports.StateStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLocker serializes turns of a session across processes.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithLockTTL sets how long the distributed session lock is held. A turn
// still running shortly before it elapses is canceled.
func WithLockTTL(d time.Duration) Option {
	return func(e *Engine) {
		e.lockTTL = d
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithCollaborators injects the external services used by nodes.
func WithCollaborators(c ports.Collaborators) Option {
	return func(e *Engine) {
		e.collab = c
	}
}

// WithMaxSteps overrides the per-turn step cap.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.maxSteps = n
	}
}

// WithCallTimeout bounds each collaborator call.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.callTimeout = d
	}
}

// WithStrictRouting makes an unmatched edge handle fail the turn instead of
// falling back to the node's first edge.
func WithStrictRouting(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

// WithErrorMessage overrides the apology sent when a turn aborts.
func WithErrorMessage(msg string) Option {
	return func(e *Engine) {
		e.errorMessage = msg
	}
}

// WithDefaultFlow names the flow used when an inbound message has none.
func WithDefaultFlow(flowID string) Option {
	return func(e *Engine) {
		e.defaultFlow = flowID
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator replaces the session ID generator used for anonymous
// messages.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

// New initializes an Engine that reads flows from flowDir.
// When WithLoader is given, flowDir may be empty.
func New(flowDir string, opts ...Option) (*Engine, error) {
	e := &Engine{indexes: make(map[string]*graph.Index)}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	if e.loader == nil {
		if flowDir == "" {
			return nil, fmt.Errorf("flowDir is required when no custom loader is provided")
		}
		l, err := file.NewLoader(flowDir, file.WithLogger(e.logger))
		if err != nil {
			return nil, err
		}
		e.loader = l
	}
	if e.store == nil {
		e.store = memory.NewStore()
	}

	e.sessions = session.NewManager(e.store,
		session.WithLocker(e.locker),
		session.WithLockTTL(e.lockTTL),
		session.WithLogger(e.logger),
		session.WithClock(e.now),
	)
	e.runtime = runtime.NewEngine(
		runtime.WithCollaborators(e.collab),
		runtime.WithLogger(e.logger),
		runtime.WithLifecycleHooks(e.hooks),
		runtime.WithMaxSteps(e.maxSteps),
		runtime.WithCallTimeout(e.callTimeout),
		runtime.WithErrorMessage(e.errorMessage),
		runtime.WithClock(e.now),
	)
	return e, nil
}

// Index returns the built index of a flow, loading it on first use.
func (e *Engine) Index(ctx context.Context, flowID string) (*graph.Index, error) {
	e.mu.RLock()
	idx, ok := e.indexes[flowID]
	e.mu.RUnlock()
	if ok {
		return idx, nil
	}

	g, err := e.loader.Load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	idx, err = graph.Build(g, graph.WithStrictHandles(e.strict))
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.indexes[flowID] = idx
	e.mu.Unlock()
	return idx, nil
}

// Invalidate drops cached indexes so the next turn reloads them.
// With no arguments every flow is dropped.
func (e *Engine) Invalidate(flowIDs ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(flowIDs) == 0 {
		clear(e.indexes)
		return
	}
	for _, id := range flowIDs {
		delete(e.indexes, id)
	}
}

// Watch invalidates cached flows whenever the loader reports a change and
// forwards the signal. Returns error if the loader does not support watching.
func (e *Engine) Watch(ctx context.Context) (<-chan struct{}, error) {
	w, ok := e.loader.(ports.Watchable)
	if !ok {
		return nil, fmt.Errorf("current loader does not support watching")
	}
	changes, err := w.Watch(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for range changes {
			e.Invalidate()
			e.logger.Info("flows changed, cache invalidated")
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out, nil
}

// Handle runs one turn for an inbound message: it loads or starts the
// session, runs the flow and persists the outcome atomically. A session that
// already ended or was handed off, or that belongs to another flow, is
// replaced by a fresh one.
//
// On cancellation both the partial result and the error are returned.
func (e *Engine) Handle(ctx context.Context, msg domain.Inbound) (*domain.TurnResult, error) {
	flowID := msg.FlowID
	if flowID == "" {
		flowID = e.defaultFlow
	}
	if flowID == "" {
		return nil, ErrNoFlow
	}
	idx, err := e.Index(ctx, flowID)
	if err != nil {
		return nil, err
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = e.newID()
	}
	text := msg.Text

	var result *domain.TurnResult
	err = e.sessions.Update(ctx, sessionID, flowID, msg.Contact, func(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
		if sess.Finished() || sess.FlowID != flowID {
			e.logger.Debug("starting new session",
				"session_id", sessionID,
				"flow_id", flowID,
				"previous_status", sess.Status,
			)
			sess = domain.NewSession(sessionID, flowID, sess.Contact, e.now())
		}
		sess.Contact = mergeContact(sess.Contact, msg.Contact)

		res, err := e.runtime.Turn(ctx, idx, sess, &text)
		if res == nil {
			return nil, err
		}
		result = res
		return res.Session, err
	})
	return result, err
}

// Turn runs one turn on a caller-owned session without persisting it.
func (e *Engine) Turn(ctx context.Context, flowID string, sess *domain.Session, input *string) (*domain.TurnResult, error) {
	idx, err := e.Index(ctx, flowID)
	if err != nil {
		return nil, err
	}
	return e.runtime.Turn(ctx, idx, sess, input)
}

// Session returns the stored session.
func (e *Engine) Session(ctx context.Context, sessionID string) (*domain.Session, error) {
	return e.sessions.Load(ctx, sessionID)
}

// EndSession discards the stored session.
func (e *Engine) EndSession(ctx context.Context, sessionID string) error {
	return e.sessions.Delete(ctx, sessionID)
}

// Sessions lists stored session IDs.
func (e *Engine) Sessions(ctx context.Context) ([]string, error) {
	return e.sessions.List(ctx)
}

// Flows lists the IDs of available flows.
func (e *Engine) Flows(ctx context.Context) ([]string, error) {
	return e.loader.List(ctx)
}

// Flow returns a flow definition.
func (e *Engine) Flow(ctx context.Context, flowID string) (*domain.Graph, error) {
	idx, err := e.Index(ctx, flowID)
	if err != nil {
		return nil, err
	}
	return idx.Graph(), nil
}

// Loader returns the underlying FlowLoader.
func (e *Engine) Loader() ports.FlowLoader {
	return e.loader
}

// Store returns the underlying StateStore.
func (e *Engine) Store() ports.StateStore {
	return e.store
}

func mergeContact(stored, incoming domain.Contact) domain.Contact {
	if incoming.Phone != "" {
		stored.Phone = incoming.Phone
	}
	if incoming.Name != "" {
		stored.Name = incoming.Name
	}
	if stored.ID == "" {
		stored.ID = incoming.ID
	}
	return stored
}
