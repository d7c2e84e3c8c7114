package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vinculobrasil/flowbot/internal/logging"
	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed session lock is held. It
// exceeds the default collaborator call timeout.
const DefaultLockTTL = 60 * time.Second

// lockMargin is the share of the lock TTL reserved for persisting the
// session after the locked work is cut off.
const lockMargin = 10

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access so that turns of one session never
// interleave. It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.StateStore

	mu    sync.Mutex            // guards locks
	locks map[string]*lockEntry // active locks by session ID

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides the distributed lock TTL. Work done under the lock
// is canceled shortly before the TTL elapses.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces time.Now for new sessions.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a new Session Manager with the given persistence store.
func NewManager(store ports.StateStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// Load retrieves an existing session from the store.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	var sess *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		sess, err = m.store.Load(ctx, sessionID)
		return err
	})
	return sess, err
}

// LoadOrStart loads a session or creates (and persists) a fresh one bound
// to flowID. The boolean reports whether the session was created.
func (m *Manager) LoadOrStart(ctx context.Context, sessionID, flowID string, contact domain.Contact) (*domain.Session, bool, error) {
	var (
		sess    *domain.Session
		created bool
	)
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		sess, created, err = m.loadOrNew(ctx, sessionID, flowID, contact)
		if err != nil || !created {
			return err
		}
		if err := m.store.Save(ctx, sessionID, sess); err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}
		return nil
	})
	return sess, created, err
}

// Update runs fn on the current session (a fresh one when missing) and
// persists what fn returns, all under the session's lock.
func (m *Manager) Update(ctx context.Context, sessionID, flowID string, contact domain.Contact, fn func(context.Context, *domain.Session) (*domain.Session, error)) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		sess, _, err := m.loadOrNew(ctx, sessionID, flowID, contact)
		if err != nil {
			return err
		}
		next, err := fn(ctx, sess)
		if next == nil {
			return err
		}
		// Persist committed progress even when fn reports an error.
		if saveErr := m.store.Save(context.WithoutCancel(ctx), sessionID, next); saveErr != nil {
			return errors.Join(err, fmt.Errorf("failed to save session: %w", saveErr))
		}
		return err
	})
}

func (m *Manager) loadOrNew(ctx context.Context, sessionID, flowID string, contact domain.Contact) (*domain.Session, bool, error) {
	sess, err := m.store.Load(ctx, sessionID)
	if err == nil {
		return sess, false, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, false, fmt.Errorf("failed to check session existence: %w", err)
	}
	if contact.ID == "" {
		contact.ID = sessionID
	}
	return domain.NewSession(sessionID, flowID, contact, m.now()), true, nil
}

// Save persists the session.
func (m *Manager) Save(ctx context.Context, sessionID string, sess *domain.Session) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Save(ctx, sessionID, sess)
	})
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying state store.
func (m *Manager) Store() ports.StateStore {
	return m.store
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()

		// The key is never renewed, so the work must finish before it expires.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.workBudget())
		defer cancel()
	}

	return fn(ctx)
}

// workBudget is how long fn may run under a distributed lock.
func (m *Manager) workBudget() time.Duration {
	return m.lockTTL - m.lockTTL/lockMargin
}
