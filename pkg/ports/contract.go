package ports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinculobrasil/flowbot/pkg/domain"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		sess := domain.NewSession(sessionID, "flow", domain.Contact{Phone: "5511999990000"}, time.Now())
		sess.CurrentNodeID = "ask_cpf"
		sess.Status = domain.StatusWaitingInput
		sess.Variables["nome"] = "Ana"
		sess.Variables["count"] = 42
		sess.Pending = &domain.Pending{NodeID: "ask_cpf", Cursor: 1, Answers: map[string]string{"nome": "Ana Silva"}}
		sess.Record("start", domain.KindStart, time.Now())

		err := store.Save(ctx, sessionID, sess)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, sess.CurrentNodeID, loaded.CurrentNodeID)
		assert.Equal(t, domain.StatusWaitingInput, loaded.Status)
		assert.Equal(t, "Ana", loaded.Variables["nome"])
		// JSON persistence turns ints into float64; only presence is part of the contract.
		assert.NotNil(t, loaded.Variables["count"])
		require.NotNil(t, loaded.Pending)
		assert.Equal(t, 1, loaded.Pending.Cursor)
		assert.Equal(t, "Ana Silva", loaded.Pending.Answers["nome"])
		assert.Len(t, loaded.History, 1)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewSession(sessionID, "flow", domain.Contact{}, time.Now()))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewSession(id1, "flow", domain.Contact{}, time.Now()))
		_ = store.Save(ctx, id2, domain.NewSession(id2, "flow", domain.Contact{}, time.Now()))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

// RunFlowLoaderContract verifies that a FlowLoader serves exactly the
// given flows.
func RunFlowLoaderContract(t *testing.T, loader FlowLoader, want map[string]*domain.Graph) {
	t.Helper()
	ctx := context.Background()

	t.Run("Load", func(t *testing.T) {
		for id, expected := range want {
			g, err := loader.Load(ctx, id)
			require.NoError(t, err, "loading %s", id)
			assert.Equal(t, id, g.ID)
			assert.Len(t, g.Nodes, len(expected.Nodes))
			assert.Len(t, g.Edges, len(expected.Edges))
		}
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := loader.Load(ctx, "non-existent-flow")
		assert.True(t, errors.Is(err, domain.ErrFlowNotFound), "got %v", err)
	})

	t.Run("List", func(t *testing.T) {
		ids, err := loader.List(ctx)
		require.NoError(t, err)
		assert.Len(t, ids, len(want))
		for id := range want {
			assert.Contains(t, ids, id)
		}
	})
}
