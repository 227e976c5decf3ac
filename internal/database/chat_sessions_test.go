package database

import (
	"context"
	"testing"
	"time"

	"github.com/omriShneor/calbot/internal/database/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	exists, err := migrations.ColumnExists(ctx, db.DB, "chat_sessions", "events_json")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = migrations.ColumnExists(ctx, db.DB, "chat_sessions", "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	pending, err := migrations.Pending(ctx, db.DB)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Re-running is a no-op.
	require.NoError(t, migrations.Apply(ctx, db.DB))

	var applied int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, 2, applied)
}

func TestChatSessionStorage(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	t.Run("get non-existent session returns nil", func(t *testing.T) {
		s, err := db.GetChatSession(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("save requires id", func(t *testing.T) {
		err := db.SaveChatSession(ctx, &ChatSession{State: "idle"})
		assert.Error(t, err)
	})

	t.Run("save and retrieve session", func(t *testing.T) {
		pending := `{"title":"Lunch"}`
		err := db.SaveChatSession(ctx, &ChatSession{
			ID:           "sess-1",
			State:        "awaiting_confirmation",
			PendingJSON:  &pending,
			MessagesJSON: `[{"id":"m1"}]`,
		})
		require.NoError(t, err)

		s, err := db.GetChatSession(ctx, "sess-1")
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, "awaiting_confirmation", s.State)
		require.NotNil(t, s.PendingJSON)
		assert.JSONEq(t, pending, *s.PendingJSON)
		assert.Equal(t, `[{"id":"m1"}]`, s.MessagesJSON)
		assert.Equal(t, "[]", s.EventsJSON)
	})

	t.Run("save overwrites and clears pending", func(t *testing.T) {
		err := db.SaveChatSession(ctx, &ChatSession{
			ID:           "sess-1",
			State:        "idle",
			MessagesJSON: `[{"id":"m1"},{"id":"m2"}]`,
			EventsJSON:   `[{"id":"evt001"}]`,
		})
		require.NoError(t, err)

		s, err := db.GetChatSession(ctx, "sess-1")
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, "idle", s.State)
		assert.Nil(t, s.PendingJSON)
		assert.Equal(t, `[{"id":"evt001"}]`, s.EventsJSON)

		n, err := db.CountChatSessions(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("invalid state is rejected", func(t *testing.T) {
		err := db.SaveChatSession(ctx, &ChatSession{ID: "sess-bad", State: "sleeping"})
		assert.Error(t, err)
	})

	t.Run("delete session", func(t *testing.T) {
		require.NoError(t, db.DeleteChatSession(ctx, "sess-1"))
		require.NoError(t, db.DeleteChatSession(ctx, "sess-1"))

		s, err := db.GetChatSession(ctx, "sess-1")
		require.NoError(t, err)
		assert.Nil(t, s)
	})
}

func TestPruneChatSessions(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.SaveChatSession(ctx, &ChatSession{ID: "old", State: "idle", UpdatedAt: now.Add(-60 * 24 * time.Hour)}))
	require.NoError(t, db.SaveChatSession(ctx, &ChatSession{ID: "fresh", State: "idle", UpdatedAt: now.Add(-time.Hour)}))

	removed, err := db.PruneChatSessions(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	s, err := db.GetChatSession(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, s)

	s, err = db.GetChatSession(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, s)
}
