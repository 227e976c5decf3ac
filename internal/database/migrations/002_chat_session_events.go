package migrations

import (
	"context"
	"database/sql"
)

func init() {
	Register(Migration{Version: 2, Name: "chat_session_cached_events", Up: chatSessionCachedEvents})
}

// chatSessionCachedEvents keeps the last fetched event list with the transcript.
func chatSessionCachedEvents(ctx context.Context, tx *sql.Tx) error {
	return AddColumn(ctx, tx, "chat_sessions", "events_json", "TEXT NOT NULL DEFAULT '[]'")
}
