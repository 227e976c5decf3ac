package migrations

import (
	"context"
	"database/sql"
)

func init() {
	Register(Migration{Version: 1, Name: "chat_sessions", Up: chatSessions})
}

func chatSessions(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL DEFAULT 'idle' CHECK(state IN ('idle', 'awaiting_confirmation', 'processing')),
			pending_json TEXT,
			messages_json TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_updated ON chat_sessions(updated_at DESC)`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
