package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ChatSession is the stored form of a chat transcript. The JSON columns are owned by the
// chat package; this layer does not interpret them.
type ChatSession struct {
	ID           string
	State        string
	PendingJSON  *string
	MessagesJSON string
	EventsJSON   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SaveChatSession inserts or replaces a chat session.
func (d *DB) SaveChatSession(ctx context.Context, s *ChatSession) error {
	if s.ID == "" {
		return fmt.Errorf("chat session id is required")
	}
	if s.MessagesJSON == "" {
		s.MessagesJSON = "[]"
	}
	if s.EventsJSON == "" {
		s.EventsJSON = "[]"
	}
	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := d.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, state, pending_json, messages_json, events_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			pending_json = excluded.pending_json,
			messages_json = excluded.messages_json,
			events_json = excluded.events_json,
			updated_at = excluded.updated_at
	`, s.ID, s.State, s.PendingJSON, s.MessagesJSON, s.EventsJSON, updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save chat session: %w", err)
	}
	return nil
}

// GetChatSession returns the session with id, or nil when none exists.
func (d *DB) GetChatSession(ctx context.Context, id string) (*ChatSession, error) {
	var s ChatSession
	var pending sql.NullString
	err := d.QueryRowContext(ctx, `
		SELECT id, state, pending_json, messages_json, events_json, created_at, updated_at
		FROM chat_sessions WHERE id = ?
	`, id).Scan(&s.ID, &s.State, &pending, &s.MessagesJSON, &s.EventsJSON, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}
	if pending.Valid {
		s.PendingJSON = &pending.String
	}
	return &s, nil
}

// DeleteChatSession removes a session. Deleting an unknown id is not an error.
func (d *DB) DeleteChatSession(ctx context.Context, id string) error {
	if _, err := d.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete chat session: %w", err)
	}
	return nil
}

// CountChatSessions returns the number of stored sessions.
func (d *DB) CountChatSessions(ctx context.Context) (int, error) {
	var n int
	if err := d.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chat sessions: %w", err)
	}
	return n, nil
}

// PruneChatSessions deletes sessions not updated since before and returns how many went.
func (d *DB) PruneChatSessions(ctx context.Context, before time.Time) (int64, error) {
	result, err := d.ExecContext(ctx, `DELETE FROM chat_sessions WHERE updated_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune chat sessions: %w", err)
	}
	return result.RowsAffected()
}
