package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/omriShneor/calbot/internal/database"
	"github.com/omriShneor/calbot/internal/domain"
)

// DBStore keeps sessions in SQLite.
type DBStore struct {
	db *database.DB
}

// NewDBStore creates a Store backed by db.
func NewDBStore(db *database.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) SaveSession(ctx context.Context, v View) error {
	messages, err := json.Marshal(v.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}
	events, err := json.Marshal(v.Events)
	if err != nil {
		return fmt.Errorf("failed to encode events: %w", err)
	}

	rec := &database.ChatSession{
		ID:           v.ID,
		State:        string(v.State),
		MessagesJSON: string(messages),
		EventsJSON:   string(events),
		UpdatedAt:    v.UpdatedAt,
	}
	if v.Pending != nil {
		pending, err := json.Marshal(v.Pending)
		if err != nil {
			return fmt.Errorf("failed to encode pending event: %w", err)
		}
		p := string(pending)
		rec.PendingJSON = &p
	}
	return s.db.SaveChatSession(ctx, rec)
}

func (s *DBStore) LoadSession(ctx context.Context, id string) (*View, error) {
	rec, err := s.db.GetChatSession(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}

	v := View{
		ID:        rec.ID,
		State:     State(rec.State),
		UpdatedAt: rec.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(rec.MessagesJSON), &v.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	if err := json.Unmarshal([]byte(rec.EventsJSON), &v.Events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	if rec.PendingJSON != nil {
		var pending domain.EventCandidate
		if err := json.Unmarshal([]byte(*rec.PendingJSON), &pending); err != nil {
			return nil, fmt.Errorf("failed to decode pending event: %w", err)
		}
		v.Pending = &pending
	}
	return &v, nil
}

func (s *DBStore) DeleteSession(ctx context.Context, id string) error {
	return s.db.DeleteChatSession(ctx, id)
}
