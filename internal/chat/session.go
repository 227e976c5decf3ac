package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/omriShneor/calbot/internal/domain"
)

// State is the conversation state of a session.
type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateProcessing           State = "processing"
)

var (
	// ErrBusy is returned when a session is already processing a request.
	ErrBusy = errors.New("a request for this session is already in progress")
	// ErrNoPendingEvent is returned by confirm and cancel when nothing awaits confirmation.
	ErrNoPendingEvent = errors.New("there is no event awaiting confirmation")
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversational turn.
type Message struct {
	ID        string                 `json:"id"`
	Role      Role                   `json:"role"`
	Text      string                 `json:"text"`
	Timestamp time.Time              `json:"timestamp"`
	Event     *domain.EventCandidate `json:"event,omitempty"`
}

// View is a point-in-time copy of a session.
type View struct {
	ID        string                 `json:"id"`
	State     State                  `json:"state"`
	Messages  []Message              `json:"messages"`
	Pending   *domain.EventCandidate `json:"pending,omitempty"`
	Events    []domain.CalendarEvent `json:"events"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// Session holds one user's conversation. All fields are guarded by mu; the state field is
// the single-flight guard for the session.
type Session struct {
	ID string

	mu        sync.Mutex
	state     State
	messages  []Message
	pending   *domain.EventCandidate
	events    []domain.CalendarEvent
	updatedAt time.Time
}

// NewSession creates an idle session.
func NewSession(id string) *Session {
	return &Session{ID: id, state: StateIdle}
}

// restoreSession rebuilds a session from a persisted view. A session persisted mid-request
// comes back idle, or awaiting confirmation when it still has a pending candidate.
func restoreSession(v View) *Session {
	s := NewSession(v.ID)
	s.messages = append([]Message(nil), v.Messages...)
	s.pending = v.Pending
	s.events = append([]domain.CalendarEvent(nil), v.Events...)
	s.updatedAt = v.UpdatedAt
	if s.pending != nil {
		s.state = StateAwaitingConfirmation
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// begin moves the session into processing. allowed lists the states work may start from.
func (s *Session) begin(allowed ...State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateProcessing {
		return ErrBusy
	}
	for _, st := range allowed {
		if s.state == st {
			s.state = StateProcessing
			return nil
		}
	}
	return ErrNoPendingEvent
}

func (s *Session) finish(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = next
}

func (s *Session) append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.updatedAt = msg.Timestamp
}

func (s *Session) setPending(c *domain.EventCandidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = c
}

func (s *Session) takePending() *domain.EventCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.pending
	s.pending = nil
	return c
}

func (s *Session) setEvents(events []domain.CalendarEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
}

// View returns a copy of the session safe to serialize.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:        s.ID,
		State:     s.state,
		Messages:  append([]Message{}, s.messages...),
		Events:    append([]domain.CalendarEvent{}, s.events...),
		UpdatedAt: s.updatedAt,
	}
	if s.pending != nil {
		cp := *s.pending
		v.Pending = &cp
	}
	return v
}
