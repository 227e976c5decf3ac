package chat

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultIdleTTL is how long an untouched session stays in memory.
	DefaultIdleTTL = 24 * time.Hour
	// DefaultMaxSessions caps the in-memory registry.
	DefaultMaxSessions = 10000

	sweepInterval = time.Minute
)

// Store persists session transcripts across restarts.
type Store interface {
	SaveSession(ctx context.Context, v View) error
	// LoadSession returns nil, nil when the session is unknown.
	LoadSession(ctx context.Context, id string) (*View, error)
	DeleteSession(ctx context.Context, id string) error
}

type entry struct {
	session  *Session
	lastSeen time.Time
}

// Manager is the in-process registry of chat sessions. Sessions idle longer than the idle
// TTL are dropped from memory, and the oldest are dropped when the registry is full. A
// dropped session that was persisted is loaded again on its next use.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*entry
	store       Store
	idleTTL     time.Duration
	maxSessions int
	lastSweep   time.Time
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger
}

// NewManager creates a registry with the default limits. store may be nil for memory-only
// sessions.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions:    make(map[string]*entry),
		store:       store,
		idleTTL:     DefaultIdleTTL,
		maxSessions: DefaultMaxSessions,
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      logger,
	}
}

// SetLimits replaces the idle TTL and the session cap. Zero disables a limit.
func (m *Manager) SetLimits(idleTTL time.Duration, maxSessions int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idleTTL = idleTTL
	m.maxSessions = maxSessions
}

// Get returns the session for id, loading it from the store when it is not in memory.
// It returns nil when the session does not exist.
func (m *Manager) Get(ctx context.Context, id string) *Session {
	if id == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.sessions[id]; ok {
		e.lastSeen = now
		return e.session
	}
	if m.store == nil {
		return nil
	}

	v, err := m.store.LoadSession(ctx, id)
	if err != nil {
		m.logger.Warn("failed to load chat session", "session_id", id, "error", err)
		return nil
	}
	if v == nil {
		return nil
	}
	s := restoreSession(*v)
	m.add(s, now)
	return s
}

// GetOrCreate returns the session for id or a new session with a fresh id.
func (m *Manager) GetOrCreate(ctx context.Context, id string) *Session {
	if s := m.Get(ctx, id); s != nil {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s := NewSession(m.newID())
	m.add(s, m.now())
	return s
}

// add registers s, evicting stale sessions first. Callers hold mu.
func (m *Manager) add(s *Session, now time.Time) {
	if m.idleTTL > 0 && now.Sub(m.lastSweep) >= sweepInterval {
		m.lastSweep = now
		for id, e := range m.sessions {
			if now.Sub(e.lastSeen) > m.idleTTL && e.session.State() != StateProcessing {
				delete(m.sessions, id)
			}
		}
	}
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.evictOldest(len(m.sessions) - m.maxSessions*9/10 + 1)
	}
	m.sessions[s.ID] = &entry{session: s, lastSeen: now}
}

// evictOldest drops up to n least recently used sessions that are not processing.
func (m *Manager) evictOldest(n int) {
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.sessions[ids[i]].lastSeen.Before(m.sessions[ids[j]].lastSeen)
	})

	evicted := 0
	for _, id := range ids {
		if evicted >= n {
			break
		}
		if m.sessions[id].session.State() == StateProcessing {
			continue
		}
		delete(m.sessions, id)
		evicted++
	}
	m.logger.Debug("evicted chat sessions", "count", evicted, "remaining", len(m.sessions))
}

// Delete forgets a session in memory and in the store.
func (m *Manager) Delete(ctx context.Context, id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.DeleteSession(ctx, id); err != nil {
			m.logger.Warn("failed to delete chat session", "session_id", id, "error", err)
		}
	}
}

// Len returns the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
