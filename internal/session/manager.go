package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/framecraft/studio/internal/gateway"
	"github.com/framecraft/studio/internal/presets"
)

var ErrNotFound = errors.New("session not found")

// Info is the listing view of a session.
type Info struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId,omitempty"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Manager owns every open session of the agent.
type Manager struct {
	gw      gateway.Gateway
	history History
	presets presets.Store
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager returns an empty manager. history and store may be nil.
func NewManager(gw gateway.Gateway, history History, store presets.Store, logger *slog.Logger) *Manager {
	return &Manager{
		gw:       gw,
		history:  history,
		presets:  store,
		logger:   logger.With("component", "sessions"),
		sessions: make(map[string]*Session),
	}
}

// Create opens a session. A project-backed session is restored from the
// project's stored analyses; a restore failure is logged and the session
// starts empty.
func (m *Manager) Create(ctx context.Context, opts Options) *Session {
	s := newSession(uuid.NewString(), opts, m.gw, m.history, m.presets, m.logger)
	if err := s.Restore(ctx); err != nil {
		s.logger.Warn("session restore failed", "error", err)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("session opened", "session_id", s.ID, "project_id", opts.ProjectID, "open", count)
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// List returns every open session, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, Info{ID: s.ID, ProjectID: s.opts.ProjectID, Title: s.opts.Title, CreatedAt: s.CreatedAt})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Events subscribes to the state changes of one session. The channel closes
// when the session does.
func (m *Manager) Events(id string) (<-chan Event, func(), error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.Subscribe()
	return ch, cancel, nil
}

// Close ends a session. Results still in flight are discarded.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.close()
	m.logger.Info("session closed", "session_id", id)
	return nil
}

// CloseProject ends every session editing projectID.
func (m *Manager) CloseProject(projectID string) int {
	m.mu.RLock()
	var ids []string
	for id, s := range m.sessions {
		if s.opts.ProjectID == projectID {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()
	for _, id := range ids {
		_ = m.Close(id)
	}
	return len(ids)
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.close()
	}
	if len(all) > 0 {
		m.logger.Info("closed all sessions", "count", len(all))
	}
}
