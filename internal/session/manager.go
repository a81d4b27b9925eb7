package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const defaultSessionName = "Default Session"

// Info is the registry's view of one session.
type Info struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Documents int       `json:"documents"`
}

// Manager is the session registry. It always holds at least one
// session: deleting the last one recreates a default in its place.
type Manager struct {
	deps *Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(deps *Deps) *Manager {
	m := &Manager{deps: deps, sessions: make(map[string]*Session)}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createLocked(defaultSessionName)
	return m
}

func (m *Manager) createLocked(name string) *Session {
	s := newSession(uuid.NewString(), name, m.deps)
	m.sessions[s.ID()] = s
	log.Info().Str("session", s.ID()).Str("name", name).Msg("session created")
	return s
}

// Create registers a new session. A blank name gets a placeholder.
func (m *Manager) Create(name string) *Session {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Untitled Session"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(name)
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSession, id)
	}
	return s, nil
}

// Delete removes a session and its vector namespaces. Deleting the
// last session recreates a default one, which is returned; otherwise
// the returned session is nil.
func (m *Manager) Delete(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInvalidSession, id)
	}
	delete(m.sessions, id)

	var replacement *Session
	if len(m.sessions) == 0 {
		replacement = m.createLocked(defaultSessionName)
	}
	m.mu.Unlock()

	s.drop(ctx)
	log.Info().Str("session", id).Msg("session deleted")
	return replacement, nil
}

func (m *Manager) Rename(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("session name must not be empty")
	}

	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
	return nil
}

// List returns all sessions ordered by creation time.
func (m *Manager) List() []Info {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].createdAt.Before(sessions[j].createdAt)
	})

	infos := make([]Info, len(sessions))
	for i, s := range sessions {
		docs := s.Documents()
		infos[i] = Info{
			ID:        s.ID(),
			Name:      s.Name(),
			CreatedAt: s.createdAt,
			Documents: len(docs.Files),
		}
	}
	return infos
}
