package state

import (
	"sync"

	"github.com/google/uuid"

	"github.com/AbdelilahOu/dbroute/internal/database"
)

// DefaultSessionID is used by transports that carry no session identity,
// such as stdio.
const DefaultSessionID = "default"

// Session is the per-client selection of which named connection to query
// and in which mode.
type Session struct {
	ID         string
	Connection string
	Mode       database.Mode
}

// Store holds sessions (thread-safe).
type Store struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	defaultConnection string
	defaultMode       database.Mode
}

func NewStore(defaultConnection string, defaultMode database.Mode) *Store {
	return &Store{
		sessions:          make(map[string]*Session),
		defaultConnection: defaultConnection,
		defaultMode:       defaultMode,
	}
}

// GetOrCreate returns the session for id, creating it with the defaults.
// An empty id gets a fresh random one.
func (s *Store) GetOrCreate(id string) Session {
	if id == "" {
		id = uuid.New().String()
	}

	s.mu.RLock()
	if sess, ok := s.sessions[id]; ok {
		s.mu.RUnlock()
		return *sess
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return *sess
	}
	sess := &Session{
		ID:         id,
		Connection: s.defaultConnection,
		Mode:       s.defaultMode,
	}
	s.sessions[id] = sess
	return *sess
}

// Switch points the session at another connection.
func (s *Store) Switch(id, connection string) Session {
	s.GetOrCreate(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[id]
	sess.Connection = connection
	return *sess
}

// Close forgets the session.
func (s *Store) Close(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
