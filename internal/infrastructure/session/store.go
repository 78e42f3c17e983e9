package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/corpusqa/corpusqa/internal/core/domain"
)

type entry struct {
	mu      sync.Mutex
	history []domain.HistoryTurn
}

// Store keeps conversation history in memory, one lock per session key.
// Do holds the session's own lock for the full callback, so concurrent
// requests on one session serialize while other sessions stay unblocked.
// History is not durable across restarts.
type Store struct {
	maxMessages int

	mu       sync.RWMutex
	sessions map[string]*entry
}

func NewStore(maxMessages int) *Store {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	return &Store{
		maxMessages: maxMessages,
		sessions:    make(map[string]*entry),
	}
}

func (s *Store) Create() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &entry{}
	s.mu.Unlock()
	return id
}

// Do runs fn under the session's lock and persists the returned history,
// trimmed to the most recent maxMessages turns. Unknown ids are created on
// demand.
func (s *Store) Do(sessionID string, fn func(history []domain.HistoryTurn) []domain.HistoryTurn) {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if !ok {
		e = &entry{}
		s.sessions[sessionID] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	updated := fn(e.history)
	if len(updated) > s.maxMessages {
		updated = updated[len(updated)-s.maxMessages:]
	}
	e.history = updated
}

func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
