package memory

import (
	"context"
	"sync"

	"github.com/formsage/formsage/internal/core/domain"
	"github.com/formsage/formsage/internal/core/ports/driven"
)

// Ensure ChatStore implements the interface.
var _ driven.ChatStore = (*ChatStore)(nil)

// ChatStore is an in-memory implementation of driven.ChatStore.
type ChatStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.ChatSession
	messages map[string][]domain.ChatMessage
}

// NewChatStore creates a new in-memory chat store.
func NewChatStore() *ChatStore {
	return &ChatStore{
		sessions: make(map[string]domain.ChatSession),
		messages: make(map[string][]domain.ChatMessage),
	}
}

// CreateSession stores a new session.
func (s *ChatStore) CreateSession(_ context.Context, session *domain.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = *session
	return nil
}

// GetSession retrieves a session by ID.
func (s *ChatStore) GetSession(_ context.Context, id string) (*domain.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &session, nil
}

// AppendMessage stores a message at the end of a session.
func (s *ChatStore) AppendMessage(_ context.Context, msg *domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[msg.SessionID]; !ok {
		return domain.ErrNotFound
	}
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], *msg)
	return nil
}

// ListMessages returns a session's messages oldest first.
func (s *ChatStore) ListMessages(_ context.Context, sessionID string) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]domain.ChatMessage, len(s.messages[sessionID]))
	copy(msgs, s.messages[sessionID])
	return msgs, nil
}
