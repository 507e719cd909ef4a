package driven

import (
	"context"

	"github.com/formsage/formsage/internal/core/domain"
)

// ChatStore persists chat sessions and their messages.
type ChatStore interface {
	// CreateSession stores a new session.
	CreateSession(ctx context.Context, session *domain.ChatSession) error

	// GetSession retrieves a session by ID.
	// Returns domain.ErrNotFound when the session does not exist.
	GetSession(ctx context.Context, id string) (*domain.ChatSession, error)

	// AppendMessage stores a message at the end of a session.
	AppendMessage(ctx context.Context, msg *domain.ChatMessage) error

	// ListMessages returns a session's messages oldest first.
	ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
}
