package domain

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxSessionTitleLen bounds the session title taken from the first question.
const MaxSessionTitleLen = 80

// MaxSourceSnippetLen bounds the chunk text stored with a message source.
const MaxSourceSnippetLen = 300

// ChatSession groups a multi-turn conversation, optionally grounded in a
// single document.
type ChatSession struct {
	// ID is the unique identifier for the session.
	ID string

	// DocumentID is the grounding document, empty for general chat.
	DocumentID string

	// Title is the first question, truncated for display.
	Title string

	// CreatedAt is when the session started.
	CreatedAt time.Time
}

// ChatMessage is one persisted turn of a session. Assistant messages are
// written only after their token stream completed; an interrupted stream
// persists nothing.
type ChatMessage struct {
	// ID is the unique identifier for the message.
	ID string

	// SessionID links to the owning session.
	SessionID string

	// Role is RoleUser or RoleAssistant.
	Role string

	// Content is the full message text.
	Content string

	// Language is the BCP-47 code the turn was answered in.
	Language string

	// Sources are the retrieved chunks cited by an assistant message.
	Sources []MessageSource

	// CreatedAt is when the message was stored.
	CreatedAt time.Time
}

// MessageSource is a citation attached to an assistant message.
type MessageSource struct {
	ChunkID    string            `json:"chunk_id"`
	Snippet    string            `json:"chunk_text"`
	Page       int               `json:"page"`
	FormFields map[string]string `json:"form_fields,omitempty"`
	Similarity float64           `json:"similarity"`
}

// NewSessionTitle derives a session title from the opening question.
func NewSessionTitle(question string) string {
	return Truncate(question, MaxSessionTitleLen)
}
