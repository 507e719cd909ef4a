package driving

import (
	"context"

	"github.com/formsage/formsage/internal/core/domain"
)

// Answer modes for a grounded question.
const (
	// ModeQA answers from the most similar chunks.
	ModeQA = "qa"

	// ModeSummary answers from every chunk of the document, for
	// whole-document summarisation where completeness beats ranking.
	ModeSummary = "summary"
)

// AskRequest is one question against a session.
type AskRequest struct {
	// SessionID continues an existing session; empty starts a new one.
	SessionID string

	// DocumentID grounds the answer in a document; empty selects the
	// general flow.
	DocumentID string

	// Question is the user's raw question, in any language.
	Question string

	// Language is the BCP-47 code the answer must be written in.
	Language string

	// Mode is ModeQA or ModeSummary; ignored for general questions.
	Mode string
}

// ChatService answers questions as ordered event streams.
type ChatService interface {
	// Ask validates the request and returns the event stream for one
	// question. Validation failures (unknown document, document not
	// ready) are returned synchronously before any event is produced.
	// The channel is closed when the stream ends; a stream that ends
	// without a done event was interrupted. Cancelling ctx stops
	// generation promptly.
	Ask(ctx context.Context, req AskRequest) (<-chan domain.ChatEvent, error)
}
