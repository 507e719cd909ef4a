package driven

import (
	"context"

	"github.com/formsage/formsage/internal/core/domain"
)

// DocumentStore persists document records and their lifecycle state.
type DocumentStore interface {
	// SaveDocument stores or updates a document record.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID.
	// Returns domain.ErrNotFound when the document does not exist.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// ListDocuments returns documents for a filing year, newest first.
	// A zero filingYear returns every document.
	ListDocuments(ctx context.Context, filingYear int) ([]domain.Document, error)

	// SetStatus updates the lifecycle state; errMsg is stored for the
	// error state and cleared otherwise.
	SetStatus(ctx context.Context, id string, status domain.IngestStatus, errMsg string) error

	// SetSummary stores the auto-generated summary.
	SetSummary(ctx context.Context, id string, summary string) error

	// DeleteDocument removes a document record.
	DeleteDocument(ctx context.Context, id string) error
}
