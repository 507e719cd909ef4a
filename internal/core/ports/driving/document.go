package driving

import (
	"context"

	"github.com/formsage/formsage/internal/core/domain"
)

// RegisterDocumentRequest registers a file already placed in the object
// store.
type RegisterDocumentRequest struct {
	Filename   string
	StorageRef string
	MimeType   string
	SizeBytes  int64
	FilingYear int
}

// DocumentService manages document records.
type DocumentService interface {
	// Register creates a document record in the pending state.
	Register(ctx context.Context, req RegisterDocumentRequest) (*domain.Document, error)

	// Get retrieves a document by ID.
	Get(ctx context.Context, id string) (*domain.Document, error)

	// List returns documents for a filing year, newest first.
	List(ctx context.Context, filingYear int) ([]domain.Document, error)
}
