package driven

import (
	"context"

	"github.com/formsage/formsage/internal/core/domain"
)

// Extractor turns raw document bytes into per-page text and best-effort
// structured fields.
type Extractor interface {
	// ExtractPages extracts every page of the document in order.
	ExtractPages(ctx context.Context, data []byte) ([]domain.Page, error)

	// MIMETypes returns the MIME types this extractor handles.
	MIMETypes() []string
}

// ExtractorRegistry dispatches extraction by MIME type.
type ExtractorRegistry interface {
	// Extract selects the extractor for the MIME type and runs it.
	// Returns domain.ErrUnsupportedType for unknown types.
	Extract(ctx context.Context, mimeType string, data []byte) ([]domain.Page, error)

	// Register adds an extractor to the registry.
	Register(extractor Extractor)

	// SupportedMIMETypes returns all MIME types that can be extracted.
	SupportedMIMETypes() []string
}
