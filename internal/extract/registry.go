package extract

import (
	"context"
	"fmt"
	"mime"
	"sort"
	"strings"

	"github.com/formsage/formsage/internal/core/domain"
	"github.com/formsage/formsage/internal/core/ports/driven"
)

var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry dispatches extraction by MIME type. Registration happens at
// startup; lookups are read-only after that.
type Registry struct {
	byType map[string]driven.Extractor
}

// NewRegistry creates a registry preloaded with the given extractors.
func NewRegistry(extractors ...driven.Extractor) *Registry {
	r := &Registry{byType: make(map[string]driven.Extractor)}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// DefaultRegistry returns a registry with the built-in extractors.
func DefaultRegistry() *Registry {
	return NewRegistry(NewPDFExtractor(), NewPlainTextExtractor())
}

// Register adds an extractor, overriding any previous one for the same
// MIME types.
func (r *Registry) Register(extractor driven.Extractor) {
	for _, mt := range extractor.MIMETypes() {
		r.byType[normalizeMIME(mt)] = extractor
	}
}

// Extract runs the extractor registered for the MIME type.
func (r *Registry) Extract(ctx context.Context, mimeType string, data []byte) ([]domain.Page, error) {
	extractor, ok := r.byType[normalizeMIME(mimeType)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, mimeType)
	}
	return extractor.ExtractPages(ctx, data)
}

// SupportedMIMETypes lists the registered types in stable order.
func (r *Registry) SupportedMIMETypes() []string {
	types := make([]string, 0, len(r.byType))
	for mt := range r.byType {
		types = append(types, mt)
	}
	sort.Strings(types)
	return types
}

// normalizeMIME strips parameters like charset and lowercases the type.
func normalizeMIME(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return mt
}
