package extract

import (
	"context"
	"strings"

	"github.com/formsage/formsage/internal/core/domain"
	"github.com/formsage/formsage/internal/core/ports/driven"
)

var _ driven.Extractor = (*PlainTextExtractor)(nil)

// PlainTextExtractor treats the whole file as a single page of text.
type PlainTextExtractor struct{}

// NewPlainTextExtractor creates a plain text extractor.
func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

func (e *PlainTextExtractor) MIMETypes() []string {
	return []string{"text/plain", "text/markdown"}
}

func (e *PlainTextExtractor) ExtractPages(ctx context.Context, data []byte) ([]domain.Page, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, domain.ErrNoContent
	}
	return []domain.Page{{Number: 1, Text: text, Fields: parseFields(text)}}, nil
}
