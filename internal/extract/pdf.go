package extract

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/formsage/formsage/internal/core/domain"
	"github.com/formsage/formsage/internal/core/ports/driven"
)

var _ driven.Extractor = (*PDFExtractor)(nil)

// fieldLineRe matches "Label: value" lines used for best-effort form
// field capture. Labels are kept short so running prose is not mistaken
// for a field.
var fieldLineRe = regexp.MustCompile(`(?m)^\s*([A-Za-z][A-Za-z0-9 ().,'/&-]{1,60}?)\s*:\s*(\S.*)$`)

// PDFExtractor extracts per-page text from PDF documents.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDF extractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// MIMETypes reports the content types this extractor accepts.
func (e *PDFExtractor) MIMETypes() []string {
	return []string{"application/pdf"}
}

// ExtractPages reads every page of the PDF, preserving page boundaries
// so downstream chunks can cite a page number. Pages with no extractable
// text are returned empty rather than dropped, keeping numbering aligned
// with the document.
func (e *PDFExtractor) ExtractPages(ctx context.Context, data []byte) ([]domain.Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	total := reader.NumPage()
	if total == 0 {
		return nil, domain.ErrNoContent
	}

	pages := make([]domain.Page, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, domain.Page{Number: i})
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single malformed page does not fail the document.
			pages = append(pages, domain.Page{Number: i})
			continue
		}

		text = normalizePageText(text)
		pages = append(pages, domain.Page{
			Number: i,
			Text:   text,
			Fields: parseFields(text),
		})
	}

	return pages, nil
}

// normalizePageText collapses runs of spaces and blank lines left over
// from PDF layout.
func normalizePageText(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// parseFields captures "label: value" pairs found on the page. This is
// best-effort metadata for filled tax forms; prose pages usually produce
// nothing.
func parseFields(text string) map[string]string {
	matches := fieldLineRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	fields := make(map[string]string, len(matches))
	for _, m := range matches {
		label := strings.TrimSpace(m[1])
		value := strings.TrimSpace(m[2])
		if label == "" || value == "" {
			continue
		}
		fields[label] = value
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
