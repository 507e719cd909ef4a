// Package highlight maps free-text field labels to known page and bounding
// box locations for recognized document templates. Matching is a simple
// substring scheme against a static catalog, not a general fuzzy search.
package highlight

import (
	"strings"

	"github.com/formsage/formsage/internal/core/domain"
)

// templateField is one entry of a template catalog.
type templateField struct {
	page  int
	bbox  domain.BoundingBox
	label string
}

// Locator resolves field labels against a static template catalog.
type Locator struct {
	fields map[string]templateField
	// keys preserves insertion order so substring matching is deterministic.
	keys []string
}

// New creates a locator backed by the built-in Form 1040 catalog.
func New() *Locator {
	l := &Locator{fields: make(map[string]templateField, len(form1040Fields))}
	for _, f := range form1040Fields {
		l.fields[f.key] = templateField{page: f.page, bbox: f.bbox, label: f.label}
		l.keys = append(l.keys, f.key)
	}
	return l
}

// Locate resolves a free-text label to a template field location.
// Matching order, first hit wins: exact case-insensitive key match, then
// substring match in either direction between query and key, then
// substring match against the canonical display label. Returns
// (nil, false) when nothing matches; callers treat that as expected.
func (l *Locator) Locate(label string) (*domain.FieldLocation, bool) {
	target := strings.ToLower(strings.TrimSpace(label))
	if target == "" {
		return nil, false
	}

	if f, ok := l.fields[target]; ok {
		return l.result(f, domain.MatchExact), true
	}

	for _, key := range l.keys {
		if strings.Contains(target, key) || strings.Contains(key, target) {
			return l.result(l.fields[key], domain.MatchKeySubstring), true
		}
	}

	for _, key := range l.keys {
		if strings.Contains(strings.ToLower(l.fields[key].label), target) {
			return l.result(l.fields[key], domain.MatchLabel), true
		}
	}

	return nil, false
}

func (l *Locator) result(f templateField, method string) *domain.FieldLocation {
	return &domain.FieldLocation{
		Page:   f.page,
		BBox:   f.bbox,
		Label:  f.label,
		Method: method,
	}
}
