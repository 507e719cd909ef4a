package domain

// Location resolution methods, in matching priority order.
const (
	MatchExact        = "exact"
	MatchKeySubstring = "key_substring"
	MatchLabel        = "label_substring"
)

// BoundingBox is a rectangle in document points (72 dpi, top-left origin):
// [x0, top, x1, bottom].
type BoundingBox [4]float64

// FieldLocation maps a free-text field label to its position on a known
// document template. Locations come from a static template catalog, not
// from the uploaded document itself.
type FieldLocation struct {
	// Page is the 1-based page number on the template.
	Page int `json:"page"`

	// BBox is the field rectangle in document points.
	BBox BoundingBox `json:"bbox"`

	// Label is the canonical display label for the field.
	Label string `json:"label"`

	// Method records how the query matched: exact, key_substring or
	// label_substring.
	Method string `json:"method"`
}
