package domain

import (
	"time"
	"unicode/utf8"
)

// IngestStatus tracks a document through the ingestion lifecycle.
type IngestStatus string

// Ingestion lifecycle states. Transitions are owned exclusively by the
// ingestion pipeline: pending -> processing -> {ready | error}.
const (
	IngestPending    IngestStatus = "pending"
	IngestProcessing IngestStatus = "processing"
	IngestReady      IngestStatus = "ready"
	IngestError      IngestStatus = "error"
)

// MaxErrorMessageLen bounds the error message stored on a failed document.
const MaxErrorMessageLen = 500

// Document represents an uploaded file registered for ingestion.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Filename is the original upload filename.
	Filename string

	// StorageRef is the object store reference for the raw bytes.
	StorageRef string

	// MimeType is the declared content type (e.g. application/pdf).
	MimeType string

	// SizeBytes is the raw file size.
	SizeBytes int64

	// FilingYear tags the document to a filing period.
	FilingYear int

	// IngestStatus is the current lifecycle state.
	IngestStatus IngestStatus

	// ErrorMessage holds the truncated failure reason when status is error.
	ErrorMessage string

	// Summary is the one-time auto-generated overview, set after the
	// document first reaches ready. Empty until then.
	Summary string

	// CreatedAt is when the document was registered.
	CreatedAt time.Time

	// UpdatedAt is when the document was last modified.
	UpdatedAt time.Time
}

// Page is the ephemeral per-page output of extraction. It is never
// persisted; the chunker consumes it directly.
type Page struct {
	// Number is the 1-based page number.
	Number int

	// Text is the extracted page text.
	Text string

	// Fields holds best-effort label/value pairs found on the page.
	Fields map[string]string
}

// ChunkMetadata carries the page provenance of a chunk.
type ChunkMetadata struct {
	// Page is the 1-based source page number.
	Page int `json:"page"`

	// FormFields is the field map inherited from the source page.
	FormFields map[string]string `json:"form_fields,omitempty"`
}

// Chunk is an indexed, bounded-length slice of a document's extracted text.
// For a ready document, chunk indexes are contiguous starting at 0 and
// concatenating chunk text (minus overlap) reconstructs the extracted text
// in page order.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the owning Document.
	DocumentID string

	// Index is the 0-based position across the whole document.
	Index int

	// Text is the chunk content.
	Text string

	// Metadata carries page provenance.
	Metadata ChunkMetadata

	// Embedding is the index-intent vector for this chunk.
	Embedding []float32
}

// SimilarityResult is a chunk returned from top-k retrieval together with
// its cosine similarity score in [0,1].
type SimilarityResult struct {
	Chunk      Chunk
	Similarity float64
}

// TruncateError bounds an error string for storage on the document record.
func TruncateError(msg string) string {
	return Truncate(msg, MaxErrorMessageLen)
}

// Truncate caps s at max characters, cutting on a rune boundary so
// multi-byte text stays valid UTF-8.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
