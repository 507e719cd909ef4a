package driven

import (
	"context"

	"github.com/formsage/formsage/internal/core/domain"
)

// ChunkStore is the index store: it persists chunks with their vectors and
// answers similarity queries. Similarity is a capability of the store
// (server-side for the SQL adapters), not of the caller.
type ChunkStore interface {
	// SaveChunks stores all chunks of one ingestion run.
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error

	// DeleteByDocument removes every chunk for a document. Used before
	// re-ingestion so a ready document's chunk set is always exactly the
	// output of its most recent successful run.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Search returns up to matchCount chunks of the document whose cosine
	// similarity to the query vector clears matchThreshold, ordered by
	// descending similarity. No matches is an empty result, not an error.
	Search(ctx context.Context, queryEmbedding []float32, documentID string, matchCount int, matchThreshold float64) ([]domain.SimilarityResult, error)

	// ListByDocument returns every chunk for a document ordered by index
	// ascending.
	ListByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error)
}
