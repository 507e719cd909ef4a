package services

import (
	"context"
	"fmt"

	"github.com/formsage/formsage/internal/core/domain"
	"github.com/formsage/formsage/internal/core/ports/driven"
	"github.com/formsage/formsage/internal/logger"
)

// Retrieval defaults for the chat answering call site. The highlight
// resolution call site uses the stricter values from config; both are
// tunable per call.
const (
	DefaultTopK      = 10
	DefaultThreshold = 0.40
)

// Retriever answers similarity and full-scan queries against the index
// store. Every retrieval re-queries the store; nothing is cached across
// requests.
type Retriever struct {
	chunkStore driven.ChunkStore
	embedder   *Embedder
}

// NewRetriever creates a retriever over the given store and embedder.
func NewRetriever(chunkStore driven.ChunkStore, embedder *Embedder) *Retriever {
	return &Retriever{
		chunkStore: chunkStore,
		embedder:   embedder,
	}
}

// TopK embeds the query and returns up to k chunks of the document whose
// cosine similarity clears threshold, ordered by descending similarity.
// Nothing clearing the threshold is an empty result, not an error.
// Non-positive k or threshold fall back to the package defaults.
func (r *Retriever) TopK(ctx context.Context, documentID, query string, k int, threshold float64) ([]domain.SimilarityResult, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := r.chunkStore.Search(ctx, embedding, documentID, k, threshold)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	logger.Debug("Retrieved %d/%d chunks for document %s (threshold %.2f)",
		len(results), k, documentID, threshold)
	return results, nil
}

// All returns every chunk for the document ordered by index ascending,
// with no similarity filtering. Used for whole-document summarisation
// where completeness matters more than relevance ranking.
func (r *Retriever) All(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	chunks, err := r.chunkStore.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return chunks, nil
}
