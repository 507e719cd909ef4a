package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/formsage/formsage/internal/core/domain"
	"github.com/formsage/formsage/internal/core/ports/driven"
)

// Ensure ChunkStore implements the interface.
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore is an in-memory implementation of driven.ChunkStore with
// brute-force cosine search.
type ChunkStore struct {
	mu     sync.RWMutex
	chunks map[string][]domain.Chunk
}

// NewChunkStore creates a new in-memory chunk store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		chunks: make(map[string][]domain.Chunk),
	}
}

// SaveChunks stores the chunks of one ingestion run, appending to any
// chunks already held for the document.
func (s *ChunkStore) SaveChunks(_ context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.chunks[c.DocumentID] = append(s.chunks[c.DocumentID], c)
	}
	return nil
}

// DeleteByDocument removes every chunk for a document.
func (s *ChunkStore) DeleteByDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, documentID)
	return nil
}

// Search scores every chunk of the document against the query vector and
// returns the top matches above the threshold.
func (s *ChunkStore) Search(_ context.Context, queryEmbedding []float32, documentID string, matchCount int, matchThreshold float64) ([]domain.SimilarityResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []domain.SimilarityResult
	for _, chunk := range s.chunks[documentID] {
		sim := cosineSimilarity(queryEmbedding, chunk.Embedding)
		if sim >= matchThreshold {
			results = append(results, domain.SimilarityResult{Chunk: chunk, Similarity: sim})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if matchCount > 0 && len(results) > matchCount {
		results = results[:matchCount]
	}
	return results, nil
}

// ListByDocument returns every chunk for a document by ascending index.
func (s *ChunkStore) ListByDocument(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := make([]domain.Chunk, len(s.chunks[documentID]))
	copy(chunks, s.chunks[documentID])
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Index < chunks[j].Index
	})
	return chunks, nil
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-length vectors score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
