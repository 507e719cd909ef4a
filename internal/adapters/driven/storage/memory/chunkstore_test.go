package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formsage/formsage/internal/core/domain"
)

func TestChunkStore_Search_ThresholdAndOrder(t *testing.T) {
	ctx := context.Background()
	store := NewChunkStore()
	require.NoError(t, store.SaveChunks(ctx, []domain.Chunk{
		{ID: "exact", DocumentID: "doc-1", Embedding: []float32{1, 0}},
		{ID: "close", DocumentID: "doc-1", Embedding: []float32{1, 0.5}},
		{ID: "orthogonal", DocumentID: "doc-1", Embedding: []float32{0, 1}},
	}))

	results, err := store.Search(ctx, []float32{1, 0}, "doc-1", 10, 0.5)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].Chunk.ID)
	assert.Equal(t, "close", results[1].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 0.0001)
}

func TestChunkStore_Search_MatchCountCapsResults(t *testing.T) {
	ctx := context.Background()
	store := NewChunkStore()
	var chunks []domain.Chunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, domain.Chunk{
			ID: string(rune('a' + i)), DocumentID: "doc-1", Embedding: []float32{1, float32(i) * 0.1},
		})
	}
	require.NoError(t, store.SaveChunks(ctx, chunks))

	results, err := store.Search(ctx, []float32{1, 0}, "doc-1", 2, 0)

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestChunkStore_Search_IsolatedPerDocument(t *testing.T) {
	ctx := context.Background()
	store := NewChunkStore()
	require.NoError(t, store.SaveChunks(ctx, []domain.Chunk{
		{ID: "mine", DocumentID: "doc-1", Embedding: []float32{1, 0}},
		{ID: "theirs", DocumentID: "doc-2", Embedding: []float32{1, 0}},
	}))

	results, err := store.Search(ctx, []float32{1, 0}, "doc-1", 10, 0.5)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mine", results[0].Chunk.ID)
}

func TestChunkStore_Search_MismatchedVectorsScoreZero(t *testing.T) {
	ctx := context.Background()
	store := NewChunkStore()
	require.NoError(t, store.SaveChunks(ctx, []domain.Chunk{
		{ID: "short", DocumentID: "doc-1", Embedding: []float32{1}},
		{ID: "zero", DocumentID: "doc-1", Embedding: []float32{0, 0}},
	}))

	results, err := store.Search(ctx, []float32{1, 0}, "doc-1", 10, 0.1)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChunkStore_DeleteByDocument(t *testing.T) {
	ctx := context.Background()
	store := NewChunkStore()
	require.NoError(t, store.SaveChunks(ctx, []domain.Chunk{
		{ID: "c1", DocumentID: "doc-1"},
		{ID: "c2", DocumentID: "doc-2"},
	}))

	require.NoError(t, store.DeleteByDocument(ctx, "doc-1"))

	gone, err := store.ListByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, gone)

	kept, err := store.ListByDocument(ctx, "doc-2")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestChunkStore_ListByDocument_OrdersByIndex(t *testing.T) {
	ctx := context.Background()
	store := NewChunkStore()
	require.NoError(t, store.SaveChunks(ctx, []domain.Chunk{
		{ID: "c2", DocumentID: "doc-1", Index: 2},
		{ID: "c0", DocumentID: "doc-1", Index: 0},
		{ID: "c1", DocumentID: "doc-1", Index: 1},
	}))

	chunks, err := store.ListByDocument(ctx, "doc-1")

	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 0.0001)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.0001)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 0.0001)
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Zero(t, cosineSimilarity(nil, nil))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}
