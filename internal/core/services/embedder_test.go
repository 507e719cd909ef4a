package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formsage/formsage/internal/core/domain"
	"github.com/formsage/formsage/internal/retry"
)

// fastPolicy avoids real backoff sleeps in tests.
func fastPolicy(attempts int) retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = attempts
	p.InitialBackoff = 0
	p.MaxBackoff = 0
	return p
}

func TestEmbedder_EmbedTexts_Empty(t *testing.T) {
	e := NewEmbedder(newMockEmbeddingService(4))

	out, err := e.EmbedTexts(context.Background(), nil)

	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestEmbedder_EmbedTexts_SplitsBatchesPreservingOrder(t *testing.T) {
	svc := newMockEmbeddingService(2)
	svc.embedFn = func(texts []string, _ domain.EmbedIntent) ([][]float32, error) {
		// Encode the input text's index so ordering is observable.
		out := make([][]float32, len(texts))
		for i, text := range texts {
			var n float32
			fmt.Sscanf(text, "text-%f", &n)
			out[i] = []float32{n, 0}
		}
		return out, nil
	}
	e := NewEmbedder(svc, WithBatchSize(3), WithRetryPolicy(fastPolicy(1)))

	texts := make([]string, 8)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}

	out, err := e.EmbedTexts(context.Background(), texts)

	require.NoError(t, err)
	require.Len(t, out, 8)
	for i, v := range out {
		assert.Equal(t, float32(i), v[0], "vector %d out of order", i)
	}
	assert.Equal(t, []int{3, 3, 2}, svc.callSizes())
	for _, intent := range svc.intents {
		assert.Equal(t, domain.IntentIndex, intent)
	}
}

func TestEmbedder_EmbedQuery_UsesQueryIntent(t *testing.T) {
	svc := newMockEmbeddingService(4)
	e := NewEmbedder(svc, WithRetryPolicy(fastPolicy(1)))

	out, err := e.EmbedQuery(context.Background(), "what are my wages?")

	require.NoError(t, err)
	assert.Len(t, out, 4)
	require.Len(t, svc.intents, 1)
	assert.Equal(t, domain.IntentQuery, svc.intents[0])
}

func TestEmbedder_EmbedTexts_CountMismatch(t *testing.T) {
	svc := newMockEmbeddingService(4)
	svc.embedFn = func(texts []string, _ domain.EmbedIntent) ([][]float32, error) {
		return [][]float32{make([]float32, 4)}, nil
	}
	e := NewEmbedder(svc, WithRetryPolicy(fastPolicy(3)))

	_, err := e.EmbedTexts(context.Background(), []string{"a", "b"})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	// Malformed responses are not retried.
	assert.Equal(t, 1, svc.callCount())
}

func TestEmbedder_EmbedTexts_DimensionMismatch(t *testing.T) {
	svc := newMockEmbeddingService(4)
	svc.embedFn = func(texts []string, _ domain.EmbedIntent) ([][]float32, error) {
		return [][]float32{{1, 2}}, nil
	}
	e := NewEmbedder(svc, WithRetryPolicy(fastPolicy(3)))

	_, err := e.EmbedTexts(context.Background(), []string{"a"})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Equal(t, 1, svc.callCount())
}

func TestEmbedder_EmbedTexts_RetriesTransientErrors(t *testing.T) {
	svc := newMockEmbeddingService(2)
	attempts := 0
	svc.embedFn = func(texts []string, _ domain.EmbedIntent) ([][]float32, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("upstream 503")
		}
		return [][]float32{{1, 0}}, nil
	}
	e := NewEmbedder(svc, WithRetryPolicy(fastPolicy(3)))

	out, err := e.EmbedTexts(context.Background(), []string{"a"})

	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, 3, attempts)
}

func TestEmbedder_NilService(t *testing.T) {
	e := NewEmbedder(nil)

	_, err := e.EmbedTexts(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	_, err = e.EmbedQuery(context.Background(), "a")
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}
