package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/formsage/formsage/internal/core/domain"
	"github.com/formsage/formsage/internal/core/ports/driven"
	"github.com/formsage/formsage/internal/logger"
	"github.com/formsage/formsage/internal/retry"
)

// DefaultEmbedBatchSize caps the number of texts per provider call.
// The cap exists purely to respect the provider rate limit.
const DefaultEmbedBatchSize = 100

// DefaultEmbedParallelism bounds concurrent batch dispatch.
const DefaultEmbedParallelism = 4

// Embedder wraps an EmbeddingService with batch splitting, bounded
// parallel dispatch, retry and dimension checking. Batches may run
// concurrently but results are always reassembled in input order.
type Embedder struct {
	svc         driven.EmbeddingService
	policy      retry.Policy
	batchSize   int
	parallelism int
}

// EmbedderOption configures the embedder.
type EmbedderOption func(*Embedder)

// WithBatchSize sets the per-call text cap.
func WithBatchSize(n int) EmbedderOption {
	return func(e *Embedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithParallelism bounds concurrent batch calls.
func WithParallelism(n int) EmbedderOption {
	return func(e *Embedder) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p retry.Policy) EmbedderOption {
	return func(e *Embedder) {
		e.policy = p
	}
}

// NewEmbedder creates an embedder over the given service.
func NewEmbedder(svc driven.EmbeddingService, opts ...EmbedderOption) *Embedder {
	e := &Embedder{
		svc:         svc,
		policy:      retry.DefaultPolicy(),
		batchSize:   DefaultEmbedBatchSize,
		parallelism: DefaultEmbedParallelism,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimensions returns the configured embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.svc.Dimensions()
}

// EmbedTexts embeds document texts with the index intent. Inputs larger
// than the batch cap are split into sequential batches whose results are
// concatenated in order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if e.svc == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if len(texts) == 0 {
		return nil, nil
	}

	batches := e.batches(texts)
	logger.Debug("Embedding %d texts in %d batches", len(texts), len(batches))

	vectors := make([][][]float32, len(batches))
	sem := make(chan struct{}, e.parallelism)
	var wg sync.WaitGroup
	errs := make([]error, len(batches))

	for i, batch := range batches {
		wg.Add(1)
		go func(i int, batch []string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			out, err := e.embedBatch(ctx, batch, domain.IntentIndex)
			if err != nil {
				errs[i] = fmt.Errorf("batch %d: %w", i, err)
				return
			}
			vectors[i] = out
		}(i, batch)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	// Reassemble in original chunk order.
	result := make([][]float32, 0, len(texts))
	for _, out := range vectors {
		result = append(result, out...)
	}
	return result, nil
}

// EmbedQuery embeds a single user query with the query intent.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.svc == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	out, err := e.embedBatch(ctx, []string{text}, domain.IntentQuery)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// embedBatch performs one provider call under the retry policy and
// validates the result shape.
func (e *Embedder) embedBatch(ctx context.Context, texts []string, intent domain.EmbedIntent) ([][]float32, error) {
	var out [][]float32

	err := e.policy.Do(ctx, func(ctx context.Context) error {
		res, err := e.svc.EmbedBatch(ctx, texts, intent)
		if err != nil {
			return err
		}
		if len(res) != len(texts) {
			return fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrInvalidInput, len(res), len(texts))
		}
		for _, v := range res {
			if len(v) != e.svc.Dimensions() {
				return fmt.Errorf("%w: model returned %d, configured %d",
					domain.ErrDimensionMismatch, len(v), e.svc.Dimensions())
			}
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed %d texts (%s): %w", len(texts), intent, err)
	}
	return out, nil
}

// batches splits texts into slices of at most batchSize.
func (e *Embedder) batches(texts []string) [][]string {
	var batches [][]string
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[start:end])
	}
	return batches
}
