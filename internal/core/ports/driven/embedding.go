// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import (
	"context"

	"github.com/formsage/formsage/internal/core/domain"
)

// EmbeddingService converts text into fixed-dimension vectors via an
// external embedding model.
//
// Adapters perform a single provider call per invocation; batch-size
// capping, retries and parallel dispatch live in the core embedder service
// that wraps this port.
//
// Implementations may include:
//   - Gemini (text-embedding-004)
//   - Ollama (nomic-embed-text)
type EmbeddingService interface {
	// EmbedBatch generates one vector per input text, in input order.
	// The intent distinguishes document-indexing from query embedding and
	// must be forwarded to the model.
	EmbedBatch(ctx context.Context, texts []string, intent domain.EmbedIntent) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g. 768).
	// This is fixed per deployment and must match the index store schema.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable with a lightweight request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
