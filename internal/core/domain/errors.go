package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotReady indicates a document has not finished ingestion.
	ErrNotReady = errors.New("document not ready")

	// ErrAlreadyProcessing indicates an ingestion run is already active
	// for the document. A second trigger is a no-op, not a queued run.
	ErrAlreadyProcessing = errors.New("ingestion already in progress")

	// ErrInvalidInput indicates malformed or invalid input.
	// Errors wrapping this are never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoContent indicates extraction produced no text, a terminal
	// ingestion failure.
	ErrNoContent = errors.New("no text content extracted")

	// ErrUnsupportedType indicates an unknown MIME type for extraction.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrDimensionMismatch indicates the embedding service returned vectors
	// of a different size than configured. This is an unrecoverable
	// configuration error, not a per-call retry case.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured. Retrieval and ingestion are disabled without it.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrLLMUnavailable indicates the generation service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrFieldNotFound indicates no known template field matched a label.
	// Callers treat this as an expected result, not a failure.
	ErrFieldNotFound = errors.New("field location not found")
)
