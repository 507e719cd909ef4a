// Package driving provides interfaces for application entry points (primary/inbound ports).
package driving

import "context"

// Trigger outcomes for an ingestion request.
const (
	TriggerStarted           = "ingestion_started"
	TriggerAlreadyProcessing = "already_processing"
)

// IngestionService accepts asynchronous ingestion jobs.
type IngestionService interface {
	// Start triggers ingestion of a document as a background job and
	// returns as soon as the job is accepted. The result is one of
	// TriggerStarted or TriggerAlreadyProcessing; the eventual outcome is
	// observed by polling the document status. Failures inside the job
	// never propagate to the caller.
	Start(ctx context.Context, documentID string) (string, error)
}
