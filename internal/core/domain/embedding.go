package domain

// EmbedIntent declares the purpose of a text-to-vector conversion.
// Index and query intents may use different internal weighting in the
// embedding model even though the output shape is identical; mixing them
// silently degrades similarity quality, so the distinction is carried
// through every call.
type EmbedIntent string

const (
	// IntentIndex marks document text embedded during ingestion.
	IntentIndex EmbedIntent = "index"

	// IntentQuery marks a user query embedded for retrieval.
	IntentQuery EmbedIntent = "query"
)
