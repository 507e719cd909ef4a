package driven

import "context"

// LLMService provides text generation for answering, classification and
// summarisation.
//
// Implementations may include:
//   - Gemini (gemini-1.5-flash)
//   - Ollama (local models)
type LLMService interface {
	// Generate produces a complete text response for a prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// GenerateStream produces a response incrementally, invoking onToken
	// for each text fragment as it arrives. Fragment granularity is not
	// guaranteed; concatenating the fragments yields the full response.
	// A non-nil error from onToken stops generation.
	GenerateStream(ctx context.Context, prompt string, opts GenerateOptions, onToken func(token string) error) error

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable with a lightweight request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// GenerateOptions configures text generation behaviour.
type GenerateOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64

	// SystemPrompt is prepended as a system instruction when set.
	SystemPrompt string

	// JSONOutput constrains the response to a single JSON object.
	JSONOutput bool
}
