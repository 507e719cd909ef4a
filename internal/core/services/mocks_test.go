package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/formsage/formsage/internal/core/domain"
	"github.com/formsage/formsage/internal/core/ports/driven"
)

// mockEmbeddingService is a configurable driven.EmbeddingService.
type mockEmbeddingService struct {
	mu      sync.Mutex
	dims    int
	embedFn func(texts []string, intent domain.EmbedIntent) ([][]float32, error)
	calls   [][]string
	intents []domain.EmbedIntent
}

var _ driven.EmbeddingService = (*mockEmbeddingService)(nil)

func newMockEmbeddingService(dims int) *mockEmbeddingService {
	return &mockEmbeddingService{dims: dims}
}

func (m *mockEmbeddingService) EmbedBatch(_ context.Context, texts []string, intent domain.EmbedIntent) ([][]float32, error) {
	m.mu.Lock()
	batch := make([]string, len(texts))
	copy(batch, texts)
	m.calls = append(m.calls, batch)
	m.intents = append(m.intents, intent)
	m.mu.Unlock()

	if m.embedFn != nil {
		return m.embedFn(texts, intent)
	}

	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, m.dims)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func (m *mockEmbeddingService) Dimensions() int              { return m.dims }
func (m *mockEmbeddingService) ModelName() string            { return "mock-embed" }
func (m *mockEmbeddingService) Ping(context.Context) error   { return nil }
func (m *mockEmbeddingService) Close() error                 { return nil }
func (m *mockEmbeddingService) callCount() int               { m.mu.Lock(); defer m.mu.Unlock(); return len(m.calls) }
func (m *mockEmbeddingService) callSizes() (sizes []int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		sizes = append(sizes, len(c))
	}
	return sizes
}

// mockLLM is a configurable driven.LLMService.
type mockLLM struct {
	mu         sync.Mutex
	generateFn func(prompt string, opts driven.GenerateOptions) (string, error)
	streamFn   func(prompt string, opts driven.GenerateOptions, onToken func(string) error) error
	prompts    []string
}

var _ driven.LLMService = (*mockLLM)(nil)

func (m *mockLLM) Generate(_ context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.generateFn != nil {
		return m.generateFn(prompt, opts)
	}
	return "generated text", nil
}

func (m *mockLLM) GenerateStream(_ context.Context, prompt string, opts driven.GenerateOptions, onToken func(string) error) error {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.streamFn != nil {
		return m.streamFn(prompt, opts, onToken)
	}
	for _, token := range []string{"streamed ", "answer"} {
		if err := onToken(token); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockLLM) ModelName() string          { return "mock-llm" }
func (m *mockLLM) Ping(context.Context) error { return nil }
func (m *mockLLM) Close() error               { return nil }

// mockObjectStore serves bytes from a map.
type mockObjectStore struct {
	objects map[string][]byte
}

var _ driven.ObjectStore = (*mockObjectStore)(nil)

func (m *mockObjectStore) Download(_ context.Context, ref string) ([]byte, error) {
	data, ok := m.objects[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, ref)
	}
	return data, nil
}

// mockAdvisor returns fixed advice.
type mockAdvisor struct {
	advice string
	err    error
}

var _ driven.Advisor = (*mockAdvisor)(nil)

func (m *mockAdvisor) Advise(context.Context, map[string]any) (string, error) {
	return m.advice, m.err
}
