package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/formsage/formsage/internal/adapters/driven/advisor/httpadvisor"
	embgemini "github.com/formsage/formsage/internal/adapters/driven/embedding/gemini"
	embollama "github.com/formsage/formsage/internal/adapters/driven/embedding/ollama"
	llmgemini "github.com/formsage/formsage/internal/adapters/driven/llm/gemini"
	objectfs "github.com/formsage/formsage/internal/adapters/driven/objectstore/fs"
	"github.com/formsage/formsage/internal/adapters/driven/storage/postgres"
	"github.com/formsage/formsage/internal/adapters/driven/storage/sqlite"
	"github.com/formsage/formsage/internal/chunker"
	"github.com/formsage/formsage/internal/config"
	"github.com/formsage/formsage/internal/core/ports/driven"
	"github.com/formsage/formsage/internal/core/services"
	"github.com/formsage/formsage/internal/extract"
	"github.com/formsage/formsage/internal/highlight"
	"github.com/formsage/formsage/internal/logger"
)

// app is the composition root: stores, adapters and services wired per
// the loaded configuration.
type app struct {
	cfg config.Config

	documents *services.DocumentManager
	ingestion *services.IngestionPipeline
	chat      *services.AnswerOrchestrator

	closers []func()
}

// newApp builds all adapters and services from the configuration.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	docStore, chunkStore, chatStore, err := a.buildStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embeddingSvc, err := buildEmbeddingService(cfg.Embedding)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() { embeddingSvc.Close() }) //nolint:errcheck

	var llm driven.LLMService
	if cfg.LLM.APIKey != "" {
		llm, err = llmgemini.NewLLMService(llmgemini.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("building llm service: %w", err)
		}
		a.closers = append(a.closers, func() { llm.Close() }) //nolint:errcheck
	} else {
		logger.Warn("No LLM API key configured; answering and auto-summaries are disabled")
	}

	embedder := services.NewEmbedder(embeddingSvc)
	retriever := services.NewRetriever(chunkStore, embedder)
	chk := chunker.New(
		chunker.WithChunkSize(cfg.Chunking.Size),
		chunker.WithOverlap(cfg.Chunking.Overlap),
	)

	var advisor driven.Advisor
	if cfg.Advisor.URL != "" {
		advisor = httpadvisor.New(cfg.Advisor.URL, 0)
	}

	a.documents = services.NewDocumentManager(docStore, func() string { return uuid.New().String() })
	a.ingestion = services.NewIngestionPipeline(
		docStore,
		chunkStore,
		objectfs.New(cfg.Objects.Dir),
		extract.DefaultRegistry(),
		chk,
		embedder,
		llm,
	)
	a.chat = services.NewAnswerOrchestrator(
		docStore,
		chatStore,
		retriever,
		llm,
		highlight.New(),
		advisor,
		services.RetrievalConfig{
			ChatTopK:           cfg.Retrieval.ChatTopK,
			ChatThreshold:      cfg.Retrieval.ChatThreshold,
			HighlightTopK:      cfg.Retrieval.HighlightTopK,
			HighlightThreshold: cfg.Retrieval.HighlightThreshold,
		},
	)

	return a, nil
}

// buildStores selects the persistence backend.
func (a *app) buildStores(ctx context.Context, cfg config.Config) (driven.DocumentStore, driven.ChunkStore, driven.ChatStore, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		store, err := postgres.NewStore(ctx, cfg.Storage.PostgresURL, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening postgres store: %w", err)
		}
		if err := store.Initialize(ctx); err != nil {
			store.Close()
			return nil, nil, nil, fmt.Errorf("initialising postgres schema: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store.DocumentStore(), store.ChunkStore(), store.ChatStore(), nil

	default:
		store, err := sqlite.NewStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		a.closers = append(a.closers, func() { store.Close() }) //nolint:errcheck
		return store.DocumentStore(), store.ChunkStore(), store.ChatStore(), nil
	}
}

// buildEmbeddingService selects the embedding provider.
func buildEmbeddingService(cfg config.EmbeddingConfig) (driven.EmbeddingService, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		return embollama.NewEmbeddingService(embollama.Config{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil
	default:
		svc, err := embgemini.NewEmbeddingService(embgemini.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("building embedding service: %w", err)
		}
		return svc, nil
	}
}

// Close releases adapters in reverse construction order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// waitForStatus polls a document until it leaves the processing state or
// the context expires. Used by the CLI ingest command.
func (a *app) waitForStatus(ctx context.Context, documentID string, interval time.Duration) (string, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			doc, err := a.documents.Get(ctx, documentID)
			if err != nil {
				return "", err
			}
			switch doc.IngestStatus {
			case "pending", "processing":
				continue
			default:
				if doc.ErrorMessage != "" {
					return string(doc.IngestStatus), fmt.Errorf("%s", doc.ErrorMessage)
				}
				return string(doc.IngestStatus), nil
			}
		}
	}
}
