package services

import (
	"context"
	"fmt"
	"time"

	"github.com/formsage/formsage/internal/chunker"
	"github.com/formsage/formsage/internal/core/domain"
	"github.com/formsage/formsage/internal/core/ports/driven"
	"github.com/formsage/formsage/internal/core/ports/driving"
	"github.com/formsage/formsage/internal/logger"
)

// Ensure IngestionPipeline implements the interface.
var _ driving.IngestionService = (*IngestionPipeline)(nil)

// IngestionPipeline drives a document through extraction, chunking,
// embedding and storage, and owns the document lifecycle state machine:
// pending -> processing -> {ready | error}.
type IngestionPipeline struct {
	docStore    driven.DocumentStore
	chunkStore  driven.ChunkStore
	objectStore driven.ObjectStore
	extractors  driven.ExtractorRegistry
	chunker     *chunker.Chunker
	embedder    *Embedder

	// llm is optional; when set, a one-time auto-summary is generated
	// after the first successful transition to ready.
	llm driven.LLMService

	// summaryLanguage is the language for auto-summaries.
	summaryLanguage string

	// onDone is invoked after a background run finishes, for tests.
	onDone func(documentID string)
}

// NewIngestionPipeline creates the pipeline. llm may be nil to disable
// auto-summaries.
func NewIngestionPipeline(
	docStore driven.DocumentStore,
	chunkStore driven.ChunkStore,
	objectStore driven.ObjectStore,
	extractors driven.ExtractorRegistry,
	chk *chunker.Chunker,
	embedder *Embedder,
	llm driven.LLMService,
) *IngestionPipeline {
	return &IngestionPipeline{
		docStore:        docStore,
		chunkStore:      chunkStore,
		objectStore:     objectStore,
		extractors:      extractors,
		chunker:         chk,
		embedder:        embedder,
		llm:             llm,
		summaryLanguage: "en",
	}
}

// Start triggers ingestion as a fire-and-forget background job. A request
// against a document already processing is a no-op reporting the current
// state. The state check happens before scheduling rather than under a
// lock, so two near-simultaneous triggers can race into a duplicate run;
// that narrow window is accepted instead of requiring a lock service.
func (p *IngestionPipeline) Start(ctx context.Context, documentID string) (string, error) {
	doc, err := p.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("get document: %w", err)
	}

	if doc.IngestStatus == domain.IngestProcessing {
		logger.Debug("Ingestion already running for document %s", documentID)
		return driving.TriggerAlreadyProcessing, nil
	}

	go func() {
		// Detached from the trigger request: the caller already returned.
		p.run(context.Background(), doc)
		if p.onDone != nil {
			p.onDone(documentID)
		}
	}()

	return driving.TriggerStarted, nil
}

// run executes one ingestion attempt. Every failure after processing
// begins is caught here and mapped to the error state; nothing escapes.
func (p *IngestionPipeline) run(ctx context.Context, doc *domain.Document) {
	logger.Section("Ingestion")
	logger.Info("Ingesting document %s (%s)", doc.ID, doc.Filename)

	if err := p.docStore.SetStatus(ctx, doc.ID, domain.IngestProcessing, ""); err != nil {
		logger.Warn("Failed to mark document %s processing: %v", doc.ID, err)
		return
	}

	if err := p.ingest(ctx, doc); err != nil {
		logger.Warn("Ingestion failed for document %s: %v", doc.ID, err)
		msg := domain.TruncateError(err.Error())
		if serr := p.docStore.SetStatus(ctx, doc.ID, domain.IngestError, msg); serr != nil {
			logger.Warn("Failed to record ingestion error for %s: %v", doc.ID, serr)
		}
		return
	}

	if err := p.docStore.SetStatus(ctx, doc.ID, domain.IngestReady, ""); err != nil {
		logger.Warn("Failed to mark document %s ready: %v", doc.ID, err)
		return
	}
	logger.Info("Document %s ready", doc.ID)

	p.autoSummarise(ctx, doc.ID)
}

// ingest performs the extract -> chunk -> embed -> store sequence.
func (p *IngestionPipeline) ingest(ctx context.Context, doc *domain.Document) error {
	// Re-ingestion replaces the chunk set wholesale: clear any chunks
	// from a previous run before producing new ones.
	if err := p.chunkStore.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("clear existing chunks: %w", err)
	}

	data, err := p.objectStore.Download(ctx, doc.StorageRef)
	if err != nil {
		return fmt.Errorf("download %s: %w", doc.StorageRef, err)
	}

	pages, err := p.extractors.Extract(ctx, doc.MimeType, data)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	chunks := p.chunker.Chunk(doc.ID, pages)
	if len(chunks) == 0 {
		return domain.ErrNoContent
	}
	logger.Debug("Chunked document %s into %d chunks", doc.ID, len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	if err := p.chunkStore.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}

	return nil
}

// autoSummarise generates the one-time summary after a document reaches
// ready. The existing-summary check makes repeated ready transitions
// idempotent, and a summary failure never affects the ready state.
func (p *IngestionPipeline) autoSummarise(ctx context.Context, documentID string) {
	if p.llm == nil {
		return
	}

	doc, err := p.docStore.GetDocument(ctx, documentID)
	if err != nil || doc.Summary != "" {
		return
	}

	chunks, err := p.chunkStore.ListByDocument(ctx, documentID)
	if err != nil || len(chunks) == 0 {
		return
	}

	prompt := fmt.Sprintf(summaryPrompt, languageName(p.summaryLanguage), buildFullContext(chunks))
	summary, err := p.llm.Generate(ctx, prompt, driven.GenerateOptions{
		MaxTokens:   512,
		Temperature: 0.2,
	})
	if err != nil {
		logger.Warn("Auto-summary failed for document %s: %v", documentID, err)
		return
	}

	if err := p.docStore.SetSummary(ctx, documentID, summary); err != nil {
		logger.Warn("Failed to store summary for document %s: %v", documentID, err)
	}
}

// DocumentManager implements the document registration and lookup port.
type DocumentManager struct {
	docStore driven.DocumentStore
	now      func() time.Time
	newID    func() string
}

// Ensure DocumentManager implements the interface.
var _ driving.DocumentService = (*DocumentManager)(nil)

// NewDocumentManager creates a document manager.
func NewDocumentManager(docStore driven.DocumentStore, newID func() string) *DocumentManager {
	return &DocumentManager{
		docStore: docStore,
		now:      time.Now,
		newID:    newID,
	}
}

// Register creates a document record in the pending state.
func (m *DocumentManager) Register(ctx context.Context, req driving.RegisterDocumentRequest) (*domain.Document, error) {
	if req.Filename == "" || req.StorageRef == "" {
		return nil, fmt.Errorf("%w: filename and storage ref are required", domain.ErrInvalidInput)
	}
	if req.MimeType == "" {
		req.MimeType = "application/pdf"
	}

	now := m.now().UTC()
	doc := &domain.Document{
		ID:           m.newID(),
		Filename:     req.Filename,
		StorageRef:   req.StorageRef,
		MimeType:     req.MimeType,
		SizeBytes:    req.SizeBytes,
		FilingYear:   req.FilingYear,
		IngestStatus: domain.IngestPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.docStore.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	return doc, nil
}

// Get retrieves a document by ID.
func (m *DocumentManager) Get(ctx context.Context, id string) (*domain.Document, error) {
	return m.docStore.GetDocument(ctx, id)
}

// List returns documents for a filing year, newest first.
func (m *DocumentManager) List(ctx context.Context, filingYear int) ([]domain.Document, error) {
	return m.docStore.ListDocuments(ctx, filingYear)
}
