package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formsage/formsage/internal/adapters/driven/storage/memory"
	"github.com/formsage/formsage/internal/chunker"
	"github.com/formsage/formsage/internal/core/domain"
	"github.com/formsage/formsage/internal/core/ports/driven"
	"github.com/formsage/formsage/internal/core/ports/driving"
	"github.com/formsage/formsage/internal/extract"
)

type pipelineFixture struct {
	pipeline   *IngestionPipeline
	docStore   *memory.DocumentStore
	chunkStore *memory.ChunkStore
	objects    *mockObjectStore
	embed      *mockEmbeddingService
	llm        *mockLLM
}

func newPipelineFixture(t *testing.T, llm driven.LLMService) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		docStore:   memory.NewDocumentStore(),
		chunkStore: memory.NewChunkStore(),
		objects:    &mockObjectStore{objects: map[string][]byte{}},
		embed:      newMockEmbeddingService(4),
	}
	if m, ok := llm.(*mockLLM); ok {
		f.llm = m
	}
	embedder := NewEmbedder(f.embed, WithRetryPolicy(fastPolicy(1)))
	f.pipeline = NewIngestionPipeline(
		f.docStore,
		f.chunkStore,
		f.objects,
		extract.NewRegistry(extract.NewPlainTextExtractor()),
		chunker.New(),
		embedder,
		llm,
	)
	return f
}

func (f *pipelineFixture) saveDoc(t *testing.T, doc *domain.Document) {
	t.Helper()
	require.NoError(t, f.docStore.SaveDocument(context.Background(), doc))
}

func (f *pipelineFixture) runAndWait(t *testing.T, documentID string) {
	t.Helper()
	done := make(chan struct{})
	f.pipeline.onDone = func(string) { close(done) }

	status, err := f.pipeline.Start(context.Background(), documentID)
	require.NoError(t, err)
	require.Equal(t, driving.TriggerStarted, status)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ingestion did not finish")
	}
}

func textDoc(id string) *domain.Document {
	return &domain.Document{
		ID:           id,
		Filename:     "w2.txt",
		StorageRef:   "objects/" + id,
		MimeType:     "text/plain",
		IngestStatus: domain.IngestPending,
	}
}

func TestIngestionPipeline_Start_HappyPath(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, &mockLLM{generateFn: func(string, driven.GenerateOptions) (string, error) {
		return "A W-2 wage statement.", nil
	}})

	doc := textDoc("doc-1")
	f.saveDoc(t, doc)
	f.objects.objects[doc.StorageRef] = []byte("Wages: 52000\nFederal tax withheld: 6400\n")

	f.runAndWait(t, doc.ID)

	got, err := f.docStore.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IngestReady, got.IngestStatus)
	assert.Empty(t, got.ErrorMessage)
	assert.Equal(t, "A W-2 wage statement.", got.Summary)

	chunks, err := f.chunkStore.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Len(t, c.Embedding, 4)
	}
}

func TestIngestionPipeline_Start_AlreadyProcessing(t *testing.T) {
	f := newPipelineFixture(t, nil)
	doc := textDoc("doc-1")
	doc.IngestStatus = domain.IngestProcessing
	f.saveDoc(t, doc)

	status, err := f.pipeline.Start(context.Background(), doc.ID)

	require.NoError(t, err)
	assert.Equal(t, driving.TriggerAlreadyProcessing, status)
}

func TestIngestionPipeline_Start_UnknownDocument(t *testing.T) {
	f := newPipelineFixture(t, nil)

	_, err := f.pipeline.Start(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngestionPipeline_DownloadFailureRecordsTruncatedError(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, nil)
	doc := textDoc("doc-1")
	f.saveDoc(t, doc)
	// Object missing; the download error carries the full storage ref.
	doc.StorageRef = "objects/" + strings.Repeat("x", 600)
	require.NoError(t, f.docStore.SaveDocument(ctx, doc))

	f.runAndWait(t, doc.ID)

	got, err := f.docStore.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IngestError, got.IngestStatus)
	assert.NotEmpty(t, got.ErrorMessage)
	assert.LessOrEqual(t, len(got.ErrorMessage), domain.MaxErrorMessageLen)
}

func TestIngestionPipeline_EmbeddingFailureLeavesNoChunks(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, nil)
	f.embed.embedFn = func([]string, domain.EmbedIntent) ([][]float32, error) {
		return nil, errors.New("embedding backend unreachable")
	}

	doc := textDoc("doc-1")
	f.saveDoc(t, doc)
	f.objects.objects[doc.StorageRef] = []byte("Wages: 52000\nFederal tax withheld: 6400\n")

	f.runAndWait(t, doc.ID)

	got, err := f.docStore.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IngestError, got.IngestStatus)
	assert.Contains(t, got.ErrorMessage, "embed chunks")
	assert.LessOrEqual(t, len(got.ErrorMessage), domain.MaxErrorMessageLen)

	chunks, err := f.chunkStore.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks, "a failed run must store no chunks")
}

func TestIngestionPipeline_UnsupportedTypeFails(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, nil)
	doc := textDoc("doc-1")
	doc.MimeType = "image/png"
	f.saveDoc(t, doc)
	f.objects.objects[doc.StorageRef] = []byte{0x89, 0x50}

	f.runAndWait(t, doc.ID)

	got, err := f.docStore.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IngestError, got.IngestStatus)
	assert.Contains(t, got.ErrorMessage, "unsupported")
}

func TestIngestionPipeline_ReingestReplacesChunks(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, nil)
	doc := textDoc("doc-1")
	doc.IngestStatus = domain.IngestReady
	f.saveDoc(t, doc)
	f.objects.objects[doc.StorageRef] = []byte("fresh content after amendment")

	stale := domain.Chunk{ID: "stale", DocumentID: doc.ID, Index: 0, Text: "old content"}
	require.NoError(t, f.chunkStore.SaveChunks(ctx, []domain.Chunk{stale}))

	f.runAndWait(t, doc.ID)

	chunks, err := f.chunkStore.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.NotEqual(t, "stale", c.ID)
		assert.NotContains(t, c.Text, "old content")
	}
}

func TestIngestionPipeline_AutoSummaryIdempotent(t *testing.T) {
	ctx := context.Background()
	calls := 0
	f := newPipelineFixture(t, &mockLLM{generateFn: func(string, driven.GenerateOptions) (string, error) {
		calls++
		return "summary", nil
	}})
	doc := textDoc("doc-1")
	f.saveDoc(t, doc)
	f.objects.objects[doc.StorageRef] = []byte("some document body")

	f.runAndWait(t, doc.ID)
	require.Equal(t, 1, calls)

	// Second ingestion finds the stored summary and skips generation.
	f.runAndWait(t, doc.ID)
	assert.Equal(t, 1, calls)

	got, err := f.docStore.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "summary", got.Summary)
}

func TestIngestionPipeline_SummaryFailureKeepsReady(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, &mockLLM{generateFn: func(string, driven.GenerateOptions) (string, error) {
		return "", errors.New("model overloaded")
	}})
	doc := textDoc("doc-1")
	f.saveDoc(t, doc)
	f.objects.objects[doc.StorageRef] = []byte("some document body")

	f.runAndWait(t, doc.ID)

	got, err := f.docStore.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IngestReady, got.IngestStatus)
	assert.Empty(t, got.Summary)
}

func TestDocumentManager_Register(t *testing.T) {
	store := memory.NewDocumentStore()
	m := NewDocumentManager(store, func() string { return "fixed-id" })

	doc, err := m.Register(context.Background(), driving.RegisterDocumentRequest{
		Filename:   "1040.pdf",
		StorageRef: "objects/1040.pdf",
		SizeBytes:  1234,
		FilingYear: 2025,
	})

	require.NoError(t, err)
	assert.Equal(t, "fixed-id", doc.ID)
	assert.Equal(t, "application/pdf", doc.MimeType)
	assert.Equal(t, domain.IngestPending, doc.IngestStatus)
	assert.False(t, doc.CreatedAt.IsZero())

	got, err := m.Get(context.Background(), "fixed-id")
	require.NoError(t, err)
	assert.Equal(t, doc.Filename, got.Filename)
}

func TestDocumentManager_Register_MissingFields(t *testing.T) {
	m := NewDocumentManager(memory.NewDocumentStore(), func() string { return "id" })

	_, err := m.Register(context.Background(), driving.RegisterDocumentRequest{Filename: "a.pdf"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = m.Register(context.Background(), driving.RegisterDocumentRequest{StorageRef: "ref"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentManager_List_FiltersByYear(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDocumentStore()
	i := 0
	m := NewDocumentManager(store, func() string { i++; return string(rune('a' + i)) })

	for _, year := range []int{2024, 2025, 2025} {
		_, err := m.Register(ctx, driving.RegisterDocumentRequest{
			Filename: "doc.pdf", StorageRef: "ref", FilingYear: year,
		})
		require.NoError(t, err)
	}

	all, err := m.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	filtered, err := m.List(ctx, 2025)
	require.NoError(t, err)
	assert.Len(t, filtered, 2)
}
