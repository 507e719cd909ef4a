package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formsage/formsage/internal/core/domain"
	"github.com/formsage/formsage/internal/core/ports/driving"
)

type stubDocumentService struct {
	registerFn func(driving.RegisterDocumentRequest) (*domain.Document, error)
	getFn      func(string) (*domain.Document, error)
	listFn     func(int) ([]domain.Document, error)
}

func (s *stubDocumentService) Register(_ context.Context, req driving.RegisterDocumentRequest) (*domain.Document, error) {
	return s.registerFn(req)
}

func (s *stubDocumentService) Get(_ context.Context, id string) (*domain.Document, error) {
	return s.getFn(id)
}

func (s *stubDocumentService) List(_ context.Context, filingYear int) ([]domain.Document, error) {
	return s.listFn(filingYear)
}

type stubIngestionService struct {
	startFn func(string) (string, error)
}

func (s *stubIngestionService) Start(_ context.Context, documentID string) (string, error) {
	return s.startFn(documentID)
}

type stubChatService struct {
	askFn func(driving.AskRequest) (<-chan domain.ChatEvent, error)
}

func (s *stubChatService) Ask(_ context.Context, req driving.AskRequest) (<-chan domain.ChatEvent, error) {
	return s.askFn(req)
}

func newTestRouter(documents driving.DocumentService, ingestion driving.IngestionService, chat driving.ChatService) http.Handler {
	return NewRouter(NewHandler(documents, ingestion, chat, "test"))
}

func authedRequest(method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set(userIDHeader, "user-1")
	return req
}

func TestRouter_Health_OpenWithoutIdentity(t *testing.T) {
	router := newTestRouter(nil, nil, nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestRouter_MissingIdentityHeader(t *testing.T) {
	router := newTestRouter(nil, nil, nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, httptest.NewRequest("GET", "/documents", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), userIDHeader)
}

func TestHandleRegisterDocument(t *testing.T) {
	docs := &stubDocumentService{
		registerFn: func(req driving.RegisterDocumentRequest) (*domain.Document, error) {
			return &domain.Document{
				ID:           "doc-1",
				Filename:     req.Filename,
				StorageRef:   req.StorageRef,
				MimeType:     req.MimeType,
				IngestStatus: domain.IngestPending,
			}, nil
		},
	}
	router := newTestRouter(docs, nil, nil)
	rec := httptest.NewRecorder()

	body := []byte(`{"filename":"w2.pdf","storage_ref":"objects/w2.pdf","mime_type":"application/pdf"}`)
	router.ServeHTTP(rec, authedRequest("POST", "/documents", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp documentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "doc-1", resp.ID)
	assert.Equal(t, "w2.pdf", resp.Filename)
	assert.Equal(t, "pending", resp.IngestStatus)
}

func TestHandleRegisterDocument_InvalidJSON(t *testing.T) {
	router := newTestRouter(&stubDocumentService{}, nil, nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, authedRequest("POST", "/documents", []byte("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRegisterDocument_ValidationError(t *testing.T) {
	docs := &stubDocumentService{
		registerFn: func(driving.RegisterDocumentRequest) (*domain.Document, error) {
			return nil, fmt.Errorf("%w: filename and storage ref are required", domain.ErrInvalidInput)
		},
	}
	router := newTestRouter(docs, nil, nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, authedRequest("POST", "/documents", []byte(`{}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListDocuments_FilingYearFilter(t *testing.T) {
	var gotYear int
	docs := &stubDocumentService{
		listFn: func(filingYear int) ([]domain.Document, error) {
			gotYear = filingYear
			return []domain.Document{{ID: "doc-1"}}, nil
		},
	}
	router := newTestRouter(docs, nil, nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, authedRequest("GET", "/documents?filing_year=2025", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2025, gotYear)

	var body struct {
		Documents []documentResponse `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Documents, 1)
}

func TestHandleListDocuments_BadFilingYear(t *testing.T) {
	router := newTestRouter(&stubDocumentService{}, nil, nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, authedRequest("GET", "/documents?filing_year=soon", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetDocument_NotFound(t *testing.T) {
	docs := &stubDocumentService{
		getFn: func(string) (*domain.Document, error) {
			return nil, domain.ErrNotFound
		},
	}
	router := newTestRouter(docs, nil, nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, authedRequest("GET", "/documents/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleIngest_Accepted(t *testing.T) {
	ing := &stubIngestionService{
		startFn: func(documentID string) (string, error) {
			return driving.TriggerStarted, nil
		},
	}
	router := newTestRouter(nil, ing, nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, authedRequest("POST", "/documents/doc-1/ingest", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "doc-1", body["document_id"])
	assert.Equal(t, driving.TriggerStarted, body["status"])
}

func TestHandleIngest_AlreadyProcessing(t *testing.T) {
	ing := &stubIngestionService{
		startFn: func(string) (string, error) {
			return driving.TriggerAlreadyProcessing, nil
		},
	}
	router := newTestRouter(nil, ing, nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, authedRequest("POST", "/documents/doc-1/ingest", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), driving.TriggerAlreadyProcessing)
}

func TestHandleChatStream_NDJSON(t *testing.T) {
	chat := &stubChatService{
		askFn: func(req driving.AskRequest) (<-chan domain.ChatEvent, error) {
			events := make(chan domain.ChatEvent, 8)
			events <- domain.ChatEvent{Type: domain.EventStatus, SessionID: "sess-1", Stage: domain.StageReading}
			events <- domain.ChatEvent{Type: domain.EventAnswerToken, Token: "Your wages "}
			events <- domain.ChatEvent{Type: domain.EventAnswerToken, Token: "are 52000."}
			events <- domain.ChatEvent{Type: domain.EventDone, Sources: []domain.MessageSource{{ChunkID: "c1", Page: 1}}}
			close(events)
			return events, nil
		},
	}
	router := newTestRouter(nil, nil, chat)
	rec := httptest.NewRecorder()

	body := []byte(`{"document_id":"doc-1","question":"what are my wages?"}`)
	router.ServeHTTP(rec, authedRequest("POST", "/chat/stream", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	var events []domain.ChatEvent
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev domain.ChatEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev), "line: %s", line)
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 4)
	assert.Equal(t, "sess-1", events[0].SessionID)
	assert.Equal(t, domain.EventDone, events[3].Type)
	require.Len(t, events[3].Sources, 1)
	assert.Equal(t, "c1", events[3].Sources[0].ChunkID)

	var answer strings.Builder
	for _, ev := range events {
		if ev.Type == domain.EventAnswerToken {
			answer.WriteString(ev.Token)
		}
	}
	assert.Equal(t, "Your wages are 52000.", answer.String())
}

func TestHandleChatStream_InterruptedStreamHasNoDone(t *testing.T) {
	chat := &stubChatService{
		askFn: func(driving.AskRequest) (<-chan domain.ChatEvent, error) {
			events := make(chan domain.ChatEvent, 4)
			events <- domain.ChatEvent{Type: domain.EventStatus, SessionID: "sess-1", Stage: domain.StageReading}
			events <- domain.ChatEvent{Type: domain.EventAnswerToken, Token: "partial"}
			close(events)
			return events, nil
		},
	}
	router := newTestRouter(nil, nil, chat)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, authedRequest("POST", "/chat/stream", []byte(`{"question":"q"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"type":"done"`)
}

func TestHandleChatStream_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"invalid input", domain.ErrInvalidInput, http.StatusBadRequest},
		{"not ready", domain.ErrNotReady, http.StatusConflict},
		{"llm unavailable", domain.ErrLLMUnavailable, http.StatusServiceUnavailable},
		{"embedding unavailable", domain.ErrEmbeddingUnavailable, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chat := &stubChatService{
				askFn: func(driving.AskRequest) (<-chan domain.ChatEvent, error) {
					return nil, fmt.Errorf("ask: %w", tc.err)
				},
			}
			router := newTestRouter(nil, nil, chat)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, authedRequest("POST", "/chat/stream", []byte(`{"question":"q"}`)))

			assert.Equal(t, tc.code, rec.Code)
		})
	}
}
