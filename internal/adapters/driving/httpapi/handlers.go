package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/formsage/formsage/internal/core/domain"
	"github.com/formsage/formsage/internal/core/ports/driving"
	"github.com/formsage/formsage/internal/logger"
)

// Handler holds the services the HTTP API exposes.
type Handler struct {
	documents driving.DocumentService
	ingestion driving.IngestionService
	chat      driving.ChatService
	version   string
}

// NewHandler creates a new Handler.
func NewHandler(documents driving.DocumentService, ingestion driving.IngestionService, chat driving.ChatService, version string) *Handler {
	return &Handler{
		documents: documents,
		ingestion: ingestion,
		chat:      chat,
		version:   version,
	}
}

// registerDocumentRequest is the POST /documents request body.
type registerDocumentRequest struct {
	Filename   string `json:"filename"`
	StorageRef string `json:"storage_ref"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
	FilingYear int    `json:"filing_year"`
}

// documentResponse is the wire form of a document record.
type documentResponse struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	StorageRef   string    `json:"storage_ref"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	FilingYear   int       `json:"filing_year,omitempty"`
	IngestStatus string    `json:"ingest_status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// chatRequest is the POST /chat/stream request body.
type chatRequest struct {
	SessionID  string `json:"session_id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	Question   string `json:"question"`
	Language   string `json:"language,omitempty"`
	Mode       string `json:"mode,omitempty"`
}

// HandleRegisterDocument handles POST /documents.
func (h *Handler) HandleRegisterDocument(w http.ResponseWriter, r *http.Request) {
	var req registerDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	doc, err := h.documents.Register(r.Context(), driving.RegisterDocumentRequest{
		Filename:   req.Filename,
		StorageRef: req.StorageRef,
		MimeType:   req.MimeType,
		SizeBytes:  req.SizeBytes,
		FilingYear: req.FilingYear,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// HandleListDocuments handles GET /documents with an optional
// filing_year filter.
func (h *Handler) HandleListDocuments(w http.ResponseWriter, r *http.Request) {
	var filingYear int
	if raw := r.URL.Query().Get("filing_year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid filing_year: "+raw)
			return
		}
		filingYear = year
	}

	docs, err := h.documents.List(r.Context(), filingYear)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := make([]documentResponse, len(docs))
	for i := range docs {
		resp[i] = toDocumentResponse(&docs[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": resp})
}

// HandleGetDocument handles GET /documents/{id}.
func (h *Handler) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documents.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// HandleIngest handles POST /documents/{id}/ingest. It returns as soon
// as the job is accepted; progress is observed via document status.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	result, err := h.ingestion.Start(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"document_id": id,
		"status":      result,
	})
}

// HandleChatStream handles POST /chat/stream. Events are written as
// newline-delimited JSON; the first line carries the session id. An
// interrupted generation ends the response without a done event.
func (h *Handler) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	events, err := h.chat.Ask(r.Context(), driving.AskRequest{
		SessionID:  req.SessionID,
		DocumentID: req.DocumentID,
		Question:   req.Question,
		Language:   req.Language,
		Mode:       req.Mode,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for event := range events {
		if err := enc.Encode(event); err != nil {
			logger.Debug("Chat stream write failed: %v", err)
			return
		}
		flusher.Flush()
	}
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// toDocumentResponse maps a domain document onto the wire form.
func toDocumentResponse(doc *domain.Document) documentResponse {
	return documentResponse{
		ID:           doc.ID,
		Filename:     doc.Filename,
		StorageRef:   doc.StorageRef,
		MimeType:     doc.MimeType,
		SizeBytes:    doc.SizeBytes,
		FilingYear:   doc.FilingYear,
		IngestStatus: string(doc.IngestStatus),
		ErrorMessage: doc.ErrorMessage,
		Summary:      doc.Summary,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

// writeDomainError maps sentinel errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, domain.ErrLLMUnavailable), errors.Is(err, domain.ErrEmbeddingUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Debug("Response write failed: %v", err)
	}
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
