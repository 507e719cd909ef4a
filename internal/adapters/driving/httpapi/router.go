// Package httpapi exposes the document and chat services over HTTP.
// Chat streaming uses newline-delimited JSON so clients can consume
// events with a line reader.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/formsage/formsage/internal/logger"
)

// userIDHeader is the identity header set by the upstream gateway. The
// API trusts it; authentication itself happens before requests get here.
const userIDHeader = "X-User-ID"

// loggingMiddleware logs request details and latency.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("%s %s - %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// identityMiddleware rejects requests without the gateway identity header.
func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(userIDHeader) == "" {
			writeError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter creates and configures the HTTP router.
func NewRouter(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	r.Use(loggingMiddleware)

	// Health stays open for probes.
	r.HandleFunc("/health", handler.HandleHealth).Methods("GET")

	api := r.NewRoute().Subrouter()
	api.Use(identityMiddleware)
	api.HandleFunc("/documents", handler.HandleRegisterDocument).Methods("POST")
	api.HandleFunc("/documents", handler.HandleListDocuments).Methods("GET")
	api.HandleFunc("/documents/{id}", handler.HandleGetDocument).Methods("GET")
	api.HandleFunc("/documents/{id}/ingest", handler.HandleIngest).Methods("POST")
	api.HandleFunc("/chat/stream", handler.HandleChatStream).Methods("POST")

	return r
}
