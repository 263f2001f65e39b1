// Package api provides HTTP handlers for the research API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/brieflab/internal/domain"
	"github.com/ashureev/brieflab/internal/research"
	"github.com/ashureev/brieflab/internal/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// Runner executes research requests.
type Runner interface {
	Run(ctx context.Context, req research.Request, observers ...research.StageObserver) (domain.Brief, error)
}

// Handler provides common handler utilities.
type Handler struct {
	pipeline Runner
	store    store.ConversationStore
	logger   *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(pipeline Runner, conversations store.ConversationStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		pipeline: pipeline,
		store:    conversations,
		logger:   logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// statusForError maps pipeline and store errors to an HTTP status and a
// message safe to show to clients.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, research.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidConversationID):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "research request timed out"
	case errors.Is(err, context.Canceled):
		return 499, "request cancelled"
	case errors.Is(err, research.ErrGenerationMalformed):
		return http.StatusBadGateway, "model returned a malformed brief"
	case errors.Is(err, research.ErrGenerationFailed):
		return http.StatusBadGateway, "generation service unavailable"
	case errors.Is(err, store.ErrStoreWrite):
		return http.StatusInternalServerError, "failed to persist brief"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
