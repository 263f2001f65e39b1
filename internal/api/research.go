package api

import (
	"net/http"

	"github.com/ashureev/brieflab/internal/domain"
	"github.com/ashureev/brieflab/internal/identity"
	"github.com/ashureev/brieflab/internal/research"
	"github.com/go-chi/chi/v5"
)

// ConversationHeader carries the resolved conversation id on /research responses.
const ConversationHeader = "X-Conversation-ID"

// ResearchHandler handles research and conversation history endpoints.
type ResearchHandler struct {
	*Handler
}

// NewResearchHandler creates a new research handler.
func NewResearchHandler(base *Handler) *ResearchHandler {
	return &ResearchHandler{Handler: base}
}

// RegisterRoutes registers research routes.
func (h *ResearchHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api", h.Root)
	r.Route("/research", func(r chi.Router) {
		r.Post("/", h.Research)
		r.Get("/conversations", h.ListConversations)
		r.Get("/history/{conversation_id}", h.History)
		r.Delete("/history/{conversation_id}", h.ClearHistory)
	})
}

// Root reports that the API is up.
func (h *ResearchHandler) Root(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"message": "Research Assistant API is running!"})
}

// Research runs the pipeline for one topic and returns the persisted Brief.
func (h *ResearchHandler) Research(w http.ResponseWriter, r *http.Request) {
	var req research.Request
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	owner := identity.OwnerFromContext(r.Context())
	key, err := domain.NewConversationKey(owner, req.ConversationID)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Owner = key.Owner
	req.ConversationID = key.ID

	brief, err := h.pipeline.Run(r.Context(), req)
	if err != nil {
		status, msg := statusForError(err)
		h.logger.Error("Research request failed", "conversation_id", key.ID, "owner", key.Owner, "status", status, "error", err)
		Error(w, status, msg)
		return
	}

	w.Header().Set(ConversationHeader, key.ID)
	JSON(w, http.StatusOK, brief)
}

// History returns every brief of a conversation.
func (h *ResearchHandler) History(w http.ResponseWriter, r *http.Request) {
	key, ok := h.conversationKey(w, r)
	if !ok {
		return
	}

	briefs, err := h.store.Get(r.Context(), key)
	if err != nil {
		h.logger.Error("Failed to load history", "conversation_id", key.ID, "owner", key.Owner, "error", err)
		Error(w, http.StatusInternalServerError, "error retrieving history")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": key.ID,
		"brief_count":     len(briefs),
		"briefs":          briefs,
	})
}

// ClearHistory deletes a conversation.
func (h *ResearchHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	key, ok := h.conversationKey(w, r)
	if !ok {
		return
	}

	if err := h.store.Clear(r.Context(), key); err != nil {
		h.logger.Error("Failed to clear history", "conversation_id", key.ID, "owner", key.Owner, "error", err)
		Error(w, http.StatusInternalServerError, "failed to clear conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListConversations returns the caller's conversation ids.
func (h *ResearchHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	owner := identity.OwnerFromContext(r.Context())
	ids, err := h.store.List(r.Context(), owner)
	if err != nil {
		h.logger.Error("Failed to list conversations", "owner", owner, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"conversations": ids})
}

func (h *ResearchHandler) conversationKey(w http.ResponseWriter, r *http.Request) (domain.ConversationKey, bool) {
	id := chi.URLParam(r, "conversation_id")
	if !domain.ValidConversationID(id) {
		Error(w, http.StatusBadRequest, domain.ErrInvalidConversationID.Error())
		return domain.ConversationKey{}, false
	}
	key, err := domain.NewConversationKey(identity.OwnerFromContext(r.Context()), id)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return domain.ConversationKey{}, false
	}
	return key, true
}
