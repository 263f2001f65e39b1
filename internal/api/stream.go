package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ashureev/brieflab/internal/domain"
	"github.com/ashureev/brieflab/internal/identity"
	"github.com/ashureev/brieflab/internal/research"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// streamMessage is one frame sent to /ws/research clients.
type streamMessage struct {
	Type           string        `json:"type"`
	Stage          string        `json:"stage,omitempty"`
	Status         string        `json:"status,omitempty"`
	DurationMS     int64         `json:"duration_ms,omitempty"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Brief          *domain.Brief `json:"brief,omitempty"`
	Error          string        `json:"error,omitempty"`
	Code           int           `json:"code,omitempty"`
}

type runResult struct {
	brief domain.Brief
	err   error
}

// StreamHandler runs one research request per WebSocket connection and
// streams each stage transition before the final brief.
type StreamHandler struct {
	*Handler
	allowedOrigin string
	isDev         bool
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(base *Handler, allowedOrigin string, isDev bool) *StreamHandler {
	return &StreamHandler{Handler: base, allowedOrigin: allowedOrigin, isDev: isDev}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner := identity.OwnerFromContext(r.Context())

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "owner", owner)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "research finished"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "owner", owner)
		}
	}()

	ctx := r.Context()

	var req research.Request
	if err := wsjson.Read(ctx, ws, &req); err != nil {
		h.writeMessage(ctx, ws, streamMessage{Type: "error", Error: "invalid request message", Code: http.StatusBadRequest})
		return
	}

	key, err := domain.NewConversationKey(owner, req.ConversationID)
	if err != nil {
		h.writeMessage(ctx, ws, streamMessage{Type: "error", Error: err.Error(), Code: http.StatusBadRequest})
		return
	}
	req.Owner, req.ConversationID = key.Owner, key.ID

	// A client that goes away cancels the request, which then never persists.
	ctx = ws.CloseRead(ctx)

	events := make(chan research.StageEvent, 16)
	done := make(chan runResult, 1)
	go func() {
		brief, err := h.pipeline.Run(ctx, req, func(e research.StageEvent) {
			select {
			case events <- e:
			default:
				h.logger.Warn("Dropped stage event", "stage", e.Stage, "conversation_id", key.ID)
			}
		})
		close(events)
		done <- runResult{brief: brief, err: err}
	}()

	for e := range events {
		msg := streamMessage{
			Type:           "stage",
			Stage:          string(e.Stage),
			Status:         string(e.Status),
			DurationMS:     e.Duration.Milliseconds(),
			ConversationID: key.ID,
		}
		if e.Err != nil {
			msg.Error = e.Err.Error()
		}
		h.writeMessage(ctx, ws, msg)
	}

	res := <-done
	if res.err != nil {
		status, text := statusForError(res.err)
		if !errors.Is(res.err, context.Canceled) {
			h.logger.Error("Streamed research failed", "conversation_id", key.ID, "owner", key.Owner, "error", res.err)
		}
		h.writeMessage(ctx, ws, streamMessage{Type: "error", Error: text, Code: status, ConversationID: key.ID})
		return
	}
	h.writeMessage(ctx, ws, streamMessage{Type: "brief", ConversationID: key.ID, Brief: &res.brief})
}

func (h *StreamHandler) writeMessage(ctx context.Context, ws *websocket.Conn, msg streamMessage) {
	if ctx.Err() != nil {
		return
	}
	if err := wsjson.Write(ctx, ws, msg); err != nil {
		h.logger.Debug("WebSocket write error", "error", err, "type", msg.Type)
	}
}

func (h *StreamHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
