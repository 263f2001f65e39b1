//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/brieflab/internal/domain"
	"github.com/ashureev/brieflab/internal/research"
	"github.com/ashureev/brieflab/internal/store"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusBadRequest, "bad input")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	var got map[string]string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["error"] != "bad input" {
		t.Errorf("Expected error=bad input, got %q", got["error"])
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid request", fmt.Errorf("init: %w", research.ErrInvalidRequest), http.StatusBadRequest},
		{"invalid conversation", domain.ErrInvalidConversationID, http.StatusBadRequest},
		{"malformed", fmt.Errorf("brief_generation: %w", research.ErrGenerationMalformed), http.StatusBadGateway},
		{"generation failed", fmt.Errorf("x: %w", research.ErrGenerationFailed), http.StatusBadGateway},
		{"store write", fmt.Errorf("persisted: %w", store.ErrStoreWrite), http.StatusInternalServerError},
		{"timeout", fmt.Errorf("x: %w: %w", research.ErrGenerationFailed, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := statusForError(tt.err); got != tt.want {
				t.Errorf("statusForError() = %d, want %d", got, tt.want)
			}
		})
	}
}
