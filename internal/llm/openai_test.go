package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model          string           `json:"model"`
	Messages       []map[string]any `json:"messages"`
	ResponseFormat map[string]any   `json:"response_format"`
}

func chatServer(t *testing.T, content string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		resp := map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 0,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGenerator(t *testing.T, baseURL string) *OpenAI {
	t.Helper()
	g, err := NewOpenAI(Config{
		APIKey:       "test",
		BaseURL:      baseURL + "/",
		SummaryModel: "summary-model",
		BriefModel:   "brief-model",
	}, nil)
	require.NoError(t, err)
	return g
}

func TestNewOpenAIRequiresCredentials(t *testing.T) {
	_, err := NewOpenAI(Config{}, nil)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	var captured capturedRequest
	srv := chatServer(t, "  - bullet one\n", &captured)

	out, err := newTestGenerator(t, srv.URL).Summarize(context.Background(), "compress this")
	require.NoError(t, err)
	assert.Equal(t, "- bullet one", out)
	assert.Equal(t, "summary-model", captured.Model)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0]["role"])
}

func TestGenerateStructured(t *testing.T) {
	var captured capturedRequest
	srv := chatServer(t, `{"ok":true}`, &captured)

	schema := Schema{Name: "thing", Definition: map[string]any{"type": "object"}}
	raw, err := newTestGenerator(t, srv.URL).GenerateStructured(context.Background(), "sys", "user", schema)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))

	assert.Equal(t, "brief-model", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0]["role"])
	assert.Equal(t, "json_schema", captured.ResponseFormat["type"])
}

func TestEmptyContentIsError(t *testing.T) {
	srv := chatServer(t, "   ", nil)
	_, err := newTestGenerator(t, srv.URL).Summarize(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestMaxRetries(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		wantCalls  int32
	}{
		{name: "zero disables retries", maxRetries: 0, wantCalls: 1},
		{name: "one retry", maxRetries: 1, wantCalls: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.Header().Set("Retry-After-Ms", "10")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
			}))
			t.Cleanup(srv.Close)

			g, err := NewOpenAI(Config{APIKey: "test", BaseURL: srv.URL + "/", MaxRetries: tt.maxRetries}, nil)
			require.NoError(t, err)

			_, err = g.Summarize(context.Background(), "x")
			assert.Error(t, err)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}
