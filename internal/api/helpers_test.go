package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ashureev/brieflab/internal/domain"
	"github.com/ashureev/brieflab/internal/evidence"
	"github.com/ashureev/brieflab/internal/healthcheck"
	"github.com/ashureev/brieflab/internal/identity"
	"github.com/ashureev/brieflab/internal/llm"
	"github.com/ashureev/brieflab/internal/research"
	"github.com/ashureev/brieflab/internal/store"
	"github.com/go-chi/chi/v5"
)

// fakeGenerator produces a valid brief citing the first shown evidence.
type fakeGenerator struct{}

func (fakeGenerator) Summarize(context.Context, string) (string, error) {
	return "- Is egg veg or non-veg: eggs are animal products", nil
}

func (fakeGenerator) GenerateStructured(_ context.Context, _, prompt string, _ llm.Schema) (json.RawMessage, error) {
	url := "https://example.com/fallback"
	for _, line := range strings.Split(prompt, "\n") {
		if _, after, ok := strings.Cut(line, " — "); ok && strings.HasPrefix(line, "[1]") {
			url = after
		}
	}
	return json.Marshal(map[string]any{
		"topic":        "ignored",
		"summary":      "Eggs are generally considered non-vegetarian by strict definitions.",
		"key_findings": []string{"Eggs are animal products"},
		"limitations":  []string{},
		"references":   []map[string]string{{"title": "Source", "url": url}},
	})
}

type testServer struct {
	router http.Handler
	store  *store.SQLiteStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	sqlite, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })

	gen := fakeGenerator{}
	pipeline := research.NewPipeline(sqlite, evidence.NewStore(nil, nil), research.NewSummarizer(gen, 0, 0), research.NewSynthesizer(gen))
	base := NewHandler(pipeline, sqlite, nil)

	checker := healthcheck.NewChecker(0, nil)
	checker.Add("conversations", sqlite)

	r := chi.NewRouter()
	r.Use(identity.Middleware(false, true))
	NewHealthHandler(checker).RegisterHealth(r)
	NewResearchHandler(base).RegisterRoutes(r)
	NewAccountHandler(sqlite, nil).RegisterRoutes(r)
	r.Get("/ws/research", NewStreamHandler(base, "", true).ServeHTTP)

	return &testServer{router: r, store: sqlite}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBrief(t *testing.T, rec *httptest.ResponseRecorder) domain.Brief {
	t.Helper()
	var b domain.Brief
	if err := json.NewDecoder(rec.Body).Decode(&b); err != nil {
		t.Fatalf("Failed to decode brief: %v", err)
	}
	return b
}
