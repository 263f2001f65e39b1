package research

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ashureev/brieflab/internal/domain"
	"github.com/ashureev/brieflab/internal/llm"
)

// scriptedGenerator answers summaries with a fixed digest and briefs with a
// document that cites the first evidence URL found in the prompt.
type scriptedGenerator struct {
	mu             sync.Mutex
	summary        string
	summaryErr     error
	structured     string
	structuredErr  error
	summaryPrompts []string
	briefPrompts   []string
}

func (g *scriptedGenerator) Summarize(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.summaryPrompts = append(g.summaryPrompts, prompt)
	return g.summary, g.summaryErr
}

func (g *scriptedGenerator) GenerateStructured(_ context.Context, _, prompt string, _ llm.Schema) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.briefPrompts = append(g.briefPrompts, prompt)
	if g.structuredErr != nil {
		return nil, g.structuredErr
	}
	if g.structured != "" {
		return json.RawMessage(g.structured), nil
	}

	doc := map[string]any{
		"topic":        "echoed topic",
		"summary":      "Eggs are animal products and are generally classified as non-vegetarian.",
		"key_findings": []string{"Eggs come from hens", "Some vegetarians eat eggs"},
		"limitations":  []string{"Cultural definitions vary"},
		"references":   []map[string]string{{"title": "Cited", "url": firstURL(prompt)}},
	}
	data, err := json.Marshal(doc)
	return data, err
}

func (g *scriptedGenerator) summaryCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.summaryPrompts)
}

func firstURL(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if _, after, ok := strings.Cut(line, " — "); ok && strings.HasPrefix(line, "[") {
			return after
		}
	}
	return "https://unknown.example"
}

// recordingStore wraps a HistoryStore and can inject failures.
type recordingStore struct {
	HistoryStore
	getErr    error
	appendErr error
	appends   atomic.Int32
}

func (r *recordingStore) Get(ctx context.Context, key domain.ConversationKey) ([]domain.Brief, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.HistoryStore.Get(ctx, key)
}

func (r *recordingStore) Append(ctx context.Context, key domain.ConversationKey, brief domain.Brief) error {
	r.appends.Add(1)
	if r.appendErr != nil {
		return r.appendErr
	}
	return r.HistoryStore.Append(ctx, key, brief)
}

var errStoreDown = errors.New("store down")
