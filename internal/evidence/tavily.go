package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// Tavily calls the Tavily search API.
type Tavily struct {
	httpProvider
	// Depth is Tavily's search_depth parameter (basic or advanced).
	Depth string
}

// NewTavily constructs a Tavily search provider.
func NewTavily(apiKey, depth string, opts ...Option) *Tavily {
	if depth == "" {
		depth = "basic"
	}
	return &Tavily{httpProvider: newHTTPProvider(apiKey, tavilyEndpoint, opts), Depth: depth}
}

// Name implements Provider.
func (t *Tavily) Name() string { return "tavily" }

// Search posts a query to Tavily.
func (t *Tavily) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(t.apiKey) == "" {
		return nil, fmt.Errorf("tavily: %w", ErrMissingAPIKey)
	}

	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"api_key":      t.apiKey,
		"search_depth": t.Depth,
		"max_results":  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("tavily: encode request: %w", err)
	}

	resp, err := t.do(ctx, t.Name(), func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}

	results := make([]Result, 0, len(response.Results))
	for _, r := range response.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Content: r.Content})
	}
	return results, nil
}
