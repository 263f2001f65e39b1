package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Brave uses the Brave Search API. The key is sent as X-Subscription-Token.
type Brave struct {
	httpProvider
}

// NewBrave constructs a Brave search provider. Brave's free tier allows one
// request per second, so callers usually pair it with WithRateLimit(1).
func NewBrave(apiKey string, opts ...Option) *Brave {
	return &Brave{httpProvider: newHTTPProvider(apiKey, braveEndpoint, opts)}
}

// Name implements Provider.
func (b *Brave) Name() string { return "brave" }

// Search executes a Brave web query.
func (b *Brave) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(b.apiKey) == "" {
		return nil, fmt.Errorf("brave: %w", ErrMissingAPIKey)
	}

	params := url.Values{}
	params.Set("q", query)
	if limit > 0 {
		params.Set("count", strconv.Itoa(min(limit, 20)))
	}
	endpoint := b.endpoint + "?" + params.Encode()

	resp, err := b.do(ctx, b.Name(), func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Subscription-Token", b.apiKey)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var payload struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("brave: decode response: %w", err)
	}

	results := make([]Result, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Content: r.Description})
	}
	return results, nil
}
