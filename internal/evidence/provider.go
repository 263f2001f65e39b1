// Package evidence retrieves ranked source documents for a research query.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	defaultBackoff     = 1 * time.Second
	maxBackoff         = 30 * time.Second
	defaultMaxAttempts = 4
)

// ErrMissingAPIKey is returned by providers constructed without credentials.
var ErrMissingAPIKey = errors.New("search provider API key is missing")

// Result is one raw hit returned by a search provider.
type Result struct {
	Title   string
	URL     string
	Content string
}

// Provider is an external search capability.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Search returns up to limit results ordered by relevance.
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Option configures an HTTP-backed provider.
type Option func(*httpProvider)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(client *http.Client) Option {
	return func(p *httpProvider) {
		p.client = client
	}
}

// WithEndpoint overrides the provider's API endpoint.
func WithEndpoint(endpoint string) Option {
	return func(p *httpProvider) {
		p.endpoint = endpoint
	}
}

// WithRateLimit paces outgoing requests to perSecond. Zero or less disables pacing.
func WithRateLimit(perSecond float64) Option {
	return func(p *httpProvider) {
		p.limiter = newLimiter(perSecond)
	}
}

// WithBackoff sets the initial delay after a 429 and the number of attempts.
func WithBackoff(initial time.Duration, attempts int) Option {
	return func(p *httpProvider) {
		if initial > 0 {
			p.backoff = initial
		}
		if attempts > 0 {
			p.attempts = attempts
		}
	}
}

// httpProvider holds the transport shared by the concrete providers.
type httpProvider struct {
	apiKey   string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	backoff  time.Duration
	attempts int
}

func newHTTPProvider(apiKey, endpoint string, opts []Option) httpProvider {
	p := httpProvider{
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultHTTPTimeout},
		limiter:  newLimiter(0),
		backoff:  defaultBackoff,
		attempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// do sends the request built by newReq, backing off and retrying on 429 with
// a doubling delay capped at 30s. The caller closes the returned body.
func (p *httpProvider) do(ctx context.Context, name string, newReq func() (*http.Request, error)) (*http.Response, error) {
	delay := p.backoff
	for attempt := 1; ; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limiter: %w", name, err)
		}

		req, err := newReq()
		if err != nil {
			return nil, fmt.Errorf("%s: build request: %w", name, err)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s: request failed: %w", name, err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			if resp.StatusCode != http.StatusOK {
				_ = resp.Body.Close()
				return nil, fmt.Errorf("%s http %d", name, resp.StatusCode)
			}
			return resp, nil
		}
		_ = resp.Body.Close()

		if attempt >= p.attempts {
			return nil, fmt.Errorf("%s: rate limited after %d attempts", name, attempt)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < maxBackoff {
			delay = min(delay*2, maxBackoff)
		}
	}
}
