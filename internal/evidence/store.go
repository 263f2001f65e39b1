package evidence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/brieflab/internal/domain"
)

// DefaultLimit is used when a caller passes a non-positive limit.
const DefaultLimit = 8

// Fallback reasons reported in logs and metrics.
const (
	ReasonNoProvider         = "no_provider"
	ReasonMissingCredentials = "missing_credentials"
	ReasonProviderError      = "provider_error"
	ReasonEmptyResults       = "empty_results"
)

// Store turns provider results into Evidence. Search never fails: when the
// provider is unavailable it answers with synthetic fallback documents.
type Store struct {
	provider Provider
	logger   *slog.Logger
}

// NewStore creates an evidence store. A nil provider always falls back.
func NewStore(provider Provider, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{provider: provider, logger: logger}
}

// Search returns at most limit Evidence entries for query, in provider order.
// The result is never empty.
func (s *Store) Search(ctx context.Context, query string, limit int) []domain.Evidence {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if s.provider == nil {
		return s.fallback(query, limit, ReasonNoProvider, nil)
	}

	start := time.Now()
	results, err := s.provider.Search(ctx, query, limit)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	SearchDuration.WithLabelValues(s.provider.Name(), outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		reason := ReasonProviderError
		if errors.Is(err, ErrMissingAPIKey) {
			reason = ReasonMissingCredentials
		}
		return s.fallback(query, limit, reason, err)
	}

	evidence := toEvidence(results, limit)
	if len(evidence) == 0 {
		return s.fallback(query, limit, ReasonEmptyResults, nil)
	}
	return evidence
}

func (s *Store) fallback(query string, limit int, reason string, err error) []domain.Evidence {
	FallbackTotal.WithLabelValues(reason).Inc()
	attrs := []any{"reason", reason, "query", query}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	s.logger.Warn("Evidence search fell back to synthetic documents", attrs...)
	return Fallback(query, limit)
}

// toEvidence validates provider results at the boundary. Entries without
// content or URL are dropped; ids are assigned after filtering.
func toEvidence(results []Result, limit int) []domain.Evidence {
	out := make([]domain.Evidence, 0, min(len(results), limit))
	for _, r := range results {
		content := strings.TrimSpace(r.Content)
		url := strings.TrimSpace(r.URL)
		if content == "" || url == "" {
			continue
		}
		title := strings.TrimSpace(r.Title)
		if title == "" {
			title = url
		}
		out = append(out, domain.Evidence{
			ID:      fmt.Sprintf("ev-%d", len(out)+1),
			Title:   title,
			URL:     url,
			Snippet: content,
		})
		if len(out) == limit {
			break
		}
	}
	return out
}

// Fallback returns the deterministic synthetic documents for query,
// truncated to limit but never empty.
func Fallback(query string, limit int) []domain.Evidence {
	docs := []domain.Evidence{
		{
			ID:        "fallback-1",
			Title:     "Fallback: " + query,
			URL:       "https://example.com/fallback",
			Snippet:   "Live search is unavailable. This placeholder stands in for sources about " + query + ".",
			Synthetic: true,
		},
		{
			ID:        "fallback-2",
			Title:     "General Info: " + query,
			URL:       "https://example.com/general",
			Snippet:   "General background on " + query + " could not be retrieved from a search provider.",
			Synthetic: true,
		},
	}
	if limit < 1 {
		limit = 1
	}
	if limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}
