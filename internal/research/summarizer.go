package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/brieflab/internal/domain"
	"github.com/ashureev/brieflab/internal/llm"
)

const (
	// DefaultHistoryWindow is how many recent briefs feed a new request.
	DefaultHistoryWindow = 3
	// DefaultFollowUpWindow widens the window for explicit follow-ups.
	DefaultFollowUpWindow = 5

	summaryExcerptRunes = 300

	summarizeInstruction = "Summarize the following prior research briefs into ~4 concise bullets, " +
		"focusing on insights relevant to a new query."
)

// Summarizer compresses a conversation's recent briefs into a short digest.
type Summarizer struct {
	gen            llm.Generator
	window         int
	followUpWindow int
}

// NewSummarizer creates a Summarizer. Non-positive windows use the defaults.
func NewSummarizer(gen llm.Generator, window, followUpWindow int) *Summarizer {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	if followUpWindow <= 0 {
		followUpWindow = DefaultFollowUpWindow
	}
	return &Summarizer{gen: gen, window: window, followUpWindow: followUpWindow}
}

// Summarize returns the digest of the most recent briefs. An empty history
// yields "" without calling the model.
func (s *Summarizer) Summarize(ctx context.Context, history []domain.Brief, followUp bool) (string, error) {
	if len(history) == 0 {
		return "", nil
	}

	window := s.window
	if followUp {
		window = s.followUpWindow
	}
	recent := history[max(0, len(history)-window):]

	summary, err := s.gen.Summarize(ctx, summarizePrompt(recent))
	if err != nil {
		return "", fmt.Errorf("%w: summarize prior briefs: %w", ErrGenerationFailed, err)
	}
	return strings.TrimSpace(summary), nil
}

func summarizePrompt(briefs []domain.Brief) string {
	var b strings.Builder
	b.WriteString(summarizeInstruction)
	for _, brief := range briefs {
		fmt.Fprintf(&b, "\n- %s: %s...", brief.Topic, domain.Truncate(brief.Summary, summaryExcerptRunes))
	}
	return b.String()
}
