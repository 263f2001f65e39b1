package research

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ashureev/brieflab/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvidence(n int) []domain.Evidence {
	out := make([]domain.Evidence, n)
	for i := range out {
		out[i] = domain.Evidence{
			ID:      fmt.Sprintf("ev-%d", i+1),
			Title:   fmt.Sprintf("Source %d", i+1),
			URL:     fmt.Sprintf("https://%d.example", i+1),
			Snippet: strings.Repeat("x", 600),
		}
	}
	return out
}

func TestSynthesizeBindsRequestAndReferences(t *testing.T) {
	gen := &scriptedGenerator{structured: `{
		"topic": "something else",
		"summary": "  A summary that is long enough to pass.  ",
		"key_findings": ["finding one", "  "],
		"limitations": [],
		"references": [
			{"title": "", "url": "https://2.example"},
			{"title": "Outside", "url": "https://outside.example"},
			{"title": "Dup", "url": "https://2.example"},
			{"title": "Blank", "url": " "}
		]
	}`}

	brief, err := NewSynthesizer(gen).Synthesize(context.Background(), "Eggs", "prior context", sampleEvidence(3))
	require.NoError(t, err)

	assert.Equal(t, "Eggs", brief.Topic)
	assert.Equal(t, "prior context", brief.ContextUsed)
	assert.Equal(t, "A summary that is long enough to pass.", brief.Summary)
	assert.Equal(t, []string{"finding one"}, brief.KeyFindings)
	require.Len(t, brief.References, 2)
	assert.Equal(t, domain.Evidence{ID: "ev-2", Title: "Source 2", URL: "https://2.example"}, brief.References[0])
	assert.Equal(t, domain.Evidence{ID: "ref-1", Title: "Outside", URL: "https://outside.example"}, brief.References[1])
}

func TestSynthesizePromptShowsTopTwelve(t *testing.T) {
	gen := &scriptedGenerator{}
	_, err := NewSynthesizer(gen).Synthesize(context.Background(), "Eggs", "", sampleEvidence(15))
	require.NoError(t, err)

	require.Len(t, gen.briefPrompts, 1)
	prompt := gen.briefPrompts[0]
	assert.Contains(t, prompt, "Topic: Eggs\n")
	assert.Contains(t, prompt, "[12] Source 12 — https://12.example\n")
	assert.NotContains(t, prompt, "[13]")
	assert.Contains(t, prompt, strings.Repeat("x", evidenceExcerptRunes))
	assert.NotContains(t, prompt, strings.Repeat("x", evidenceExcerptRunes+1))
}

func TestSynthesizeRejectsTrailingData(t *testing.T) {
	gen := &scriptedGenerator{structured: `{"topic":"t","summary":"long enough summary text here","key_findings":["abc"],"limitations":[],"references":[]} {}`}
	_, err := NewSynthesizer(gen).Synthesize(context.Background(), "Eggs", "", sampleEvidence(1))
	assert.ErrorIs(t, err, ErrGenerationMalformed)
}

func TestSynthesizeCapabilityErrorIsNotMalformed(t *testing.T) {
	gen := &scriptedGenerator{structuredErr: context.DeadlineExceeded}
	_, err := NewSynthesizer(gen).Synthesize(context.Background(), "Eggs", "", sampleEvidence(1))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrGenerationMalformed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}
