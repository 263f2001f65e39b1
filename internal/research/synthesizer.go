package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/brieflab/internal/domain"
	"github.com/ashureev/brieflab/internal/llm"
)

const (
	maxPromptEvidence    = 12
	evidenceExcerptRunes = 500

	briefSystemPrompt = "You are a research assistant. Produce a concise, evidence-linked research brief.\n" +
		"Cite sources by including them in the 'references' field with title+URL.\n" +
		"Only include claims supported by the evidence text or standard facts.\n"
)

var (
	// ErrGenerationMalformed is returned when the model's output is not a valid Brief.
	ErrGenerationMalformed = errors.New("generated brief is malformed")

	// ErrGenerationFailed wraps errors from the generation capability itself.
	ErrGenerationFailed = errors.New("generation failed")
)

// briefSchema is the strict response shape requested from the model.
var briefSchema = llm.Schema{
	Name:        "research_brief",
	Description: "A concise, evidence-linked research brief.",
	Definition: map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"topic", "summary", "key_findings", "limitations", "references"},
		"properties": map[string]any{
			"topic":        map[string]any{"type": "string"},
			"summary":      map[string]any{"type": "string"},
			"key_findings": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"limitations":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"references": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"title", "url"},
					"properties": map[string]any{
						"title": map[string]any{"type": "string"},
						"url":   map[string]any{"type": "string"},
					},
				},
			},
		},
	},
}

// generatedBrief is the model's answer before it is bound to the request.
type generatedBrief struct {
	Topic       string   `json:"topic"`
	Summary     string   `json:"summary"`
	KeyFindings []string `json:"key_findings"`
	Limitations []string `json:"limitations"`
	References  []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"references"`
}

// Synthesizer turns a topic, prior context and evidence into a Brief.
type Synthesizer struct {
	gen llm.Generator
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(gen llm.Generator) *Synthesizer {
	return &Synthesizer{gen: gen}
}

// Synthesize generates and validates a Brief. The returned Brief always
// carries the requested topic and the exact prior context it was given.
func (s *Synthesizer) Synthesize(ctx context.Context, topic, priorContext string, evidence []domain.Evidence) (domain.Brief, error) {
	shown := evidence[:min(len(evidence), maxPromptEvidence)]

	raw, err := s.gen.GenerateStructured(ctx, briefSystemPrompt, briefPrompt(topic, priorContext, shown), briefSchema)
	if err != nil {
		return domain.Brief{}, fmt.Errorf("%w: generate brief: %w", ErrGenerationFailed, err)
	}

	gen, err := decodeGenerated(raw)
	if err != nil {
		return domain.Brief{}, fmt.Errorf("%w: %v", ErrGenerationMalformed, err)
	}

	brief := domain.Brief{
		Topic:       topic,
		ContextUsed: priorContext,
		Summary:     strings.TrimSpace(gen.Summary),
		KeyFindings: trimAll(gen.KeyFindings),
		Limitations: trimAll(gen.Limitations),
		References:  bindReferences(gen, shown),
	}
	if err := brief.Validate(); err != nil {
		return domain.Brief{}, fmt.Errorf("%w: %v", ErrGenerationMalformed, err)
	}
	return brief, nil
}

func briefPrompt(topic, priorContext string, evidence []domain.Evidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", topic)
	fmt.Fprintf(&b, "Prior context:\n  %s\n\n", priorContext)
	b.WriteString("Evidence:\n")
	for i, ev := range evidence {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s — %s\n%s", i+1, ev.Title, ev.URL, domain.Truncate(ev.Snippet, evidenceExcerptRunes))
	}
	return b.String()
}

func decodeGenerated(raw json.RawMessage) (generatedBrief, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var gen generatedBrief
	if err := dec.Decode(&gen); err != nil {
		return generatedBrief{}, fmt.Errorf("decode model output: %w", err)
	}
	if dec.More() {
		return generatedBrief{}, errors.New("trailing data after brief")
	}
	return gen, nil
}

// bindReferences maps the model's references back to shown evidence by URL.
// Unknown URLs are kept under a ref-<n> id; duplicates and blank URLs are dropped.
func bindReferences(gen generatedBrief, shown []domain.Evidence) []domain.Evidence {
	byURL := make(map[string]domain.Evidence, len(shown))
	for _, ev := range shown {
		byURL[ev.URL] = ev
	}

	refs := make([]domain.Evidence, 0, len(gen.References))
	seen := make(map[string]bool, len(gen.References))
	external := 0
	for _, r := range gen.References {
		url := strings.TrimSpace(r.URL)
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true

		title := strings.TrimSpace(r.Title)
		if ev, ok := byURL[url]; ok {
			if title == "" {
				title = ev.Title
			}
			refs = append(refs, domain.Evidence{ID: ev.ID, Title: title, URL: url, Synthetic: ev.Synthetic})
			continue
		}
		external++
		if title == "" {
			title = url
		}
		refs = append(refs, domain.Evidence{ID: fmt.Sprintf("ref-%d", external), Title: title, URL: url})
	}
	return refs
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
