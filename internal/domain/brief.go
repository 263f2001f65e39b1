// Package domain contains core domain types for the research brief service.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Minimum lengths enforced by Brief.Validate.
const (
	MinTopicLength   = 3
	MinSummaryLength = 20
	MinFindingLength = 3
)

// ErrInvalidBrief is returned when a brief fails shape validation.
var ErrInvalidBrief = errors.New("invalid brief")

// Evidence is a retrieved source fragment used to ground a brief.
type Evidence struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Snippet   string `json:"snippet,omitempty"`
	Synthetic bool   `json:"synthetic,omitempty"`
}

// Brief is the structured research output for one topic turn.
type Brief struct {
	Topic       string     `json:"topic"`
	ContextUsed string     `json:"context_used"`
	Summary     string     `json:"summary"`
	KeyFindings []string   `json:"key_findings"`
	Limitations []string   `json:"limitations"`
	References  []Evidence `json:"references"`
}

// Validate checks the brief against the minimum shape every persisted or
// returned brief must have.
func (b Brief) Validate() error {
	if utf8.RuneCountInString(strings.TrimSpace(b.Topic)) < MinTopicLength {
		return fmt.Errorf("%w: topic must be at least %d characters", ErrInvalidBrief, MinTopicLength)
	}
	if utf8.RuneCountInString(strings.TrimSpace(b.Summary)) < MinSummaryLength {
		return fmt.Errorf("%w: summary must be at least %d characters", ErrInvalidBrief, MinSummaryLength)
	}
	if len(b.KeyFindings) == 0 {
		return fmt.Errorf("%w: key_findings must not be empty", ErrInvalidBrief)
	}
	for i, f := range b.KeyFindings {
		if utf8.RuneCountInString(strings.TrimSpace(f)) < MinFindingLength {
			return fmt.Errorf("%w: key_findings[%d] must be at least %d characters", ErrInvalidBrief, i, MinFindingLength)
		}
	}
	return nil
}

// Clone returns a deep copy. Slices are never nil so the JSON shape is stable.
func (b Brief) Clone() Brief {
	out := b
	out.KeyFindings = append(make([]string, 0, len(b.KeyFindings)), b.KeyFindings...)
	out.Limitations = append(make([]string, 0, len(b.Limitations)), b.Limitations...)
	out.References = append(make([]Evidence, 0, len(b.References)), b.References...)
	return out
}

// Truncate returns the first n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
