package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBrief() Brief {
	return Brief{
		Topic:       "Is egg veg or non-veg",
		Summary:     "Eggs are generally classified as non-vegetarian.",
		KeyFindings: []string{"Eggs are animal products"},
		References:  []Evidence{{ID: "ev-1", Title: "Eggs", URL: "https://example.com/eggs"}},
	}
}

func TestBriefValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Brief)
		ok     bool
	}{
		{name: "valid", mutate: func(*Brief) {}, ok: true},
		{name: "short topic", mutate: func(b *Brief) { b.Topic = "ab" }},
		{name: "short summary", mutate: func(b *Brief) { b.Summary = "too short" }},
		{name: "no findings", mutate: func(b *Brief) { b.KeyFindings = nil }},
		{name: "short finding", mutate: func(b *Brief) { b.KeyFindings = []string{"ok finding", "x"} }},
		{name: "empty limitations allowed", mutate: func(b *Brief) { b.Limitations = []string{} }, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBrief()
			tt.mutate(&b)
			err := b.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidBrief), "got %v", err)
		})
	}
}

func TestBriefCloneIsDeep(t *testing.T) {
	t.Parallel()

	b := validBrief()
	c := b.Clone()
	c.KeyFindings[0] = "changed"
	c.References[0].Title = "changed"

	assert.Equal(t, "Eggs are animal products", b.KeyFindings[0])
	assert.Equal(t, "Eggs", b.References[0].Title)
	assert.NotNil(t, c.Limitations)
}

func TestBriefJSONShape(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(validBrief().Clone())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"topic", "context_used", "summary", "key_findings", "limitations", "references"} {
		assert.Contains(t, raw, key)
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "héll", Truncate("héllo", 4))
	assert.Equal(t, "hi", Truncate("hi", 10))
	assert.Equal(t, "", Truncate("hi", 0))
}

func TestNewConversationKey(t *testing.T) {
	t.Parallel()

	key, err := NewConversationKey("", "test_conv")
	require.NoError(t, err)
	assert.Equal(t, DefaultOwner, key.Owner)
	assert.Equal(t, "test_conv", key.ID)

	generated, err := NewConversationKey("anon_1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, generated.ID)

	for _, bad := range []string{"../etc", "a/b", "..", ".", ".hidden", "has space"} {
		_, err := NewConversationKey("", bad)
		assert.ErrorIs(t, err, ErrInvalidConversationID, bad)
	}
}
