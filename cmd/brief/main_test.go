package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ashureev/brieflab/internal/domain"
	"github.com/ashureev/brieflab/internal/store"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "shorter than max", input: "hello", maxLen: 10, want: "hello"},
		{name: "equal to max", input: "hello", maxLen: 5, want: "hello"},
		{name: "longer than max", input: "hello world", maxLen: 8, want: "hello..."},
		{name: "very short max", input: "hello", maxLen: 3, want: "..."},
		{name: "multibyte", input: "ééééé", maxLen: 4, want: "é..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestRenderHistory(t *testing.T) {
	var buf bytes.Buffer
	if err := renderHistory(&buf, nil); err != nil {
		t.Fatalf("renderHistory() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No briefs") {
		t.Errorf("empty history output = %q", buf.String())
	}

	buf.Reset()
	briefs := []domain.Brief{{
		Topic:       "coffee",
		Summary:     "Coffee consumption is broadly associated with neutral outcomes.",
		KeyFindings: []string{"one", "two"},
		References:  []domain.Evidence{{ID: "ev-1", Title: "t", URL: "https://example.com"}},
	}}
	if err := renderHistory(&buf, briefs); err != nil {
		t.Fatalf("renderHistory() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"TOPIC", "coffee", "2", "1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func setTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORE_BACKEND", "file")
	t.Setenv("MEM_DIR", filepath.Join(dir, "mem"))
	t.Setenv("DB_PATH", filepath.Join(dir, "brieflab.db"))
	t.Setenv("SEARCH_PROVIDER", "none")
	t.Setenv("OPENAI_API_KEY", "")
	return filepath.Join(dir, "mem")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		historyJSON = false
		owner = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestStoreCommands(t *testing.T) {
	memDir := setTestEnv(t)

	fs, err := store.NewFileStore(memDir, nil)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	key, err := domain.NewConversationKey("", "eggs")
	if err != nil {
		t.Fatalf("NewConversationKey() error = %v", err)
	}
	brief := domain.Brief{
		Topic:       "eggs",
		Summary:     "Moderate egg consumption is fine for most healthy adults.",
		KeyFindings: []string{"Eggs are nutrient dense"},
		Limitations: []string{},
		References:  []domain.Evidence{{ID: "ev-1", Title: "Eggs", URL: "https://example.com/eggs"}},
	}
	if err := fs.Append(context.Background(), key, brief); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	out, err := execute(t, "list")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if strings.TrimSpace(out) != "eggs" {
		t.Errorf("list output = %q, want eggs", out)
	}

	out, err = execute(t, "history", "eggs", "--json")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	if !strings.Contains(out, `"key_findings"`) || !strings.Contains(out, "https://example.com/eggs") {
		t.Errorf("history output = %q", out)
	}

	out, err = execute(t, "clear", "eggs")
	if err != nil {
		t.Fatalf("clear error = %v", err)
	}
	if !strings.Contains(out, "Cleared conversation eggs") {
		t.Errorf("clear output = %q", out)
	}

	out, err = execute(t, "list")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if !strings.Contains(out, "No conversations found.") {
		t.Errorf("list after clear = %q", out)
	}
}

func TestHistoryRejectsInvalidID(t *testing.T) {
	setTestEnv(t)
	if _, err := execute(t, "history", "../escape"); err == nil {
		t.Error("expected error for invalid conversation id")
	}
}

func TestBriefRequiresLLMCredentials(t *testing.T) {
	setTestEnv(t)
	t.Setenv("OPENAI_BASE_URL", "")
	if _, err := execute(t, "some topic"); err == nil {
		t.Error("expected error without LLM credentials")
	}
}
