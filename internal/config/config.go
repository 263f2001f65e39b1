// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Search providers.
const (
	SearchTavily = "tavily"
	SearchBrave  = "brave"
	SearchNone   = "none"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	LogLevel    slog.Level
	MultiTenant bool

	Store    StoreConfig
	Search   SearchConfig
	LLM      LLMConfig
	Research ResearchConfig

	RateLimitPerMinute int
	JanitorInterval    time.Duration
	GRPCHealthPort     string
}

// StoreConfig selects and locates conversation storage.
type StoreConfig struct {
	Backend string
	MemDir  string
	DBPath  string
}

// SearchConfig configures the evidence provider.
type SearchConfig struct {
	Provider    string
	TavilyKey   string
	TavilyDepth string
	BraveKey    string
	RatePerSec  float64
}

// LLMConfig configures the OpenAI-compatible generator.
type LLMConfig struct {
	APIKey       string
	BaseURL      string
	SummaryModel string
	BriefModel   string
	Timeout      time.Duration
	MaxRetries   int
}

// ResearchConfig tunes the pipeline.
type ResearchConfig struct {
	Timeout        time.Duration
	HistoryWindow  int
	FollowUpWindow int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		LogLevel:    parseLevel(getEnv("LOG_LEVEL", "info")),
		MultiTenant: getEnvBool("MULTI_TENANT", false),
		Store: StoreConfig{
			Backend: strings.ToLower(getEnv("STORE_BACKEND", BackendFile)),
			MemDir:  getEnv("MEM_DIR", ".ra_mem"),
			DBPath:  getEnv("DB_PATH", "./data/brieflab.db"),
		},
		Search: SearchConfig{
			Provider:    strings.ToLower(getEnv("SEARCH_PROVIDER", SearchTavily)),
			TavilyKey:   getEnv("TAVILY_API_KEY", ""),
			TavilyDepth: getEnv("TAVILY_DEPTH", "basic"),
			BraveKey:    getEnv("BRAVE_API_KEY", ""),
			RatePerSec:  getEnvFloat("SEARCH_RATE_PER_SEC", 1),
		},
		LLM: LLMConfig{
			APIKey:       getEnv("OPENAI_API_KEY", ""),
			BaseURL:      getEnv("OPENAI_BASE_URL", ""),
			SummaryModel: getEnv("LLM_SUMMARY_MODEL", "gpt-4o-mini"),
			BriefModel:   getEnv("LLM_BRIEF_MODEL", "gpt-4o"),
			Timeout:      getEnvDuration("LLM_TIMEOUT", 60*time.Second),
			MaxRetries:   getEnvInt("LLM_MAX_RETRIES", 2),
		},
		Research: ResearchConfig{
			Timeout:        getEnvDuration("PIPELINE_TIMEOUT", 90*time.Second),
			HistoryWindow:  getEnvInt("HISTORY_WINDOW", 3),
			FollowUpWindow: getEnvInt("FOLLOW_UP_WINDOW", 5),
		},
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		JanitorInterval:    getEnvDuration("JANITOR_INTERVAL", 10*time.Minute),
		GRPCHealthPort:     getEnv("GRPC_HEALTH_PORT", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Store.Backend {
	case BackendFile:
		if c.Store.MemDir == "" {
			return fmt.Errorf("MEM_DIR cannot be empty")
		}
	case BackendSQLite:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendFile, BackendSQLite, c.Store.Backend)
	}
	// Accounts always live in SQLite.
	if c.Store.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.Search.Provider {
	case SearchTavily, SearchBrave, SearchNone:
	default:
		return fmt.Errorf("SEARCH_PROVIDER must be one of tavily, brave, none, got %q", c.Search.Provider)
	}
	if c.Research.HistoryWindow <= 0 {
		return fmt.Errorf("HISTORY_WINDOW must be > 0")
	}
	if c.Research.FollowUpWindow <= 0 {
		return fmt.Errorf("FOLLOW_UP_WINDOW must be > 0")
	}
	if c.Research.Timeout <= 0 {
		return fmt.Errorf("PIPELINE_TIMEOUT must be > 0")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be >= 0")
	}
	return nil
}

// Validate checks that a generator can be built. It is separate from
// Config.Validate so store-only commands run without model credentials.
func (c LLMConfig) Validate() error {
	if c.APIKey == "" && c.BaseURL == "" {
		return fmt.Errorf("OPENAI_API_KEY is required unless OPENAI_BASE_URL is set")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be > 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("LLM_MAX_RETRIES must be >= 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// SearchKey returns the credential for the selected provider.
func (c *Config) SearchKey() string {
	switch c.Search.Provider {
	case SearchTavily:
		return c.Search.TavilyKey
	case SearchBrave:
		return c.Search.BraveKey
	default:
		return ""
	}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
