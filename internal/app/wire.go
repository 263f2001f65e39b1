// Package app assembles the stores and the research pipeline from
// configuration. Both binaries share it.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ashureev/brieflab/internal/config"
	"github.com/ashureev/brieflab/internal/evidence"
	"github.com/ashureev/brieflab/internal/llm"
	"github.com/ashureev/brieflab/internal/research"
	"github.com/ashureev/brieflab/internal/store"
)

// Stores holds the opened persistence backends.
type Stores struct {
	Conversations store.ConversationStore
	Accounts      *store.SQLiteStore
	// Files is set only when conversations use the file backend.
	Files *store.FileStore
}

// Close releases the database connection.
func (s *Stores) Close() error {
	if s.Accounts == nil {
		return nil
	}
	return s.Accounts.Close()
}

// OpenStores opens the account database and the configured conversation
// backend. Accounts always live in SQLite.
func OpenStores(cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	if dir := filepath.Dir(cfg.Store.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := store.NewSQLite(cfg.Store.DBPath, logger)
	if err != nil {
		return nil, err
	}

	stores := &Stores{Accounts: db}
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		stores.Conversations = db
	case config.BackendFile:
		fs, err := store.NewFileStore(cfg.Store.MemDir, logger)
		if err != nil {
			return nil, errors.Join(err, db.Close())
		}
		stores.Files = fs
		stores.Conversations = fs
	default:
		return nil, errors.Join(fmt.Errorf("unknown store backend %q", cfg.Store.Backend), db.Close())
	}
	return stores, nil
}

// NewSearchProvider returns the configured provider, or nil for "none".
// A provider with a missing key is still returned so the fallback is
// reported as missing credentials.
func NewSearchProvider(cfg *config.Config) evidence.Provider {
	switch cfg.Search.Provider {
	case config.SearchTavily:
		return evidence.NewTavily(cfg.Search.TavilyKey, cfg.Search.TavilyDepth, evidence.WithRateLimit(cfg.Search.RatePerSec))
	case config.SearchBrave:
		return evidence.NewBrave(cfg.Search.BraveKey, evidence.WithRateLimit(cfg.Search.RatePerSec))
	default:
		return nil
	}
}

// NewPipeline builds the generator, evidence store and pipeline.
func NewPipeline(cfg *config.Config, conversations research.HistoryStore, logger *slog.Logger, opts ...research.Option) (*research.Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.LLM.Validate(); err != nil {
		return nil, err
	}
	gen, err := llm.NewOpenAI(llm.Config{
		APIKey:       cfg.LLM.APIKey,
		BaseURL:      cfg.LLM.BaseURL,
		SummaryModel: cfg.LLM.SummaryModel,
		BriefModel:   cfg.LLM.BriefModel,
		Timeout:      cfg.LLM.Timeout,
		MaxRetries:   cfg.LLM.MaxRetries,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create generator: %w", err)
	}

	provider := NewSearchProvider(cfg)
	if provider == nil {
		logger.Warn("No search provider configured, briefs will cite synthetic fallback documents")
	}

	opts = append([]research.Option{
		research.WithTimeout(cfg.Research.Timeout),
		research.WithLogger(logger),
		research.WithObserver(research.LogObserver(logger)),
	}, opts...)

	return research.NewPipeline(
		conversations,
		evidence.NewStore(provider, logger),
		research.NewSummarizer(gen, cfg.Research.HistoryWindow, cfg.Research.FollowUpWindow),
		research.NewSynthesizer(gen),
		opts...,
	), nil
}
