package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultSummaryModel is used for context compression.
	DefaultSummaryModel = "gpt-4o-mini"
	// DefaultBriefModel is used for brief generation.
	DefaultBriefModel = "gpt-4o"

	defaultTimeout = 60 * time.Second
)

// Config configures the OpenAI-compatible generator.
type Config struct {
	APIKey       string
	BaseURL      string
	SummaryModel string
	BriefModel   string
	Timeout      time.Duration
	// MaxRetries is how often the client retries a failed call on connection
	// errors, 408, 409, 429 and 5xx. Zero disables retries.
	MaxRetries   int
	HTTPClient   *http.Client
}

// OpenAI implements Generator over an OpenAI-compatible chat completions API.
type OpenAI struct {
	client       openai.Client
	summaryModel string
	briefModel   string
	timeout      time.Duration
	logger       *slog.Logger
}

// NewOpenAI creates a generator. An API key is required unless a custom base
// URL points at a local compatible server.
func NewOpenAI(cfg Config, logger *slog.Logger) (*OpenAI, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai API key required")
	}
	if cfg.SummaryModel == "" {
		cfg.SummaryModel = DefaultSummaryModel
	}
	if cfg.BriefModel == "" {
		cfg.BriefModel = DefaultBriefModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "local"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAI{
		client:       openai.NewClient(opts...),
		summaryModel: cfg.SummaryModel,
		briefModel:   cfg.BriefModel,
		timeout:      cfg.Timeout,
		logger:       logger,
	}, nil
}

// Summarize implements Generator.
func (o *OpenAI) Summarize(ctx context.Context, prompt string) (string, error) {
	content, err := o.complete(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.summaryModel),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(content), nil
}

// GenerateStructured implements Generator using a strict JSON schema
// response format.
func (o *OpenAI) GenerateStructured(ctx context.Context, system, prompt string, schema Schema) (json.RawMessage, error) {
	jsonSchema := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:   schema.Name,
		Schema: schema.Definition,
		Strict: openai.Bool(true),
	}
	if schema.Description != "" {
		jsonSchema.Description = openai.String(schema.Description)
	}

	content, err := o.complete(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.briefModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.2),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: jsonSchema},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", schema.Name, err)
	}
	return json.RawMessage(content), nil
}

func (o *OpenAI) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyResponse
	}

	o.logger.Debug("Model call completed",
		"model", params.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return content, nil
}
