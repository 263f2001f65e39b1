// Package llm exposes the text generation capability used by the research
// pipeline.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrEmptyResponse is returned when the model produced no usable content.
var ErrEmptyResponse = errors.New("empty response from model")

// Schema describes the JSON document GenerateStructured must return.
type Schema struct {
	Name        string
	Description string
	// Definition is a JSON Schema object.
	Definition map[string]any
}

// Generator is the remote generation capability.
type Generator interface {
	// Summarize returns free text for a single user prompt.
	Summarize(ctx context.Context, prompt string) (string, error)

	// GenerateStructured returns a JSON document conforming to schema. The
	// document is raw and must be validated by the caller.
	GenerateStructured(ctx context.Context, system, prompt string, schema Schema) (json.RawMessage, error)
}

// Ensure OpenAI implements Generator.
var _ Generator = (*OpenAI)(nil)
