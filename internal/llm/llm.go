// Package llm abstracts structured-output chat model providers behind a
// single Invoke call. Each pipeline stage sends one prompt with a response
// schema and gets back raw JSON to unmarshal into its own types.
package llm

import (
	"context"
	"encoding/json"
)

// Schema is a provider-agnostic JSON schema subset: what both the Gemini
// structured-output API and Ollama's format parameter understand.
type Schema struct {
	Type        string             `json:"type"` // "object", "array", "string", "number", "integer", "boolean"
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// Request is one structured-output model call.
type Request struct {
	System      string
	Prompt      string
	Schema      *Schema
	Temperature float32
}

// Provider executes structured-output model calls.
// Invoke returns the raw JSON body of the response; transport and provider
// failures are returned as errors, response parsing is the caller's concern.
type Provider interface {
	Invoke(ctx context.Context, req Request) (json.RawMessage, error)
	Name() string
}
