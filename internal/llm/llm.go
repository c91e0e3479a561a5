// Package llm is the gateway to external text-generation services.
// Failure is terminal per call: no retries, no caching.
package llm

import (
	"context"
	"errors"
	"os"
	"strings"
)

var (
	// ErrNoCredential means no API key could be resolved from the
	// request config or the recognized environment fallbacks.
	ErrNoCredential = errors.New("no API credential resolved")

	// ErrEmptyResponse means the remote call succeeded but yielded no
	// usable text.
	ErrEmptyResponse = errors.New("model returned an empty response")
)

// UpstreamError indicates the remote completion call itself failed:
// a transport failure or a non-2xx status.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

func NewUpstreamError(err error) error {
	return &UpstreamError{Err: err}
}

// CompletionRequest is one system/user prompt pair.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
}

// Client sends a prompt pair to one text-generation backend and returns
// trimmed plain text.
type Client interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ModelConfig carries per-request model selection. Empty fields fall back
// to environment values and package defaults.
type ModelConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

const (
	envPrimaryKey  = "SDPFLOW_API_KEY"
	envFallbackKey = "OPENAI_API_KEY"

	defaultModel = "gpt-4o-mini"
)

// ResolveCredential applies the precedence order: explicit config value,
// then SDPFLOW_API_KEY, then OPENAI_API_KEY.
func ResolveCredential(explicit string) (string, error) {
	for _, v := range []string{explicit, os.Getenv(envPrimaryKey), os.Getenv(envFallbackKey)} {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return "", ErrNoCredential
}

// NewClient picks a backend for the given config: models with a "gemini"
// prefix go to the genai client, everything else to the OpenAI-compatible
// chat-completions client.
func NewClient(ctx context.Context, cfg ModelConfig) (Client, error) {
	key, err := ResolveCredential(cfg.APIKey)
	if err != nil {
		return nil, err
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	if strings.HasPrefix(strings.ToLower(model), "gemini") {
		gc, err := NewGeminiClient(ctx, key, model)
		if err != nil {
			return nil, err
		}
		return gc, nil
	}
	return NewOpenAIClient(key, model, cfg.BaseURL), nil
}
