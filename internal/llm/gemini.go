package llm

import (
	"context"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client,
// selected when the configured model id has a "gemini" prefix.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, NewUpstreamError(err)
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }

func generateConfig(req CompletionRequest) *genai.GenerateContentConfig {
	temp := req.Temperature
	return &genai.GenerateContentConfig{Temperature: &temp}
}

// Complete folds the system prompt into the single content turn; the
// Gemini API has no separate system role on this path.
func (g *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	full := req.SystemPrompt + "\n\n" + req.UserPrompt

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
		generateConfig(req),
	)
	if err != nil {
		return "", NewUpstreamError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
