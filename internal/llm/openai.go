package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultCompletionsURL = "https://api.openai.com/v1/chat/completions"

// OpenAIClient calls an OpenAI-compatible Chat Completions endpoint.
type OpenAIClient struct {
	http    *http.Client
	apiKey  string
	model   string
	baseURL string
}

// NewOpenAIClient creates a client for the given key and model. baseURL
// may be empty (the public endpoint), a service root, or a full
// chat-completions URL.
func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	return &OpenAIClient{
		http:    &http.Client{Timeout: 60 * time.Second},
		apiKey:  apiKey,
		model:   model,
		baseURL: completionsURL(baseURL),
	}
}

func completionsURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return defaultCompletionsURL
	}
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return strings.TrimRight(base, "/") + "/chat/completions"
}

func (c *OpenAIClient) Name() string { return "OpenAI:" + c.model }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete posts a system+user message pair and returns the first
// choice's trimmed text content.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
	}
	b, _ := json.Marshal(body)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(b))
	if err != nil {
		return "", NewUpstreamError(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", NewUpstreamError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(resp.Body)
		const max = 2048
		if len(excerpt) > max {
			excerpt = excerpt[:max]
		}
		return "", NewUpstreamError(fmt.Errorf("completion endpoint: unexpected status %s: %s", resp.Status, string(excerpt)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", NewUpstreamError(fmt.Errorf("decode completion response: %w", err))
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text, err := contentText(out.Choices[0].Message.Content)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// contentText accepts the two wire shapes of message.content: a plain
// string, or a list of typed parts whose text segments are concatenated.
func contentText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", ErrEmptyResponse
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", NewUpstreamError(fmt.Errorf("unrecognized content shape: %w", err))
	}
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}
