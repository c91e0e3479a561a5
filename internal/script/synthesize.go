// Package script turns a natural-language request plus the extracted
// model summary into an executable tool script.
package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sdpflow/internal/llm"
)

// ErrEmptyScript means the gateway answered but the cleaned output was blank.
var ErrEmptyScript = errors.New("model returned an empty script")

// ResultVariable is the well-known variable the synthesized script must
// leave its final value in; the run wrapper persists it.
const ResultVariable = "sdp_result"

const synthesisSystemPrompt = `You write scripts for an external numerical simulation tool.
Return ONLY the executable script text. No prose, no markdown fences, no comments about what you did.
The script must be self-contained:
- create or load any state it needs,
- set all parameters explicitly,
- run the requested workflow to completion,
- store the final result in a variable named ` + ResultVariable + `.
The script must never wait for interactive input.`

// Synthesize asks the gateway for a script and strips formatting
// artifacts from the answer.
func Synthesize(ctx context.Context, client llm.Client, userRequest, readableContext string) (string, error) {
	user := fmt.Sprintf("Model architecture:\n%s\n\nRequest:\n%s", readableContext, userRequest)
	raw, err := client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: synthesisSystemPrompt,
		UserPrompt:   user,
		Temperature:  0.2,
	})
	if err != nil {
		return "", err
	}
	cleaned := StripFence(raw)
	if cleaned == "" {
		return "", ErrEmptyScript
	}
	return cleaned, nil
}

// StripFence removes one optional surrounding triple-backtick fence,
// tolerating a language tag right after the opening fence. Text without a
// fence is returned trimmed, unchanged. Idempotent.
func StripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	nl := strings.IndexByte(t, '\n')
	if nl < 0 {
		// a lone fence line carries no script
		return ""
	}
	t = t[nl+1:]
	if idx := strings.LastIndex(t, "```"); idx >= 0 && strings.TrimSpace(t[idx+3:]) == "" {
		t = t[:idx]
	}
	return strings.TrimSpace(t)
}
