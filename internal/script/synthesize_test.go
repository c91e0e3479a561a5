package script

import (
	"context"
	"errors"
	"strings"
	"testing"

	"sdpflow/internal/llm"
)

type fakeClient struct {
	reply string
	err   error
	last  llm.CompletionRequest
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	f.last = req
	return f.reply, f.err
}

func TestStripFence(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"no fence", "x = 1;\n", "x = 1;"},
		{"plain fence", "```\nx = 1;\n```", "x = 1;"},
		{"language tag", "```matlab\nx = 1;\ny = 2;\n```", "x = 1;\ny = 2;"},
		{"no closing fence", "```matlab\nx = 1;", "x = 1;"},
		{"lone fence", "```", ""},
		{"backticks inside body stay", "```\na = \"``\";\n```", "a = \"``\";"},
	}
	for _, c := range cases {
		if got := StripFence(c.in); got != c.want {
			t.Fatalf("%s: StripFence(%q) = %q, want %q", c.name, c.in, got, c.want)
		}
	}
}

func TestStripFence_Idempotent(t *testing.T) {
	in := "```matlab\nsdp_result = sim('plant');\n```"
	once := StripFence(in)
	twice := StripFence(once)
	if once != twice {
		t.Fatalf("not idempotent: %q -> %q", once, twice)
	}
}

func TestSynthesize_StripsFenceAndMentionsResultVariable(t *testing.T) {
	fc := &fakeClient{reply: "```matlab\nsdp_result = 42;\n```"}
	got, err := Synthesize(context.Background(), fc, "compute the answer", "=== Model Summary ===")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if got != "sdp_result = 42;" {
		t.Fatalf("unexpected script: %q", got)
	}
	if !strings.Contains(fc.last.SystemPrompt, ResultVariable) {
		t.Fatalf("system prompt must constrain the result variable name")
	}
	if !strings.Contains(fc.last.UserPrompt, "compute the answer") {
		t.Fatalf("user prompt must carry the request")
	}
}

func TestSynthesize_EmptyScript(t *testing.T) {
	fc := &fakeClient{reply: "```\n\n```"}
	_, err := Synthesize(context.Background(), fc, "req", "ctx")
	if !errors.Is(err, ErrEmptyScript) {
		t.Fatalf("expected ErrEmptyScript, got %v", err)
	}
}

func TestSynthesize_GatewayErrorPropagates(t *testing.T) {
	fc := &fakeClient{err: llm.ErrEmptyResponse}
	_, err := Synthesize(context.Background(), fc, "req", "ctx")
	if !errors.Is(err, llm.ErrEmptyResponse) {
		t.Fatalf("expected gateway error to propagate, got %v", err)
	}
}
