// Package report assembles the final workflow report. The gateway call
// here is strictly best effort: every failure path lands on the
// deterministic local report, never on an error.
package report

import (
	"context"
	"fmt"
	"strings"

	"sdpflow/internal/llm"
	"sdpflow/internal/runner"
)

const (
	maxContextChars = 4000
	maxScriptChars  = 4000
	maxStdoutChars  = 4000
	maxStderrChars  = 2000
)

const reportSystemPrompt = `You are a senior simulation engineer reviewing an automated run.
Write a concise structured report with exactly these sections:
Outcome
Key Findings
Risks
Recommended Next Iteration
Base every statement on the excerpts provided. Do not invent results.`

type Input struct {
	Request         string
	ReadableContext string
	ScriptText      string
	Run             *runner.RunResult
}

// Build composes the workflow report. For failed runs it stays local; for
// successful runs it asks the gateway once and degrades to the local
// report on any failure.
func Build(ctx context.Context, client llm.Client, in Input) string {
	if in.Run == nil || in.Run.Status != runner.StatusSuccess {
		return localReport(in)
	}
	if client == nil {
		return degraded(in, "no model client configured")
	}
	answer, err := client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: reportSystemPrompt,
		UserPrompt:   reportUserPrompt(in),
		Temperature:  0.3,
	})
	if err != nil {
		return degraded(in, err.Error())
	}
	return answer
}

func reportUserPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original request:\n%s\n\n", in.Request)
	fmt.Fprintf(&b, "Model architecture (excerpt):\n%s\n\n", truncate(in.ReadableContext, maxContextChars))
	fmt.Fprintf(&b, "Executed script (excerpt):\n%s\n\n", truncate(in.ScriptText, maxScriptChars))
	fmt.Fprintf(&b, "Run summary:\n%s\n\n", in.Run.Summary)
	fmt.Fprintf(&b, "Stdout (excerpt):\n%s\n\n", truncate(in.Run.Stdout, maxStdoutChars))
	fmt.Fprintf(&b, "Stderr (excerpt):\n%s\n", truncate(in.Run.Stderr, maxStderrChars))
	return b.String()
}

// localReport is the deterministic fallback: prompt, execution summary,
// captured output, and a fixed assessment.
func localReport(in Input) string {
	var b strings.Builder
	b.WriteString("## Execution Report\n\n")
	fmt.Fprintf(&b, "Request:\n%s\n\n", in.Request)
	if in.Run != nil {
		fmt.Fprintf(&b, "Execution summary:\n%s\n", in.Run.Summary)
		fmt.Fprintf(&b, "Stdout:\n%s\n\n", in.Run.Stdout)
		fmt.Fprintf(&b, "Stderr:\n%s\n\n", in.Run.Stderr)
	}
	b.WriteString("Assessment: automatic analysis was not performed; review the run logs above.")
	return b.String()
}

func degraded(in Input, reason string) string {
	return localReport(in) +
		fmt.Sprintf("\n\nNote: report generation failed (%s); manual review is required.", reason)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n[... truncated]"
}
