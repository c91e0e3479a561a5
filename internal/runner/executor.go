// Package runner materializes synthesized scripts into per-run
// directories and executes them through the external simulation tool.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrTimeout means the tool exceeded its wall-clock budget; the
	// process was killed and no RunResult exists for the attempt.
	ErrTimeout = errors.New("tool execution timed out")

	// ErrToolNotFound means the external command could not be located.
	ErrToolNotFound = errors.New("tool command not found")
)

// DefaultMinTimeout is the floor for the subprocess wall-clock budget.
const DefaultMinTimeout = 30 * time.Second

const (
	StatusSuccess = "success"
	StatusError   = "error"

	resultRecordName = "run_result.json"
)

type Request struct {
	ScriptText     string
	ToolLabel      string
	ToolCommand    string
	TimeoutSeconds int
}

// RunResult is the durable record of one execution attempt. It is written
// once into the run directory and never mutated.
type RunResult struct {
	RunID     string   `json:"run_id"`
	Status    string   `json:"status"`
	ExitCode  int      `json:"exit_code"`
	Stdout    string   `json:"stdout"`
	Stderr    string   `json:"stderr"`
	Artifacts []string `json:"artifacts"`
	Summary   string   `json:"summary"`
}

// ArtifactStore mirrors run artifacts to external storage, best effort.
type ArtifactStore interface {
	Put(ctx context.Context, runID, name string, content []byte) error
}

// Executor owns the runs root directory. The root is injected so tests
// get isolated trees; MinTimeout is injectable for the same reason.
type Executor struct {
	RunsRoot   string
	MinTimeout time.Duration
	Now        func() time.Time
	Artifacts  ArtifactStore
}

func NewExecutor(runsRoot string) *Executor {
	return &Executor{RunsRoot: runsRoot}
}

// Execute writes the script plus wrapper into a fresh run directory,
// invokes the tool with the wrapper as its sole argument, and captures
// the outcome. Any exit code yields a RunResult; only Timeout and
// ToolNotFound are surfaced as errors.
func (e *Executor) Execute(ctx context.Context, req Request) (*RunResult, error) {
	now := e.Now
	if now == nil {
		now = time.Now
	}
	runID := NewRunID(now())
	dir := filepath.Join(e.RunsRoot, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, scriptFileName), []byte(req.ScriptText+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write user script: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, wrapperFileName), []byte(wrapperSource()), 0o644); err != nil {
		return nil, fmt.Errorf("write wrapper script: %w", err)
	}

	if _, err := exec.LookPath(req.ToolCommand); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, req.ToolCommand)
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	minTimeout := e.MinTimeout
	if minTimeout <= 0 {
		minTimeout = DefaultMinTimeout
	}
	if timeout < minTimeout {
		timeout = minTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, req.ToolCommand, wrapperFileName)
	cmd.Dir = dir
	// don't let orphaned tool children hold the output pipes open forever
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if cctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(runErr, &exitErr):
			exitCode = exitErr.ExitCode()
		case errors.Is(runErr, exec.ErrWaitDelay):
			// the tool exited but a child kept the pipes open
			exitCode = cmd.ProcessState.ExitCode()
		case errors.Is(runErr, exec.ErrNotFound):
			return nil, fmt.Errorf("%w: %q", ErrToolNotFound, req.ToolCommand)
		default:
			return nil, fmt.Errorf("start tool: %w", runErr)
		}
	}

	// Artifacts reflect the literal run directory contents at the moment
	// execution completed, before the result record itself is written.
	artifacts, err := listArtifacts(dir)
	if err != nil {
		return nil, fmt.Errorf("enumerate artifacts: %w", err)
	}

	status := StatusError
	if exitCode == 0 {
		status = StatusSuccess
	}
	res := &RunResult{
		RunID:     runID,
		Status:    status,
		ExitCode:  exitCode,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Artifacts: artifacts,
	}
	res.Summary = e.summarize(res, req, dir)

	if data, err := json.MarshalIndent(res, "", "  "); err == nil {
		if err := os.WriteFile(filepath.Join(dir, resultRecordName), data, 0o644); err != nil {
			log.Printf("run %s: persist result record: %v", runID, err)
		}
	}
	// The result record is excluded from Artifacts but still belongs in
	// the durable mirror.
	e.mirror(ctx, runID, dir, append(artifacts, resultRecordName))
	return res, nil
}

func listArtifacts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

func (e *Executor) summarize(res *RunResult, req Request, dir string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s\n", res.RunID)
	fmt.Fprintf(&b, "Tool: %s\n", req.ToolLabel)
	fmt.Fprintf(&b, "Command: %s %s\n", req.ToolCommand, wrapperFileName)
	fmt.Fprintf(&b, "Exit code: %d\n", res.ExitCode)
	fmt.Fprintf(&b, "Artifacts: %s\n", strings.Join(res.Artifacts, ", "))
	if note, err := os.ReadFile(filepath.Join(dir, ReportFileName)); err == nil {
		trimmed := strings.TrimSpace(string(note))
		if trimmed != "" {
			fmt.Fprintf(&b, "Run note: %s\n", trimmed)
		}
	}
	return b.String()
}

// mirror uploads the run's files to the configured artifact store.
// Failures are logged and never affect the run outcome.
func (e *Executor) mirror(ctx context.Context, runID, dir string, artifacts []string) {
	if e.Artifacts == nil {
		return
	}
	mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for _, name := range artifacts {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Printf("run %s: mirror read %s: %v", runID, name, err)
			continue
		}
		if err := e.Artifacts.Put(mctx, runID, name, content); err != nil {
			log.Printf("run %s: mirror upload %s: %v", runID, name, err)
		}
	}
}
