// Package handler exposes the pipeline as a small synchronous JSON API:
// convert, ask, and workflow, each wrapped in a uniform envelope.
package handler

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"sdpflow/internal/llm"
	"sdpflow/internal/report"
	"sdpflow/internal/runner"
	"sdpflow/internal/script"
	"sdpflow/internal/slx"
	"sdpflow/internal/tools"
)

const askSystemPrompt = `You are an assistant that answers engineering questions about a packaged
model design. You are given a readable summary extracted from the model archive.
Answer from that summary only; say so when the summary does not contain the answer.`

const summaryCacheSize = 64

type Handler struct {
	model     llm.ModelConfig
	newClient func(ctx context.Context, cfg llm.ModelConfig) (llm.Client, error)
	executor  *runner.Executor
	registry  *tools.Registry
	summaries *lru.Cache[string, *slx.Summary]
}

func New(defaults llm.ModelConfig, executor *runner.Executor, registry *tools.Registry) *Handler {
	cache, _ := lru.New[string, *slx.Summary](summaryCacheSize)
	return &Handler{
		model:     defaults,
		newClient: llm.NewClient,
		executor:  executor,
		registry:  registry,
		summaries: cache,
	}
}

// mergedModel overlays the per-request model config on the server defaults.
func (h *Handler) mergedModel(req *llm.ModelConfig) llm.ModelConfig {
	cfg := h.model
	if req == nil {
		return cfg
	}
	if strings.TrimSpace(req.APIKey) != "" {
		cfg.APIKey = req.APIKey
	}
	if strings.TrimSpace(req.BaseURL) != "" {
		cfg.BaseURL = req.BaseURL
	}
	if strings.TrimSpace(req.Model) != "" {
		cfg.Model = req.Model
	}
	return cfg
}

func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type convertRequest struct {
	Filename   string `json:"filename"`
	ContentB64 string `json:"content_b64"`
}

func (h *Handler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	var in convertRequest
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.ContentB64) == "" {
		writeValidation(w, "content_b64 is required")
		return
	}
	if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(in.Filename)), ".slx") {
		writeValidation(w, "filename must end in .slx")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(in.ContentB64)
	if err != nil {
		writeValidation(w, "content_b64 is not valid base64")
		return
	}

	// The display name is baked into the readable text, so the same
	// bytes under a different filename must not share a cache entry.
	digest := sha256.Sum256(raw)
	key := hex.EncodeToString(digest[:]) + "|" + in.Filename
	summary, ok := h.summaries.Get(key)
	if !ok {
		summary, err = slx.Summarize(raw, in.Filename)
		if err != nil {
			writeError(w, err)
			return
		}
		h.summaries.Add(key, summary)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"readable_text": summary.ReadableText,
		"stats":         summary.Stats,
	})
}

type askRequest struct {
	Prompt       string           `json:"prompt"`
	ReadableText string           `json:"readable_text"`
	ModelConfig  *llm.ModelConfig `json:"model_config,omitempty"`
}

func (h *Handler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	var in askRequest
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Prompt) == "" || strings.TrimSpace(in.ReadableText) == "" {
		writeValidation(w, "prompt and readable_text are required")
		return
	}
	client, err := h.newClient(r.Context(), h.mergedModel(in.ModelConfig))
	if err != nil {
		writeError(w, err)
		return
	}
	answer, err := client.Complete(r.Context(), llm.CompletionRequest{
		SystemPrompt: askSystemPrompt,
		UserPrompt:   "Model summary:\n" + in.ReadableText + "\n\nQuestion:\n" + in.Prompt,
		Temperature:  0.2,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "answer": answer})
}

type workflowRequest struct {
	Prompt       string           `json:"prompt"`
	ReadableText string           `json:"readable_text"`
	ModelConfig  *llm.ModelConfig `json:"model_config,omitempty"`
	ToolCmd      string           `json:"tool_cmd,omitempty"`
	TimeoutSec   int              `json:"timeout_sec,omitempty"`
}

func (h *Handler) HandleWorkflow(w http.ResponseWriter, r *http.Request) {
	var in workflowRequest
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Prompt) == "" || strings.TrimSpace(in.ReadableText) == "" {
		writeValidation(w, "prompt and readable_text are required")
		return
	}
	toolLabel, toolCmd, err := h.registry.Resolve(in.ToolCmd)
	if err != nil {
		writeError(w, err)
		return
	}
	client, err := h.newClient(r.Context(), h.mergedModel(in.ModelConfig))
	if err != nil {
		writeError(w, err)
		return
	}

	generated, err := script.Synthesize(r.Context(), client, in.Prompt, in.ReadableText)
	if err != nil {
		writeError(w, err)
		return
	}
	run, err := h.executor.Execute(r.Context(), runner.Request{
		ScriptText:     generated,
		ToolLabel:      toolLabel,
		ToolCommand:    toolCmd,
		TimeoutSeconds: in.TimeoutSec,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	text := report.Build(r.Context(), client, report.Input{
		Request:         in.Prompt,
		ReadableContext: in.ReadableText,
		ScriptText:      generated,
		Run:             run,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":               true,
		"generated_script": generated,
		"run_result":       run,
		"report":           text,
	})
}

// ---------------------------------------------------------------------------
// envelope helpers
// ---------------------------------------------------------------------------

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		writeEnvelope(w, http.StatusMethodNotAllowed, "validation", "POST required")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeValidation(w, "invalid json body")
		return false
	}
	return true
}

func writeValidation(w http.ResponseWriter, msg string) {
	writeEnvelope(w, http.StatusBadRequest, "validation", msg)
}

// writeError maps the pipeline error taxonomy to a stable envelope code.
func writeError(w http.ResponseWriter, err error) {
	var upstream *llm.UpstreamError
	switch {
	case errors.Is(err, slx.ErrInvalidArchive):
		writeEnvelope(w, http.StatusBadRequest, "invalid_archive", err.Error())
	case errors.Is(err, tools.ErrToolNotAllowed):
		writeEnvelope(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, llm.ErrNoCredential):
		writeEnvelope(w, http.StatusInternalServerError, "config", err.Error())
	case errors.Is(err, llm.ErrEmptyResponse):
		writeEnvelope(w, http.StatusBadGateway, "empty_response", err.Error())
	case errors.Is(err, script.ErrEmptyScript):
		writeEnvelope(w, http.StatusBadGateway, "empty_script", err.Error())
	case errors.Is(err, runner.ErrTimeout):
		writeEnvelope(w, http.StatusGatewayTimeout, "timeout", err.Error())
	case errors.Is(err, runner.ErrToolNotFound):
		writeEnvelope(w, http.StatusInternalServerError, "tool_not_found", err.Error())
	case errors.As(err, &upstream):
		writeEnvelope(w, http.StatusBadGateway, "upstream", err.Error())
	default:
		log.Printf("unhandled pipeline error: %v", err)
		writeEnvelope(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func writeEnvelope(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "code": code, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
