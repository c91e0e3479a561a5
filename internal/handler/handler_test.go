package handler

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdpflow/internal/llm"
	"sdpflow/internal/runner"
	"sdpflow/internal/tools"
)

type fakeClient struct {
	reply string
	err   error
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Complete(context.Context, llm.CompletionRequest) (string, error) {
	return f.reply, f.err
}

func newTestHandler(t *testing.T, client llm.Client, clientErr error) *Handler {
	t.Helper()
	h := New(llm.ModelConfig{}, &runner.Executor{
		RunsRoot:   t.TempDir(),
		MinTimeout: 100 * time.Millisecond,
	}, tools.Open(""))
	h.newClient = func(context.Context, llm.ModelConfig) (llm.Client, error) {
		if clientErr != nil {
			return nil, clientErr
		}
		return client, nil
	}
	return h
}

func post(t *testing.T, fn http.HandlerFunc, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(b))
	rec := httptest.NewRecorder()
	fn(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return rec, out
}

func archiveB64(t *testing.T, members map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range members {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func writeTool(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "faketool")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestConvert_HappyPath(t *testing.T) {
	h := newTestHandler(t, nil, nil)
	content := archiveB64(t, map[string]string{
		"bd.xml": `<Model><Block BlockType="Gain" Name="K"/><Line Src="a" Dst="b"/></Model>`,
	})

	rec, out := post(t, h.HandleConvert, map[string]any{
		"filename":    "plant.slx",
		"content_b64": content,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, out["ok"])
	assert.Contains(t, out["readable_text"], "plant.slx")
	stats := out["stats"].(map[string]any)
	assert.Equal(t, float64(1), stats["blocks"])
	assert.Equal(t, float64(1), stats["lines"])
	assert.Equal(t, float64(1), stats["xml_files"])
}

func TestConvert_ValidationAndArchiveErrorsAreDistinct(t *testing.T) {
	h := newTestHandler(t, nil, nil)

	rec, out := post(t, h.HandleConvert, map[string]any{"filename": "plant.slx"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", out["code"])

	rec, out = post(t, h.HandleConvert, map[string]any{
		"filename":    "plant.mdl",
		"content_b64": base64.StdEncoding.EncodeToString([]byte("x")),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", out["code"])

	rec, out = post(t, h.HandleConvert, map[string]any{
		"filename":    "plant.slx",
		"content_b64": "!!!not-base64!!!",
	})
	assert.Equal(t, "validation", out["code"])

	rec, out = post(t, h.HandleConvert, map[string]any{
		"filename":    "plant.slx",
		"content_b64": base64.StdEncoding.EncodeToString([]byte("not a zip at all")),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_archive", out["code"])
}

func TestConvert_CachesByContent(t *testing.T) {
	h := newTestHandler(t, nil, nil)
	content := archiveB64(t, map[string]string{"m.xml": `<Model/>`})
	body := map[string]any{"filename": "m.slx", "content_b64": content}

	_, first := post(t, h.HandleConvert, body)
	_, second := post(t, h.HandleConvert, body)
	require.Equal(t, true, first["ok"])
	require.Equal(t, first["readable_text"], second["readable_text"])
	assert.Equal(t, 1, h.summaries.Len())
}

func TestConvert_SameContentDifferentFilename(t *testing.T) {
	h := newTestHandler(t, nil, nil)
	content := archiveB64(t, map[string]string{"m.xml": `<Model/>`})

	_, first := post(t, h.HandleConvert, map[string]any{"filename": "alpha.slx", "content_b64": content})
	_, second := post(t, h.HandleConvert, map[string]any{"filename": "beta.slx", "content_b64": content})
	require.Equal(t, true, second["ok"])
	assert.Contains(t, first["readable_text"], "alpha.slx")
	assert.Contains(t, second["readable_text"], "beta.slx")
}

func TestAsk_HappyPath(t *testing.T) {
	h := newTestHandler(t, &fakeClient{reply: "two gain blocks"}, nil)

	rec, out := post(t, h.HandleAsk, map[string]any{
		"prompt":        "how many gain blocks?",
		"readable_text": "=== Model Summary ===",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "two gain blocks", out["answer"])
}

func TestAsk_RequiresPromptAndContext(t *testing.T) {
	h := newTestHandler(t, &fakeClient{reply: "x"}, nil)
	_, out := post(t, h.HandleAsk, map[string]any{"prompt": "p"})
	assert.Equal(t, "validation", out["code"])
}

func TestAsk_NoCredential(t *testing.T) {
	h := newTestHandler(t, nil, llm.ErrNoCredential)
	rec, out := post(t, h.HandleAsk, map[string]any{
		"prompt":        "p",
		"readable_text": "ctx",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "config", out["code"])
}

func TestWorkflow_EndToEnd(t *testing.T) {
	tool := writeTool(t, `echo "sim ok"`)
	h := newTestHandler(t, &fakeClient{reply: "```matlab\nsdp_result = 42;\n```"}, nil)

	rec, out := post(t, h.HandleWorkflow, map[string]any{
		"prompt":        "run the simulation",
		"readable_text": "=== Model Summary ===",
		"tool_cmd":      tool,
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %v", out)
	require.Equal(t, true, out["ok"])
	assert.Equal(t, "sdp_result = 42;", out["generated_script"])

	run := out["run_result"].(map[string]any)
	assert.Equal(t, "success", run["status"])
	assert.Equal(t, float64(0), run["exit_code"])
	assert.Contains(t, run["stdout"], "sim ok")
	assert.NotEmpty(t, out["report"])
}

func TestWorkflow_TimeoutEnvelope(t *testing.T) {
	tool := writeTool(t, "sleep 5")
	h := newTestHandler(t, &fakeClient{reply: "sdp_result = 1;"}, nil)

	rec, out := post(t, h.HandleWorkflow, map[string]any{
		"prompt":        "slow run",
		"readable_text": "ctx",
		"tool_cmd":      tool,
	})
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "timeout", out["code"])
	assert.NotContains(t, out, "run_result")
}

func TestWorkflow_ToolNotFoundEnvelope(t *testing.T) {
	h := newTestHandler(t, &fakeClient{reply: "sdp_result = 1;"}, nil)

	_, out := post(t, h.HandleWorkflow, map[string]any{
		"prompt":        "p",
		"readable_text": "ctx",
		"tool_cmd":      "no-such-simulation-tool",
	})
	assert.Equal(t, "tool_not_found", out["code"])
}

func TestWorkflow_DisallowedToolIsValidationError(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "tools.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte("tools:\n  - label: octave\n    command: octave-cli\n"), 0o644))
	registry, err := tools.Load(manifest, "")
	require.NoError(t, err)

	h := newTestHandler(t, &fakeClient{reply: "sdp_result = 1;"}, nil)
	h.registry = registry

	rec, out := post(t, h.HandleWorkflow, map[string]any{
		"prompt":        "p",
		"readable_text": "ctx",
		"tool_cmd":      "/bin/sh",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", out["code"])
}

func TestWorkflow_EmptyScriptEnvelope(t *testing.T) {
	h := newTestHandler(t, &fakeClient{reply: "```\n\n```"}, nil)
	_, out := post(t, h.HandleWorkflow, map[string]any{
		"prompt":        "p",
		"readable_text": "ctx",
	})
	assert.Equal(t, "empty_script", out["code"])
}

func TestMergedModel_RequestOverridesDefaults(t *testing.T) {
	h := New(llm.ModelConfig{Model: "default-model", BaseURL: "https://default"}, nil, tools.Open(""))

	got := h.mergedModel(&llm.ModelConfig{Model: "override"})
	assert.Equal(t, "override", got.Model)
	assert.Equal(t, "https://default", got.BaseURL)

	got = h.mergedModel(nil)
	assert.Equal(t, "default-model", got.Model)
}
