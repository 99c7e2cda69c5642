package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/brunobiangulo/aiworkflows"
)

const maxUploadBytes = 200 << 20

type handler struct {
	conv aiworkflows.Converter
}

func newHandler(c aiworkflows.Converter) *handler {
	return &handler{conv: c}
}

// POST /convert/markdown
// Multipart upload with a "file" field.
func (h *handler) handleConvertMarkdown(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	path, cleanup, ok := saveUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	res, err := h.conv.ConvertToMarkdown(ctx, path)
	if err != nil {
		writeConversionError(w, "markdown conversion", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /convert/json
// Multipart upload with a "file" field plus context, job, output_spec and
// the optional schema and markdown_first fields.
func (h *handler) handleConvertJSON(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	path, cleanup, ok := saveUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	spec := aiworkflows.JSONSpec{
		Context:    r.FormValue("context"),
		Job:        r.FormValue("job"),
		OutputSpec: r.FormValue("output_spec"),
	}
	opts, err := jsonOptions(r.FormValue("schema"), r.FormValue("markdown_first"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.conv.ConvertToJSON(ctx, path, spec, opts...)
	if err != nil {
		writeConversionError(w, "json conversion", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /plan
// Multipart upload with a "file" field and an optional target.
func (h *handler) handlePlan(w http.ResponseWriter, r *http.Request) {
	path, cleanup, ok := saveUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	target := aiworkflows.Target(r.FormValue("target"))
	if target == "" {
		target = aiworkflows.TargetMarkdown
	}
	opts, err := jsonOptions("", r.FormValue("markdown_first"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan, err := h.conv.Plan(r.Context(), path, target, opts...)
	if err != nil {
		writeConversionError(w, "plan", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// POST /markdown/json
func (h *handler) handleMarkdownJSON(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	var req struct {
		Markdown       string `json:"markdown"`
		Context        string `json:"context"`
		Job            string `json:"job"`
		OutputSpec     string `json:"output_spec"`
		Schema         string `json:"schema,omitempty"`
		MaxChunkTokens int    `json:"max_chunk_tokens,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Markdown == "" {
		writeError(w, http.StatusBadRequest, "markdown is required")
		return
	}
	if req.MaxChunkTokens < 0 {
		writeError(w, http.StatusBadRequest, "max_chunk_tokens must not be negative")
		return
	}

	var opts []aiworkflows.JSONOption
	if req.Schema != "" {
		opts = append(opts, aiworkflows.WithSchema(req.Schema))
	}
	spec := aiworkflows.JSONSpec{Context: req.Context, Job: req.Job, OutputSpec: req.OutputSpec}
	res, err := h.conv.MarkdownToJSON(ctx, req.Markdown, spec, req.MaxChunkTokens, opts...)
	if err != nil {
		writeConversionError(w, "markdown to json", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /llm/json
func (h *handler) handleLLMJSON(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	var req struct {
		Prompt     string `json:"prompt"`
		Validation string `json:"validation,omitempty"`
		Schema     string `json:"schema,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	var opts []aiworkflows.JSONOption
	if req.Schema != "" {
		opts = append(opts, aiworkflows.WithSchema(req.Schema))
	}
	resp, err := h.conv.GetJSONResponse(ctx, req.Prompt, req.Validation, opts...)
	if err != nil {
		writeConversionError(w, "json response", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"object":     resp.Object,
		"attempts":   resp.Attempts,
		"model":      resp.Model,
		"request_id": resp.RequestID,
	})
}

// POST /tokens
func (h *handler) handleTokens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text      string `json:"text"`
		MaxTokens int    `json:"max_tokens,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	out := map[string]any{"tokens": aiworkflows.CountTokens(req.Text)}
	if req.MaxTokens > 0 {
		text := aiworkflows.EnforceMaxTokens(req.Text, req.MaxTokens)
		out["text"] = text
		out["truncated_tokens"] = aiworkflows.CountTokens(text)
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	caps := h.conv.Capabilities()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"llm":             caps.LLM,
		"vision":          caps.VisionLLM,
		"office_renderer": caps.OfficeRenderer,
		"cache":           h.conv.Store() != nil,
	})
}

// saveUpload stores the multipart "file" field in a private temp
// directory, keeping its base name so the format can be detected from the
// extension. On failure it has already written the response.
func saveUpload(w http.ResponseWriter, r *http.Request) (string, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart form with a 'file' field")
		return "", nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return "", nil, false
	}
	defer file.Close()

	dir, err := os.MkdirTemp("", "aiworkflows-upload-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process file")
		slog.Error("creating upload dir", "error", err)
		return "", nil, false
	}
	cleanup := func() { os.RemoveAll(dir) }

	// Sanitise filename to prevent path traversal.
	path := filepath.Join(dir, filepath.Base(header.Filename))
	dst, err := os.Create(path)
	if err != nil {
		cleanup()
		writeError(w, http.StatusInternalServerError, "failed to process file")
		slog.Error("creating upload file", "error", err)
		return "", nil, false
	}
	_, err = io.Copy(dst, file)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		writeError(w, http.StatusInternalServerError, "failed to save file")
		slog.Error("saving uploaded file", "error", err)
		return "", nil, false
	}
	return path, cleanup, true
}

func jsonOptions(schema, markdownFirst string) ([]aiworkflows.JSONOption, error) {
	var opts []aiworkflows.JSONOption
	if schema != "" {
		opts = append(opts, aiworkflows.WithSchema(schema))
	}
	if markdownFirst != "" {
		v, err := strconv.ParseBool(markdownFirst)
		if err != nil {
			return nil, errors.New("markdown_first must be true or false")
		}
		opts = append(opts, aiworkflows.WithMarkdownFirst(v))
	}
	return opts, nil
}

// statusFor maps the error taxonomy to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, aiworkflows.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, aiworkflows.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, aiworkflows.ErrDocumentUnreadable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, aiworkflows.ErrProviderTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, aiworkflows.ErrProviderFatal),
		errors.Is(err, aiworkflows.ErrJSONValidation),
		errors.Is(err, aiworkflows.ErrAllUnitsFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeConversionError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	msg := op + " failed"
	if status < http.StatusInternalServerError {
		msg = err.Error()
	}
	slog.Error(op+" error", "status", status, "error", err)
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
