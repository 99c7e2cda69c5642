package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/aiworkflows/trace"
)

// Gateway defaults.
const (
	DefaultTimeout    = 600 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryDelay = 5 * time.Second
)

// GatewayConfig bounds a single GetJSONResponse call.
type GatewayConfig struct {
	Timeout    time.Duration // total wall-clock budget across all attempts
	MaxRetries int           // attempts after the first; negative means none
	RetryDelay time.Duration // fixed pause between attempts

	// Provider names the backend in logs and trace records.
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
}

func (c *GatewayConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
}

// Tracer receives one record per provider attempt. Implementations must not
// block.
type Tracer interface {
	RecordAsync(e *trace.Entry)
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithTracer attaches a trace collector.
func WithTracer(t Tracer) GatewayOption {
	return func(g *Gateway) { g.tracer = t }
}

// JSONRequest is a prompt whose answer must be a JSON object.
type JSONRequest struct {
	Prompt string
	// Validation describes the expected shape in plain language. It is
	// repeated to the model when an answer has to be corrected.
	Validation string
	// Schema is an optional JSON Schema document the answer must satisfy.
	Schema string
	// Images are sent alongside the prompt; they require a VisionProvider.
	Images []Image
}

// JSONResponse is the outcome of GetJSONResponse. On failure it still
// carries the last raw answer and the attempt counts.
type JSONResponse struct {
	Object           map[string]any
	Raw              string
	Attempts         int
	Retries          int
	Model            string
	PromptTokens     int
	CompletionTokens int
	RequestID        string
}

// Gateway sends prompts to a provider and returns validated JSON objects,
// retrying transient failures and invalid answers within a total timeout.
// A Gateway is safe for concurrent use.
type Gateway struct {
	provider Provider
	cfg      GatewayConfig
	tracer   Tracer

	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway wraps p with the retry and validation policy in cfg.
func NewGateway(p Provider, cfg GatewayConfig, opts ...GatewayOption) *Gateway {
	cfg.defaults()
	g := &Gateway{provider: p, cfg: cfg, sleep: sleepCtx}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SupportsVision reports whether the provider accepts images.
func (g *Gateway) SupportsVision() bool {
	_, ok := g.provider.(VisionProvider)
	return ok
}

// GetJSONResponse sends req.Prompt and returns the parsed JSON object.
//
// Transient provider errors and answers that fail to parse or validate are
// retried up to MaxRetries times with RetryDelay between attempts. After an
// invalid answer the next attempt continues the conversation with a
// correction request. Fatal provider errors return immediately. When the
// total timeout elapses the error wraps both ErrTransient and
// context.DeadlineExceeded. If ctx itself is cancelled, ctx.Err() is
// returned.
func (g *Gateway) GetJSONResponse(ctx context.Context, req JSONRequest) (*JSONResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrConfig)
	}
	var vision VisionProvider
	if len(req.Images) > 0 {
		vp, ok := g.provider.(VisionProvider)
		if !ok {
			return nil, fmt.Errorf("%w: provider %s does not accept images", ErrConfig, g.cfg.Provider)
		}
		vision = vp
	}
	var schema *Schema
	if req.Schema != "" {
		s, err := CompileSchema(req.Schema)
		if err != nil {
			return nil, err
		}
		schema = s
	}

	resp := &JSONResponse{RequestID: uuid.NewString()}
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	prompt := VisionMessage{Role: "user", Content: []ContentPart{TextPart(req.Prompt)}}
	for _, img := range req.Images {
		prompt.Content = append(prompt.Content, ImagePart(img))
	}
	conv := []VisionMessage{prompt}

	maxAttempts := g.cfg.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if callCtx.Err() != nil {
			if ctx.Err() != nil {
				return resp, ctx.Err()
			}
			return resp, g.timeoutErr(resp, lastErr)
		}
		resp.Attempts = attempt
		resp.Retries = attempt - 1

		attemptStart := time.Now()
		chat, err := g.call(callCtx, vision, conv)
		g.record(resp, attempt, conv, chat, err, time.Since(attemptStart))

		var delay time.Duration
		if err != nil {
			if ctx.Err() != nil {
				return resp, ctx.Err()
			}
			if callCtx.Err() != nil {
				return resp, g.timeoutErr(resp, err)
			}
			if !errors.Is(err, ErrTransient) {
				slog.Error("llm: request failed", "request_id", resp.RequestID,
					"provider", g.cfg.Provider, "attempt", attempt, "error", err)
				return resp, err
			}
			lastErr = err
			delay = g.cfg.RetryDelay
			var pe *ProviderError
			if errors.As(err, &pe) && pe.RetryAfter > delay {
				delay = pe.RetryAfter
			}
		} else {
			resp.Raw = chat.Content
			resp.Model = chat.Model
			resp.PromptTokens += chat.PromptTokens
			resp.CompletionTokens += chat.CompletionTokens

			obj, perr := ParseJSON(chat.Content)
			if perr == nil && schema != nil {
				perr = schema.Validate(obj)
			}
			if perr == nil {
				resp.Object = obj
				slog.Debug("llm: json response", "request_id", resp.RequestID,
					"attempts", attempt, "elapsed", time.Since(start))
				return resp, nil
			}
			lastErr = perr
			delay = g.cfg.RetryDelay
			conv = []VisionMessage{
				prompt,
				{Role: "assistant", Content: []ContentPart{TextPart(chat.Content)}},
				{Role: "user", Content: []ContentPart{TextPart(correctionPrompt(perr, req.Validation))}},
			}
		}

		if attempt == maxAttempts {
			break
		}
		if dl, ok := callCtx.Deadline(); ok {
			delay = min(delay, time.Until(dl))
		}
		slog.Warn("llm: retrying request", "request_id", resp.RequestID,
			"provider", g.cfg.Provider, "attempt", attempt, "delay", delay, "error", lastErr)
		if err := g.sleep(callCtx, delay); err != nil {
			if ctx.Err() != nil {
				return resp, ctx.Err()
			}
			return resp, g.timeoutErr(resp, lastErr)
		}
	}

	slog.Warn("llm: giving up", "request_id", resp.RequestID,
		"attempts", resp.Attempts, "elapsed", time.Since(start), "error", lastErr)
	return resp, fmt.Errorf("llm: no valid response after %d attempts: %w", resp.Attempts, lastErr)
}

// call runs one provider request. The provider runs in its own goroutine so
// that a provider ignoring ctx cannot hold the gateway past its deadline.
func (g *Gateway) call(ctx context.Context, vision VisionProvider, conv []VisionMessage) (*ChatResponse, error) {
	type result struct {
		resp *ChatResponse
		err  error
	}
	done := make(chan result, 1)

	go func() {
		var r result
		if vision != nil {
			r.resp, r.err = vision.ChatWithImages(ctx, VisionChatRequest{
				Model:          g.cfg.Model,
				Messages:       conv,
				Temperature:    g.cfg.Temperature,
				MaxTokens:      g.cfg.MaxTokens,
				ResponseFormat: "json_object",
			})
		} else {
			r.resp, r.err = g.provider.Chat(ctx, ChatRequest{
				Model:          g.cfg.Model,
				Messages:       textMessages(conv),
				Temperature:    g.cfg.Temperature,
				MaxTokens:      g.cfg.MaxTokens,
				ResponseFormat: "json_object",
			})
		}
		if r.err == nil && r.resp == nil {
			r.err = &ProviderError{Provider: g.cfg.Provider, Err: errors.New("empty response")}
		}
		done <- r
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gateway) timeoutErr(resp *JSONResponse, last error) error {
	if last == nil {
		return fmt.Errorf("%w: %w: no response within %s", ErrTransient, context.DeadlineExceeded, g.cfg.Timeout)
	}
	return fmt.Errorf("%w: %w: no valid response within %s after %d attempts (last error: %v)",
		ErrTransient, context.DeadlineExceeded, g.cfg.Timeout, resp.Attempts, last)
}

func (g *Gateway) record(resp *JSONResponse, attempt int, conv []VisionMessage, chat *ChatResponse, err error, elapsed time.Duration) {
	if g.tracer == nil {
		return
	}
	kind := "chat"
	last := conv[len(conv)-1]
	var prompt strings.Builder
	for _, part := range conv[0].Content {
		if part.Type == "image_url" {
			kind = "vision"
		}
	}
	for _, part := range last.Content {
		if part.Type == "text" {
			prompt.WriteString(part.Text)
		}
	}

	e := &trace.Entry{
		ID:         uuid.NewString(),
		RequestID:  resp.RequestID,
		Kind:       kind,
		Provider:   g.cfg.Provider,
		Model:      g.cfg.Model,
		Attempt:    attempt,
		Prompt:     trace.Truncate(prompt.String()),
		DurationMs: elapsed.Milliseconds(),
		Timestamp:  time.Now().UnixMilli(),
	}
	if chat != nil {
		e.Response = trace.Truncate(chat.Content)
		e.PromptTokens = chat.PromptTokens
		e.CompletionTokens = chat.CompletionTokens
		if chat.Model != "" {
			e.Model = chat.Model
		}
	}
	if err != nil {
		e.Error = err.Error()
	}
	g.tracer.RecordAsync(e)
}

func correctionPrompt(err error, validation string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your previous response could not be used: %v\n\n", err)
	b.WriteString("Respond again with a single, correctly-formatted JSON object and nothing else.")
	if v := strings.TrimSpace(validation); v != "" {
		b.WriteString(" The JSON must satisfy this description:\n\n")
		b.WriteString(v)
	}
	return b.String()
}

func textMessages(conv []VisionMessage) []Message {
	msgs := make([]Message, 0, len(conv))
	for _, m := range conv {
		var text strings.Builder
		for _, part := range m.Content {
			if part.Type == "text" {
				if text.Len() > 0 {
					text.WriteString("\n\n")
				}
				text.WriteString(part.Text)
			}
		}
		msgs = append(msgs, Message{Role: m.Role, Content: text.String()})
	}
	return msgs
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
