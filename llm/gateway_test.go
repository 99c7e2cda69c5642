package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brunobiangulo/aiworkflows/trace"
)

// scriptedProvider answers each call with the next scripted step.
type scriptedProvider struct {
	mu    sync.Mutex
	steps []step
	calls []VisionChatRequest
}

type step struct {
	content string
	err     error
	block   bool // wait for ctx cancellation
	ignore  bool // block without honouring ctx
}

func (p *scriptedProvider) next(ctx context.Context, req VisionChatRequest) (*ChatResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	var s step
	if len(p.steps) > 0 {
		s = p.steps[0]
		p.steps = p.steps[1:]
	}
	p.mu.Unlock()

	switch {
	case s.ignore:
		time.Sleep(time.Hour)
	case s.block:
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &ChatResponse{Content: s.content, Model: "stub", PromptTokens: 10, CompletionTokens: 5}, nil
}

func (p *scriptedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	vreq := VisionChatRequest{Model: req.Model, ResponseFormat: req.ResponseFormat}
	for _, m := range req.Messages {
		vreq.Messages = append(vreq.Messages, VisionMessage{Role: m.Role, Content: []ContentPart{TextPart(m.Content)}})
	}
	return p.next(ctx, vreq)
}

func (p *scriptedProvider) ChatWithImages(ctx context.Context, req VisionChatRequest) (*ChatResponse, error) {
	return p.next(ctx, req)
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// textOnly hides the vision method.
type textOnly struct{ p *scriptedProvider }

func (t textOnly) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return t.p.Chat(ctx, req)
}

type recordingTracer struct {
	mu      sync.Mutex
	entries []*trace.Entry
}

func (r *recordingTracer) RecordAsync(e *trace.Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

func newTestGateway(p Provider, cfg GatewayConfig, opts ...GatewayOption) *Gateway {
	g := NewGateway(p, cfg, opts...)
	g.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return g
}

var transient = &ProviderError{Provider: "stub", StatusCode: 429, Err: errors.New("rate limited")}

func TestGatewaySuccess(t *testing.T) {
	p := &scriptedProvider{steps: []step{{content: `{"answer": 42}`}}}
	g := newTestGateway(p, GatewayConfig{Provider: "stub", Model: "m"})

	resp, err := g.GetJSONResponse(context.Background(), JSONRequest{Prompt: "question"})
	if err != nil {
		t.Fatalf("GetJSONResponse: %v", err)
	}
	if resp.Object["answer"] != float64(42) {
		t.Errorf("Object = %v", resp.Object)
	}
	if resp.Attempts != 1 || resp.Retries != 0 {
		t.Errorf("attempts = %d retries = %d", resp.Attempts, resp.Retries)
	}
	if resp.Raw != `{"answer": 42}` || resp.RequestID == "" {
		t.Errorf("Raw = %q RequestID = %q", resp.Raw, resp.RequestID)
	}
	if resp.PromptTokens != 10 || resp.CompletionTokens != 5 {
		t.Errorf("tokens = %d/%d", resp.PromptTokens, resp.CompletionTokens)
	}
	if got := p.calls[0].ResponseFormat; got != "json_object" {
		t.Errorf("ResponseFormat = %q, want json_object", got)
	}
}

func TestGatewayRetriesTransient(t *testing.T) {
	for k := 0; k <= 2; k++ {
		steps := make([]step, 0, k+1)
		for i := 0; i < k; i++ {
			steps = append(steps, step{err: transient})
		}
		steps = append(steps, step{content: `{"ok": true}`})
		p := &scriptedProvider{steps: steps}
		g := newTestGateway(p, GatewayConfig{MaxRetries: 2})

		resp, err := g.GetJSONResponse(context.Background(), JSONRequest{Prompt: "q"})
		if err != nil {
			t.Fatalf("k=%d: GetJSONResponse: %v", k, err)
		}
		if resp.Retries != k || resp.Attempts != k+1 {
			t.Errorf("k=%d: retries = %d attempts = %d", k, resp.Retries, resp.Attempts)
		}
	}
}

func TestGatewayExhaustsRetries(t *testing.T) {
	p := &scriptedProvider{steps: []step{{err: transient}, {err: transient}, {err: transient}, {content: `{}`}}}
	g := newTestGateway(p, GatewayConfig{MaxRetries: 2})

	resp, err := g.GetJSONResponse(context.Background(), JSONRequest{Prompt: "q"})
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("error = %v, want ErrTransient", err)
	}
	if resp == nil || resp.Attempts != 3 || resp.Retries != 2 {
		t.Errorf("resp = %+v", resp)
	}
	if p.callCount() != 3 {
		t.Errorf("provider called %d times, want 3", p.callCount())
	}
}

func TestGatewayFatalNotRetried(t *testing.T) {
	fatal := &ProviderError{Provider: "stub", StatusCode: 401, Err: errors.New("bad key")}
	p := &scriptedProvider{steps: []step{{err: fatal}, {content: `{}`}}}
	g := newTestGateway(p, GatewayConfig{MaxRetries: 2})

	_, err := g.GetJSONResponse(context.Background(), JSONRequest{Prompt: "q"})
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("error = %v, want ErrFatal", err)
	}
	if p.callCount() != 1 {
		t.Errorf("provider called %d times, want 1", p.callCount())
	}
}

func TestGatewayInvalidJSONFollowUp(t *testing.T) {
	p := &scriptedProvider{steps: []step{
		{content: "I think the answer is 42."},
		{content: "```json\n{\"answer\": 42}\n```"},
	}}
	g := newTestGateway(p, GatewayConfig{MaxRetries: 2})

	resp, err := g.GetJSONResponse(context.Background(), JSONRequest{
		Prompt:     "What is the answer?",
		Validation: "An object with a numeric `answer` key.",
	})
	if err != nil {
		t.Fatalf("GetJSONResponse: %v", err)
	}
	if resp.Retries != 1 || resp.Object["answer"] != float64(42) {
		t.Errorf("resp = %+v", resp)
	}

	follow := p.calls[1].Messages
	if len(follow) != 3 {
		t.Fatalf("follow-up has %d messages, want 3", len(follow))
	}
	if follow[0].Content[0].Text != "What is the answer?" {
		t.Errorf("original prompt not kept: %+v", follow[0])
	}
	if follow[1].Role != "assistant" || follow[1].Content[0].Text != "I think the answer is 42." {
		t.Errorf("assistant turn = %+v", follow[1])
	}
	correction := follow[2].Content[0].Text
	if !strings.Contains(correction, "numeric `answer` key") || !strings.Contains(correction, "JSON") {
		t.Errorf("correction prompt = %q", correction)
	}
}

func TestGatewayInvalidJSONExhausted(t *testing.T) {
	p := &scriptedProvider{steps: []step{{content: "nope"}, {content: "still nope"}}}
	g := newTestGateway(p, GatewayConfig{MaxRetries: 1})

	resp, err := g.GetJSONResponse(context.Background(), JSONRequest{Prompt: "q"})
	if !errors.Is(err, ErrInvalidJSON) {
		t.Fatalf("error = %v, want ErrInvalidJSON", err)
	}
	if resp.Raw != "still nope" || resp.Object != nil {
		t.Errorf("resp = %+v", resp)
	}
}

func TestGatewaySchemaViolationRetried(t *testing.T) {
	p := &scriptedProvider{steps: []step{
		{content: `{"items": "not a list"}`},
		{content: `{"items": ["a"]}`},
	}}
	g := newTestGateway(p, GatewayConfig{MaxRetries: 2})

	resp, err := g.GetJSONResponse(context.Background(), JSONRequest{
		Prompt: "q",
		Schema: `{"type":"object","required":["items"],"properties":{"items":{"type":"array"}}}`,
	})
	if err != nil {
		t.Fatalf("GetJSONResponse: %v", err)
	}
	if resp.Retries != 1 {
		t.Errorf("retries = %d, want 1", resp.Retries)
	}
}

func TestGatewayTimeout(t *testing.T) {
	tests := []struct {
		name string
		s    step
	}{
		{"provider honours ctx", step{block: true}},
		{"provider ignores ctx", step{ignore: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{steps: []step{tt.s, tt.s, tt.s}}
			g := NewGateway(p, GatewayConfig{Timeout: 100 * time.Millisecond, MaxRetries: 2, RetryDelay: 10 * time.Millisecond})

			start := time.Now()
			_, err := g.GetJSONResponse(context.Background(), JSONRequest{Prompt: "q"})
			elapsed := time.Since(start)

			if !errors.Is(err, ErrTransient) || !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("error = %v, want ErrTransient and DeadlineExceeded", err)
			}
			if elapsed > 2*time.Second {
				t.Errorf("call took %v, want about 100ms", elapsed)
			}
		})
	}
}

func TestGatewayRetryAfterBoundedByTimeout(t *testing.T) {
	limited := &ProviderError{Provider: "stub", StatusCode: 429, RetryAfter: time.Hour, Err: errors.New("slow down")}
	p := &scriptedProvider{steps: []step{{err: limited}, {content: `{}`}}}
	g := NewGateway(p, GatewayConfig{Timeout: 100 * time.Millisecond, MaxRetries: 2, RetryDelay: time.Millisecond})

	start := time.Now()
	_, err := g.GetJSONResponse(context.Background(), JSONRequest{Prompt: "q"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("call took %v", elapsed)
	}
}

func TestGatewayRetryAfterExtendsDelay(t *testing.T) {
	limited := &ProviderError{Provider: "stub", StatusCode: 429, RetryAfter: 3 * time.Second, Err: errors.New("slow down")}
	p := &scriptedProvider{steps: []step{{err: limited}, {content: `{}`}}}
	g := NewGateway(p, GatewayConfig{MaxRetries: 1, RetryDelay: time.Second})

	var delays []time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	if _, err := g.GetJSONResponse(context.Background(), JSONRequest{Prompt: "q"}); err != nil {
		t.Fatalf("GetJSONResponse: %v", err)
	}
	if len(delays) != 1 || delays[0] != 3*time.Second {
		t.Errorf("delays = %v, want [3s]", delays)
	}
}

func TestGatewayParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &scriptedProvider{steps: []step{{content: `{}`}}}
	g := newTestGateway(p, GatewayConfig{})

	_, err := g.GetJSONResponse(ctx, JSONRequest{Prompt: "q"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if p.callCount() != 0 {
		t.Errorf("provider called %d times after cancellation", p.callCount())
	}
}

func TestGatewayConfigErrors(t *testing.T) {
	p := &scriptedProvider{}
	g := newTestGateway(textOnly{p}, GatewayConfig{})

	tests := []struct {
		name string
		req  JSONRequest
	}{
		{"empty prompt", JSONRequest{Prompt: "  "}},
		{"images on text provider", JSONRequest{Prompt: "q", Images: []Image{{MIMEType: "image/png", Data: []byte{1}}}}},
		{"bad schema", JSONRequest{Prompt: "q", Schema: "{"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := g.GetJSONResponse(context.Background(), tt.req); !errors.Is(err, ErrConfig) {
				t.Errorf("error = %v, want ErrConfig", err)
			}
		})
	}
	if g.SupportsVision() {
		t.Error("text-only provider reported vision support")
	}
}

func TestGatewayVisionAndTrace(t *testing.T) {
	p := &scriptedProvider{steps: []step{{err: transient}, {content: `{"page": 1}`}}}
	tr := &recordingTracer{}
	g := newTestGateway(p, GatewayConfig{Provider: "stub", Model: "m", MaxRetries: 2}, WithTracer(tr))

	img := Image{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
	resp, err := g.GetJSONResponse(context.Background(), JSONRequest{Prompt: "describe", Images: []Image{img}})
	if err != nil {
		t.Fatalf("GetJSONResponse: %v", err)
	}

	parts := p.calls[0].Messages[0].Content
	if len(parts) != 2 || parts[1].Type != "image_url" || parts[1].ImageURL.URL != img.DataURL() {
		t.Errorf("vision parts = %+v", parts)
	}

	if len(tr.entries) != 2 {
		t.Fatalf("trace entries = %d, want 2", len(tr.entries))
	}
	first, second := tr.entries[0], tr.entries[1]
	if first.Attempt != 1 || first.Error == "" || first.Kind != "vision" {
		t.Errorf("first entry = %+v", first)
	}
	if second.Attempt != 2 || second.Response != `{"page": 1}` || second.RequestID != resp.RequestID {
		t.Errorf("second entry = %+v", second)
	}
}

func TestGatewayTextProviderMessages(t *testing.T) {
	p := &scriptedProvider{steps: []step{{content: `{}`}}}
	g := newTestGateway(textOnly{p}, GatewayConfig{})
	if _, err := g.GetJSONResponse(context.Background(), JSONRequest{Prompt: "plain"}); err != nil {
		t.Fatalf("GetJSONResponse: %v", err)
	}
	if got := p.calls[0].Messages[0].Content[0].Text; got != "plain" {
		t.Errorf("prompt = %q", got)
	}
}
