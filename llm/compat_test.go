package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpenAICompatChat(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model":"gpt-test","choices":[{"message":{"content":"{\"a\":1}"},"finish_reason":"stop"}],`+
			`"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`)
	}))
	defer srv.Close()

	p := NewOpenAI(Config{BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-test", MaxTokens: 100})
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages:       []Message{{Role: "user", Content: "hi"}},
		ResponseFormat: "json_object",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != `{"a":1}` || resp.TotalTokens != 7 || resp.Model != "gpt-test" {
		t.Errorf("resp = %+v", resp)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if got["model"] != "gpt-test" || got["max_tokens"] != float64(100) {
		t.Errorf("request body = %v", got)
	}
	if rf, _ := got["response_format"].(map[string]any); rf["type"] != "json_object" {
		t.Errorf("response_format = %v", got["response_format"])
	}
}

func TestOpenAICompatVisionPayload(t *testing.T) {
	var body struct {
		Messages []struct {
			Content []ContentPart `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		io.WriteString(w, `{"choices":[{"message":{"content":"{}"}}]}`)
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{BaseURL: srv.URL, Model: "m"})
	img := Image{MIMEType: "image/png", Data: []byte("png")}
	_, err := p.ChatWithImages(context.Background(), VisionChatRequest{
		Messages: []VisionMessage{{Role: "user", Content: []ContentPart{TextPart("look"), ImagePart(img)}}},
	})
	if err != nil {
		t.Fatalf("ChatWithImages: %v", err)
	}
	if len(body.Messages) != 1 || len(body.Messages[0].Content) != 2 {
		t.Fatalf("messages = %+v", body.Messages)
	}
	if u := body.Messages[0].Content[1].ImageURL; u == nil || u.URL != img.DataURL() {
		t.Errorf("image part = %+v", body.Messages[0].Content[1])
	}
}

func TestOpenAICompatErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		retryAfter string
		transient  bool
		wantAfter  time.Duration
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow"}`, "2", true, 2 * time.Second},
		{"server error", http.StatusInternalServerError, `oops`, "", true, 0},
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, "", false, 0},
		{"no choices", http.StatusOK, `{"choices":[]}`, "", true, 0},
		{"garbage body", http.StatusOK, `<html>`, "", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			p := NewOpenAICompat(Config{BaseURL: srv.URL, Model: "m"})
			_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}})
			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("error = %v, want *ProviderError", err)
			}
			if pe.Transient() != tt.transient {
				t.Errorf("Transient() = %v, want %v", pe.Transient(), tt.transient)
			}
			if pe.RetryAfter != tt.wantAfter {
				t.Errorf("RetryAfter = %v, want %v", pe.RetryAfter, tt.wantAfter)
			}
		})
	}
}

func TestOpenAICompatNetworkError(t *testing.T) {
	p := NewOpenAICompat(Config{BaseURL: "http://127.0.0.1:1", Model: "m"})
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}})
	if !errors.Is(err, ErrTransient) {
		t.Errorf("error = %v, want ErrTransient", err)
	}
}

func TestAzureRequest(t *testing.T) {
	var path, query, key, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, query = r.URL.Path, r.URL.RawQuery
		key, auth = r.Header.Get("api-key"), r.Header.Get("Authorization")
		io.WriteString(w, `{"choices":[{"message":{"content":"{}"}}]}`)
	}))
	defer srv.Close()

	p := NewAzure(Config{BaseURL: srv.URL, APIKey: "az-key", Model: "gpt4o-prod", APIVersion: "2024-10-21"})
	if _, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if path != "/openai/deployments/gpt4o-prod/chat/completions" {
		t.Errorf("path = %s", path)
	}
	if query != "api-version=2024-10-21" {
		t.Errorf("query = %s", query)
	}
	if key != "az-key" || auth != "" {
		t.Errorf("api-key = %q Authorization = %q", key, auth)
	}
}

func TestAnthropicMessages(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "ant-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("X-Api-Key"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",`+
			`"content":[{"type":"text","text":"{\"ok\":true}"}],"stop_reason":"end_turn",`+
			`"usage":{"input_tokens":11,"output_tokens":2}}`)
	}))
	defer srv.Close()

	p := NewAnthropic(Config{BaseURL: srv.URL, APIKey: "ant-key", Model: "claude-test"})
	img := Image{MIMEType: "image/png", Data: []byte("png")}
	resp, err := p.ChatWithImages(context.Background(), VisionChatRequest{
		Messages: []VisionMessage{
			{Role: "system", Content: []ContentPart{TextPart("be terse")}},
			{Role: "user", Content: []ContentPart{TextPart("look"), ImagePart(img)}},
		},
	})
	if err != nil {
		t.Fatalf("ChatWithImages: %v", err)
	}
	if resp.Content != `{"ok":true}` || resp.PromptTokens != 11 || resp.CompletionTokens != 2 {
		t.Errorf("resp = %+v", resp)
	}
	if got["max_tokens"] != float64(defaultAnthropicMaxTokens) {
		t.Errorf("max_tokens = %v", got["max_tokens"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages = %v (system should be hoisted)", got["messages"])
	}
	if got["system"] == nil {
		t.Error("system prompt missing")
	}
}

func TestAnthropicErrors(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "4")
			w.WriteHeader(tt.status)
			io.WriteString(w, `{"type":"error","error":{"type":"api_error","message":"nope"}}`)
		}))

		p := NewAnthropic(Config{BaseURL: srv.URL, APIKey: "k", Model: "m"})
		_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}})
		srv.Close()

		var pe *ProviderError
		if !errors.As(err, &pe) {
			t.Fatalf("status %d: error = %v, want *ProviderError", tt.status, err)
		}
		if pe.StatusCode != tt.status || pe.Transient() != tt.transient {
			t.Errorf("status %d: got %+v", tt.status, pe)
		}
		if pe.RetryAfter != 4*time.Second {
			t.Errorf("status %d: RetryAfter = %v", tt.status, pe.RetryAfter)
		}
	}
}

func TestSplitDataURL(t *testing.T) {
	mime, data, err := splitDataURL("data:image/png;base64,cG5n")
	if err != nil || mime != "image/png" || data != "cG5n" {
		t.Errorf("splitDataURL = %q, %q, %v", mime, data, err)
	}
	for _, bad := range []string{"https://x/y.png", "data:image/png,raw", "data:image/png;base64,!!!"} {
		if _, _, err := splitDataURL(bad); !errors.Is(err, ErrConfig) {
			t.Errorf("splitDataURL(%q) error = %v, want ErrConfig", bad, err)
		}
	}
}
