package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 8192

// anthropicProvider implements VisionProvider over the Messages API.
type anthropicProvider struct {
	cfg    Config
	client anthropic.Client
}

// NewAnthropic creates a provider for the Anthropic API. SDK-level
// retries are disabled so Gateway owns the retry policy.
func NewAnthropic(cfg Config) VisionProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicProvider{cfg: cfg, client: anthropic.NewClient(opts...)}
}

func (p *anthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	vreq := VisionChatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, m := range req.Messages {
		vreq.Messages = append(vreq.Messages, VisionMessage{Role: m.Role, Content: []ContentPart{TextPart(m.Content)}})
	}
	return p.ChatWithImages(ctx, vreq)
}

func (p *anthropicProvider) ChatWithImages(ctx context.Context, req VisionChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.cfg.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}
	if t := req.Temperature; t > 0 {
		params.Temperature = anthropic.Float(t)
	} else if p.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(p.cfg.Temperature)
	}

	for _, m := range req.Messages {
		if m.Role == "system" {
			for _, part := range m.Content {
				if part.Text != "" {
					params.System = append(params.System, anthropic.TextBlockParam{Text: part.Text})
				}
			}
			continue
		}
		blocks, err := anthropicBlocks(m.Content)
		if err != nil {
			return nil, err
		}
		if m.Role == "assistant" {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(blocks...))
		}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.classify(ctx, err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		}
	}

	in, out := int(message.Usage.InputTokens), int(message.Usage.OutputTokens)
	return &ChatResponse{
		Content:          text.String(),
		Model:            string(message.Model),
		FinishReason:     string(message.StopReason),
		PromptTokens:     in,
		CompletionTokens: out,
		TotalTokens:      in + out,
	}, nil
}

// anthropicBlocks converts content parts; images must be base64 data URLs.
func anthropicBlocks(parts []ContentPart) ([]anthropic.ContentBlockParamUnion, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case "image_url":
			if part.ImageURL == nil {
				continue
			}
			mime, data, err := splitDataURL(part.ImageURL.URL)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, anthropic.NewImageBlockBase64(mime, data))
		default:
			blocks = append(blocks, anthropic.NewTextBlock(part.Text))
		}
	}
	return blocks, nil
}

// splitDataURL returns the MIME type and base64 payload of a data URL.
func splitDataURL(u string) (string, string, error) {
	rest, ok := strings.CutPrefix(u, "data:")
	if !ok {
		return "", "", fmt.Errorf("%w: anthropic provider needs inline base64 images", ErrConfig)
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return "", "", fmt.Errorf("%w: malformed image data URL", ErrConfig)
	}
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		return "", "", fmt.Errorf("%w: image data is not base64: %v", ErrConfig, err)
	}
	return strings.TrimSuffix(meta, ";base64"), data, nil
}

func (p *anthropicProvider) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe := &ProviderError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Err: err}
		if apiErr.Response != nil {
			pe.RetryAfter = parseRetryAfter(apiErr.Response.Header)
		}
		return pe
	}
	return &ProviderError{Provider: "anthropic", Err: err}
}
