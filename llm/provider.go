package llm

import (
	"context"
	"encoding/base64"
	"fmt"
)

// Provider is the interface for LLM interactions.
type Provider interface {
	// Chat sends a chat completion request.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// VisionProvider extends Provider with image understanding.
type VisionProvider interface {
	Provider
	// ChatWithImages sends a chat request that includes images.
	ChatWithImages(ctx context.Context, req VisionChatRequest) (*ChatResponse, error)
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	// ResponseFormat can be set to "json_object" for JSON mode.
	ResponseFormat string `json:"response_format,omitempty"`
}

// VisionChatRequest is a chat request with image content.
type VisionChatRequest struct {
	Model          string          `json:"model"`
	Messages       []VisionMessage `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat string          `json:"response_format,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// VisionMessage represents a chat message that may contain images.
type VisionMessage struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is either text or an image in a vision message.
type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL contains a base64 or URL reference to an image.
type ImageURL struct {
	URL string `json:"url"`
}

// Image is an encoded image attached to a prompt.
type Image struct {
	MIMEType string
	Data     []byte
}

// DataURL returns the image as a base64 data URL.
func (img Image) DataURL() string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds an image content part from encoded image bytes.
func ImagePart(img Image) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: img.DataURL()}}
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Config configures an LLM provider.
type Config struct {
	Provider    string  `json:"provider" yaml:"provider"` // openai, azure, anthropic, ollama, custom
	Model       string  `json:"model" yaml:"model"`       // model name, or deployment name for azure
	BaseURL     string  `json:"base_url" yaml:"base_url"`
	APIKey      string  `json:"api_key" yaml:"api_key"`
	APIVersion  string  `json:"api_version" yaml:"api_version"` // azure only
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// Configured reports whether a provider has been selected.
func (c Config) Configured() bool {
	return c.Provider != ""
}

// Validate checks that the settings required by the selected provider
// are present.
func (c Config) Validate() error {
	switch c.Provider {
	case "":
		return nil
	case "openai", "ollama", "custom":
	case "azure":
		if c.BaseURL == "" {
			return fmt.Errorf("%w: azure provider requires base_url (the resource endpoint)", ErrConfig)
		}
	case "anthropic":
	default:
		return fmt.Errorf("%w: unknown llm provider: %s", ErrConfig, c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: llm provider %s requires a model", ErrConfig, c.Provider)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("%w: max_tokens must not be negative", ErrConfig)
	}
	if c.Provider == "custom" && c.BaseURL == "" {
		return fmt.Errorf("%w: custom provider requires base_url", ErrConfig)
	}
	return nil
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (VisionProvider, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("%w: llm provider not specified", ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg), nil
	case "azure":
		return NewAzure(cfg), nil
	case "anthropic":
		return NewAnthropic(cfg), nil
	case "ollama":
		return NewOllama(cfg), nil
	default:
		return NewOpenAICompat(cfg), nil
	}
}
