package llm

// NewOllama creates a provider for a local Ollama server through its
// OpenAI-compatible endpoint.
func NewOllama(cfg Config) VisionProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	return &openAICompatProvider{base: newOpenAICompatClient("ollama", cfg, "/v1/chat/completions")}
}
