package llm

// NewOpenAI creates a provider for the OpenAI API.
// API key: set via config or the OPENAI_API_KEY env var.
func NewOpenAI(cfg Config) VisionProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	return &openAICompatProvider{base: newOpenAICompatClient("openai", cfg, "/v1/chat/completions")}
}
