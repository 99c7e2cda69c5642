package llm

import (
	"net/http"
	"net/url"
)

// DefaultAzureAPIVersion is used when the config does not name one.
const DefaultAzureAPIVersion = "2024-06-01"

// NewAzure creates a provider for an Azure OpenAI deployment. BaseURL is
// the resource endpoint and Model is the deployment name.
func NewAzure(cfg Config) VisionProvider {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAzureAPIVersion
	}
	path := "/openai/deployments/" + url.PathEscape(cfg.Model) +
		"/chat/completions?api-version=" + url.QueryEscape(cfg.APIVersion)
	base := newOpenAICompatClient("azure", cfg, path)
	base.setAuth = func(req *http.Request) {
		req.Header.Set("api-key", cfg.APIKey)
	}
	return &openAICompatProvider{base: base}
}
