package aiworkflows

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/aiworkflows/llm"
	"github.com/brunobiangulo/aiworkflows/strategy"
)

// Config holds all configuration for a Converter. Start from
// DefaultConfig: New fills zero sizes (chunk tokens, DPI, concurrency) and
// the gateway fills a zero Timeout, but zero MaxRetries and RetryDelay are
// honoured as written, so a bare Config{} makes one attempt per call.
type Config struct {
	// LLM selects the provider. An empty provider runs the converter
	// without an LLM: only non-LLM strategies are used and the JSON
	// operations return ErrConfiguration.
	LLM LLMConfig `json:"llm" yaml:"llm"`

	// Gateway policy for every LLM call.
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`         // total budget per call, across retries
	MaxRetries int           `json:"max_retries" yaml:"max_retries"` // retries after the first attempt
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`

	// Concurrency is the number of units sent to the LLM at once.
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// Chunking for markdown-to-JSON extraction.
	MaxChunkTokens int `json:"max_chunk_tokens" yaml:"max_chunk_tokens"`
	ChunkOverlap   int `json:"chunk_overlap" yaml:"chunk_overlap"`

	// DPI for page rendering.
	DPI int `json:"dpi" yaml:"dpi"`

	// Strategy ceilings.
	MaxXLSXViaPDFPages  int `json:"max_xlsx_via_pdf_pages" yaml:"max_xlsx_via_pdf_pages"`
	MaxJSONDirectPages  int `json:"max_json_direct_pages" yaml:"max_json_direct_pages"`
	MaxJSONDirectTokens int `json:"max_json_direct_tokens" yaml:"max_json_direct_tokens"`

	// IncludeHiddenSheets converts hidden spreadsheet sheets too.
	IncludeHiddenSheets bool `json:"include_hidden_sheets" yaml:"include_hidden_sheets"`

	// SofficePath is the LibreOffice binary used for office-to-PDF
	// rendering. Rendering is unavailable when it cannot be found.
	SofficePath string `json:"soffice_path" yaml:"soffice_path"`

	// TraceURL receives LLM call records when set.
	TraceURL string `json:"trace_url" yaml:"trace_url"`

	// Cache enables the SQLite conversion cache.
	Cache bool `json:"cache" yaml:"cache"`

	// DBPath is the full path to the cache database.
	// If empty, defaults to ~/.aiworkflows/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName names the database file when DBPath is empty.
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath is
	// not set: "home" (default) uses ~/.aiworkflows/, "local" the
	// working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`
}

// LLMConfig configures the LLM provider endpoint.
type LLMConfig struct {
	Provider    string  `json:"provider" yaml:"provider"` // openai, azure, anthropic, ollama, custom
	Model       string  `json:"model" yaml:"model"`       // deployment name for azure
	BaseURL     string  `json:"base_url" yaml:"base_url"`
	APIKey      string  `json:"api_key" yaml:"api_key"`
	APIVersion  string  `json:"api_version" yaml:"api_version"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

func (c LLMConfig) provider() llm.Config {
	return llm.Config{
		Provider:    c.Provider,
		Model:       c.Model,
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		APIVersion:  c.APIVersion,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	}
}

// DefaultConfig returns a Config with no LLM and the standard limits.
func DefaultConfig() Config {
	limits := strategy.DefaultLimits()
	return Config{
		Timeout:             llm.DefaultTimeout,
		MaxRetries:          llm.DefaultMaxRetries,
		RetryDelay:          llm.DefaultRetryDelay,
		Concurrency:         4,
		MaxChunkTokens:      50000,
		ChunkOverlap:        128,
		DPI:                 300,
		MaxXLSXViaPDFPages:  limits.MaxXLSXViaPDFPages,
		MaxJSONDirectPages:  limits.MaxJSONDirectPages,
		MaxJSONDirectTokens: limits.MaxJSONDirectTokens,
		SofficePath:         "soffice",
		DBName:              "aiworkflows",
		StorageDir:          "home",
	}
}

// LoadConfig reads a YAML (or JSON) file over DefaultConfig and applies
// environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("%w: reading config: %v", ErrConfiguration, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: parsing config %s: %v", ErrConfiguration, filepath.Base(path), err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides settings from the environment. Provider API keys are
// only read from the provider's well-known variable when none is set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("AIWORKFLOWS_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("AIWORKFLOWS_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("AIWORKFLOWS_TRACE_URL"); v != "" {
		c.TraceURL = v
	}
	if v := os.Getenv("AIWORKFLOWS_DB_PATH"); v != "" {
		c.DBPath = v
	}

	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	case "azure":
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = os.Getenv("AZURE_OPENAI_API_KEY")
		}
		if v := os.Getenv("AZURE_OPENAI_ENDPOINT"); v != "" {
			c.LLM.BaseURL = v
		}
		if v := os.Getenv("AZURE_OPENAI_API_VERSION"); v != "" {
			c.LLM.APIVersion = v
		}
	case "anthropic":
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
}

// Validate reports inconsistent settings as ErrConfiguration.
func (c *Config) Validate() error {
	if err := c.LLM.provider().Validate(); err != nil {
		return err
	}
	switch c.LLM.Provider {
	case "openai", "azure", "anthropic":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("%w: llm provider %s requires an api key", ErrConfiguration, c.LLM.Provider)
		}
	}
	switch {
	case c.Timeout < 0:
		return fmt.Errorf("%w: timeout must not be negative", ErrConfiguration)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries must not be negative", ErrConfiguration)
	case c.RetryDelay < 0:
		return fmt.Errorf("%w: retry_delay must not be negative", ErrConfiguration)
	case c.Concurrency < 0:
		return fmt.Errorf("%w: concurrency must not be negative", ErrConfiguration)
	case c.MaxChunkTokens < 0:
		return fmt.Errorf("%w: max_chunk_tokens must not be negative", ErrConfiguration)
	case c.DPI < 0:
		return fmt.Errorf("%w: dpi must not be negative", ErrConfiguration)
	}
	return nil
}

func (c *Config) limits() strategy.Limits {
	return strategy.Limits{
		MaxXLSXViaPDFPages:  c.MaxXLSXViaPDFPages,
		MaxJSONDirectPages:  c.MaxJSONDirectPages,
		MaxJSONDirectTokens: c.MaxJSONDirectTokens,
	}
}

func (c *Config) gateway() llm.GatewayConfig {
	return llm.GatewayConfig{
		Timeout:     c.Timeout,
		MaxRetries:  c.MaxRetries,
		RetryDelay:  c.RetryDelay,
		Provider:    c.LLM.Provider,
		Model:       c.LLM.Model,
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
	}
}

// resolveDBPath computes the cache database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "aiworkflows"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db"
		}
		return filepath.Join(home, ".aiworkflows", name+".db")
	}
}
