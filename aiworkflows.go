// Package aiworkflows converts documents to Markdown and JSON, using an LLM
// where one is configured and a non-LLM parser where not.
//
// A Converter picks a conversion strategy per document from its format,
// size and visual content, splits page-oriented documents into units,
// converts units concurrently and reassembles the results in order.
package aiworkflows

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brunobiangulo/aiworkflows/assembler"
	"github.com/brunobiangulo/aiworkflows/chunker"
	"github.com/brunobiangulo/aiworkflows/extract"
	"github.com/brunobiangulo/aiworkflows/llm"
	"github.com/brunobiangulo/aiworkflows/parser"
	"github.com/brunobiangulo/aiworkflows/store"
	"github.com/brunobiangulo/aiworkflows/strategy"
	"github.com/brunobiangulo/aiworkflows/trace"
)

// Converter is the main entry point.
type Converter interface {
	// ConvertToMarkdown converts a document file to Markdown.
	ConvertToMarkdown(ctx context.Context, path string) (*MarkdownResult, error)

	// ConvertToJSON extracts objects described by spec from a document,
	// either page by page or from its Markdown.
	ConvertToJSON(ctx context.Context, path string, spec JSONSpec, opts ...JSONOption) (*JSONResult, error)

	// MarkdownToJSON extracts objects from Markdown, splitting it into
	// chunks of at most maxChunkTokens (0 uses the configured budget).
	MarkdownToJSON(ctx context.Context, markdown string, spec JSONSpec, maxChunkTokens int, opts ...JSONOption) (*JSONResult, error)

	// GetJSONResponse sends a single prompt and returns the JSON object
	// the model answered with.
	GetJSONResponse(ctx context.Context, prompt, validation string, opts ...JSONOption) (*llm.JSONResponse, error)

	// Plan probes a document and reports the strategy a conversion would
	// use, without converting it.
	Plan(ctx context.Context, path string, target Target, opts ...JSONOption) (*Plan, error)

	// Capabilities reports what this converter can use.
	Capabilities() strategy.Capabilities

	// Store returns the conversion cache, or nil when caching is off.
	Store() *store.Store

	// Close flushes traces and closes the cache.
	Close() error
}

// JSONSpec describes what to extract: the document's context, the job and
// the expected output shape, all in natural language.
type JSONSpec = extract.Spec

// Target is the requested output of a conversion.
type Target string

const (
	TargetMarkdown Target = store.TargetMarkdown
	TargetJSON     Target = store.TargetJSON
)

// Fragment is the Markdown produced for one unit.
type Fragment struct {
	Ordinal  int    `json:"ordinal"`
	Page     int    `json:"page,omitempty"`
	Markdown string `json:"markdown"`
}

// MarkdownResult is a converted document. Markdown is the assembled
// document; Fragments holds the per-unit Markdown in ordinal order.
// Assembly drops repeated page headers and footers and rejoins split
// sentences, so it is approximate, not guaranteed lossless.
type MarkdownResult struct {
	Markdown  string              `json:"markdown"`
	Fragments []Fragment          `json:"fragments"`
	Strategy  strategy.Strategy   `json:"strategy"`
	Errors    []extract.UnitError `json:"-"`
	Cached    bool                `json:"cached"`
}

// JSONResult holds one entry per processed unit in ordinal order. Units
// that failed carry their error; Merge concatenates the lists of the
// successful ones without deduplication.
type JSONResult struct {
	*extract.Result
	Strategy strategy.Strategy `json:"strategy"`
	// Markdown is the intermediate document when JSON was extracted from
	// Markdown rather than page by page.
	Markdown *MarkdownResult `json:"-"`
	Cached   bool            `json:"cached"`
}

// Errors returns the pages that failed while producing the intermediate
// Markdown, followed by the units that failed extraction.
func (r JSONResult) Errors() []extract.UnitError {
	var errs []extract.UnitError
	if r.Markdown != nil {
		errs = append(errs, r.Markdown.Errors...)
	}
	if r.Result != nil {
		errs = append(errs, r.Result.Errors()...)
	}
	return errs
}

// Plan is the outcome of strategy selection for one document.
type Plan struct {
	File          string                `json:"file"`
	Format        parser.Format         `json:"format"`
	Size          int64                 `json:"size"`
	Pages         int                   `json:"pages"`
	RenderedPages int                   `json:"rendered_pages,omitempty"`
	HasVisuals    bool                  `json:"has_visuals"`
	Tokens        int                   `json:"tokens"`
	Capabilities  strategy.Capabilities `json:"capabilities"`
	Decision      strategy.Decision     `json:"decision"`
}

// JSONOption configures a JSON request.
type JSONOption func(*jsonOptions)

type jsonOptions struct {
	markdownFirst *bool
	schema        string
}

// WithMarkdownFirst forces (true) or declines (false) full Markdown
// conversion before extraction. Without it, small page-oriented documents
// go straight to page-by-page JSON.
func WithMarkdownFirst(v bool) JSONOption {
	return func(o *jsonOptions) { o.markdownFirst = &v }
}

// WithSchema requires every extracted object to satisfy a JSON Schema.
func WithSchema(schema string) JSONOption {
	return func(o *jsonOptions) { o.schema = schema }
}

func applyJSONOptions(opts []JSONOption) jsonOptions {
	var o jsonOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// OfficeConverter renders office documents to PDF.
type OfficeConverter interface {
	Available() bool
	ConvertToPDF(ctx context.Context, path, outDir string) (string, error)
}

// Option configures a Converter.
type Option func(*converter)

// WithProvider uses p instead of the provider named in Config.LLM.
func WithProvider(p llm.Provider) Option {
	return func(c *converter) { c.provider = p }
}

// WithPageRenderer replaces the PDF page renderer.
func WithPageRenderer(r chunker.PageRenderer) Option {
	return func(c *converter) { c.pages = r }
}

// WithOfficeConverter replaces the office-to-PDF renderer.
func WithOfficeConverter(o OfficeConverter) Option {
	return func(c *converter) { c.office = o }
}

// converter is the concrete implementation of Converter.
type converter struct {
	cfg       Config
	provider  llm.Provider
	gw        *llm.Gateway
	tracer    *trace.Collector
	store     *store.Store
	parsers   *parser.Registry
	pages     chunker.PageRenderer
	office    OfficeConverter
	assembler assembler.Assembler
	caps      strategy.Capabilities
}

// New creates a Converter. Capabilities are fixed here: the provider,
// whether it accepts images, and whether office rendering is available.
func New(cfg Config, opts ...Option) (Converter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	c := &converter{
		cfg:       cfg,
		parsers:   parser.NewRegistry(),
		pages:     parser.FitzRenderer{},
		office:    &parser.OfficeRenderer{Binary: cfg.SofficePath},
		assembler: assembler.Default,
	}
	c.parsers.Register(string(parser.FormatXLSX), &parser.XLSXParser{IncludeHidden: cfg.IncludeHiddenSheets})
	for _, opt := range opts {
		opt(c)
	}

	if c.provider == nil && cfg.LLM.provider().Configured() {
		p, err := llm.NewProvider(cfg.LLM.provider())
		if err != nil {
			return nil, fmt.Errorf("creating llm provider: %w", err)
		}
		c.provider = p
	}

	if cfg.TraceURL != "" {
		c.tracer = trace.NewCollector(cfg.TraceURL, nil)
	}
	if c.provider != nil {
		var gwOpts []llm.GatewayOption
		if c.tracer != nil {
			gwOpts = append(gwOpts, llm.WithTracer(c.tracer))
		}
		c.gw = llm.NewGateway(c.provider, cfg.gateway(), gwOpts...)
	}

	c.caps = strategy.Capabilities{
		LLM:            c.gw != nil,
		VisionLLM:      c.gw != nil && c.gw.SupportsVision(),
		OfficeRenderer: c.office != nil && c.office.Available(),
	}

	if cfg.Cache {
		s, err := store.New(cfg.resolveDBPath())
		if err != nil {
			c.closeTracer()
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		c.store = s
	}

	slog.Info("aiworkflows: converter ready",
		"provider", cfg.LLM.Provider, "model", cfg.LLM.Model,
		"llm", c.caps.LLM, "vision", c.caps.VisionLLM, "office_renderer", c.caps.OfficeRenderer,
		"cache", c.store != nil, "trace", c.tracer != nil)
	return c, nil
}

// applyDefaults fills sizes that have no useful zero. Retry policy is left
// alone since zero retries is a valid choice.
func (cfg *Config) applyDefaults() {
	d := DefaultConfig()
	if cfg.MaxChunkTokens == 0 {
		cfg.MaxChunkTokens = d.MaxChunkTokens
	}
	if cfg.DPI == 0 {
		cfg.DPI = d.DPI
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = d.Concurrency
	}
	if cfg.SofficePath == "" {
		cfg.SofficePath = d.SofficePath
	}
}

func (c *converter) Capabilities() strategy.Capabilities { return c.caps }

func (c *converter) Store() *store.Store { return c.store }

func (c *converter) Close() error {
	c.closeTracer()
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

func (c *converter) closeTracer() {
	if c.tracer != nil {
		c.tracer.Close()
	}
}

// requireLLM returns ErrConfiguration when no provider is configured.
func (c *converter) requireLLM(op string) error {
	if c.gw == nil {
		return fmt.Errorf("%w: %s requires an llm provider", ErrConfiguration, op)
	}
	return nil
}

func (c *converter) GetJSONResponse(ctx context.Context, prompt, validation string, opts ...JSONOption) (*llm.JSONResponse, error) {
	if err := c.requireLLM("get json response"); err != nil {
		return nil, err
	}
	o := applyJSONOptions(opts)
	return c.gw.GetJSONResponse(ctx, llm.JSONRequest{
		Prompt:     prompt,
		Validation: validation,
		Schema:     o.schema,
	})
}

// CountTokens estimates the number of tokens in text.
func CountTokens(text string) int {
	return chunker.CountTokens(text)
}

// EnforceMaxTokens truncates text to at most maxTokens estimated tokens,
// cutting at a word boundary. Applying it twice changes nothing.
func EnforceMaxTokens(text string, maxTokens int) string {
	return chunker.EnforceMaxTokens(text, maxTokens)
}
