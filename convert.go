package aiworkflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brunobiangulo/aiworkflows/assembler"
	"github.com/brunobiangulo/aiworkflows/chunker"
	"github.com/brunobiangulo/aiworkflows/extract"
	"github.com/brunobiangulo/aiworkflows/parser"
	"github.com/brunobiangulo/aiworkflows/strategy"
)

// job is one top-level conversion: the probed document, the properties
// selection reads, and the PDF page strategies run on.
type job struct {
	doc     *parser.Document
	props   strategy.Document
	caps    strategy.Capabilities
	pdfPath string // the input itself for PDFs, else its rendering
	workDir string
}

func (j *job) cleanup() {
	if j.workDir != "" {
		os.RemoveAll(j.workDir)
	}
}

// prepare probes path. The caller must call cleanup on the returned job.
func (c *converter) prepare(ctx context.Context, path string) (*job, error) {
	doc, err := parser.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	j := &job{
		doc:  doc,
		caps: c.caps,
		props: strategy.Document{
			Format:     doc.Format,
			PageCount:  doc.PageCount,
			HasVisuals: doc.HasVisuals,
			Tokens:     chunker.CountTokens(doc.Text),
			TextChars:  len(doc.Text),
		},
	}
	if doc.Format == parser.FormatPDF {
		j.pdfPath = path
	}
	return j, nil
}

// decide selects the strategy for target. Strategies that go through PDF
// render the document first and are re-evaluated against the rendering,
// since its page count can move a spreadsheet off the LLM path and its
// text feeds the direct-JSON ceiling.
func (c *converter) decide(ctx context.Context, j *job, target Target, markdownFirst *bool) (strategy.Decision, error) {
	limits := c.cfg.limits()
	sel := func() strategy.Decision {
		if target == TargetJSON {
			return strategy.SelectJSON(j.props, j.caps, limits, markdownFirst)
		}
		return strategy.Select(j.props, j.caps, limits)
	}

	d := sel()
	if !d.Markdown.NeedsPDF() || j.pdfPath != "" {
		return d, nil
	}

	if err := c.renderPDF(ctx, j); err != nil {
		if ctx.Err() != nil || j.props.Format.IsLegacyOffice() {
			return d, err
		}
		slog.Warn("convert: office rendering failed, using native parser",
			"file", filepath.Base(j.doc.Path), "error", err)
		j.caps.OfficeRenderer = false
	}
	return sel(), nil
}

func (c *converter) renderPDF(ctx context.Context, j *job) error {
	if !j.doc.Format.IsOffice() {
		return fmt.Errorf("%w: %w: %s cannot be rendered to pdf", ErrDocumentUnreadable, ErrUnsupportedFormat, j.doc.Format)
	}
	dir, err := os.MkdirTemp("", "aiworkflows-*")
	if err != nil {
		return fmt.Errorf("creating work dir: %w", err)
	}
	j.workDir = dir

	pdfPath, err := c.office.ConvertToPDF(ctx, j.doc.Path, dir)
	if err != nil {
		return err
	}
	rendered, err := parser.Probe(ctx, pdfPath)
	if err != nil {
		return err
	}
	j.pdfPath = pdfPath
	j.props.RenderedPages = rendered.PageCount
	if j.props.TextChars == 0 {
		j.props.Tokens = chunker.CountTokens(rendered.Text)
		j.props.TextChars = len(rendered.Text)
	}
	return nil
}

func (c *converter) ConvertToMarkdown(ctx context.Context, path string) (*MarkdownResult, error) {
	start := time.Now()
	j, err := c.prepare(ctx, path)
	if err != nil {
		return nil, err
	}
	defer j.cleanup()

	d, err := c.decide(ctx, j, TargetMarkdown, nil)
	if err != nil {
		return nil, err
	}
	file := filepath.Base(path)
	slog.Info("convert: markdown", "file", file, "format", j.doc.Format,
		"strategy", d.Strategy, "reason", d.Reason)

	specHash := c.markdownSpecHash(d.Strategy)
	if res, ok := c.cachedMarkdown(ctx, j.doc.Hash, specHash); ok {
		slog.Info("convert: markdown served from cache", "file", file)
		return res, nil
	}

	res, err := c.markdown(ctx, j, d.Strategy)
	if err != nil {
		return nil, err
	}
	c.putMarkdown(ctx, j.doc, specHash, res)

	slog.Info("convert: markdown ready", "file", file, "strategy", res.Strategy,
		"fragments", len(res.Fragments), "failed_units", len(res.Errors),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// markdown runs a Markdown strategy.
func (c *converter) markdown(ctx context.Context, j *job, s strategy.Strategy) (*MarkdownResult, error) {
	var (
		res *MarkdownResult
		err error
	)
	switch s {
	case strategy.LLMPageImage, strategy.OfficeViaPDFThenLLM:
		res, err = c.pageMarkdown(ctx, j.pdfPath)
	case strategy.OfficeViaPDFThenNonLLM:
		res, err = c.parseMarkdown(ctx, j.pdfPath, parser.FormatPDF)
	default:
		res, err = c.parseMarkdown(ctx, j.doc.Path, j.doc.Format)
	}
	if err != nil {
		return nil, err
	}
	res.Strategy = s
	return res, nil
}

// parseMarkdown converts with a non-LLM parser. PDF pages become one
// fragment each and go through the assembler.
func (c *converter) parseMarkdown(ctx context.Context, path string, format parser.Format) (*MarkdownResult, error) {
	p, err := c.parsers.Get(string(format))
	if err != nil {
		return nil, err
	}
	parsed, err := p.Parse(ctx, path)
	if err != nil {
		return nil, err
	}

	res := &MarkdownResult{}
	if format == parser.FormatPDF {
		pages := parser.RenderPages(parsed.Sections)
		frags := make([]assembler.Fragment, 0, len(pages))
		for i, pg := range pages {
			frags = append(frags, assembler.Fragment{Ordinal: i, Markdown: pg.Markdown})
			res.Fragments = append(res.Fragments, Fragment{Ordinal: i, Page: pg.Page, Markdown: pg.Markdown})
		}
		res.Markdown = c.assembler.Assemble(frags)
	} else {
		res.Markdown = parser.RenderMarkdown(parsed.Sections)
		res.Fragments = []Fragment{{Ordinal: 0, Markdown: res.Markdown}}
	}

	if strings.TrimSpace(res.Markdown) == "" {
		return nil, fmt.Errorf("%w: no extractable text in %s", ErrDocumentUnreadable, filepath.Base(path))
	}
	return res, nil
}

// pageMarkdown renders every page to an image, has the LLM split each into
// typed elements and assembles them across pages. Pages that fail are
// recorded and skipped.
func (c *converter) pageMarkdown(ctx context.Context, pdfPath string) (*MarkdownResult, error) {
	units, err := chunker.PageUnits(ctx, c.pages, pdfPath, c.cfg.DPI)
	if err != nil {
		return nil, err
	}

	x := extract.New(c.gw, extract.Config{Concurrency: c.cfg.Concurrency})
	out, err := x.Extract(ctx, units, extract.ElementsSpec)
	if err != nil {
		return nil, err
	}

	res := &MarkdownResult{Errors: out.Errors()}
	var pages []assembler.PageElements
	for _, e := range out.Entries {
		if e.Err != nil {
			continue
		}
		elements, err := assembler.ElementsFromJSON(e.Object)
		if err != nil {
			slog.Warn("convert: page elements unusable", "unit", e.Ordinal, "page", e.Page, "error", err)
			res.Errors = append(res.Errors, extract.UnitError{Ordinal: e.Ordinal, Page: e.Page, Err: err})
			continue
		}
		pages = append(pages, assembler.PageElements{Ordinal: e.Ordinal, Elements: elements})
		res.Fragments = append(res.Fragments, Fragment{
			Ordinal:  e.Ordinal,
			Page:     e.Page,
			Markdown: assembler.RenderElements(c.assembler.CleanAndReorder(elements)),
		})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no page produced usable elements", ErrAllUnitsFailed)
	}
	res.Markdown = c.assembler.AssembleElements(pages)
	return res, nil
}

func (c *converter) ConvertToJSON(ctx context.Context, path string, spec JSONSpec, opts ...JSONOption) (*JSONResult, error) {
	if err := c.requireLLM("json conversion"); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	o := applyJSONOptions(opts)
	start := time.Now()

	j, err := c.prepare(ctx, path)
	if err != nil {
		return nil, err
	}
	defer j.cleanup()

	d, err := c.decide(ctx, j, TargetJSON, o.markdownFirst)
	if err != nil {
		return nil, err
	}
	file := filepath.Base(path)
	slog.Info("convert: json", "file", file, "format", j.doc.Format,
		"strategy", d.Strategy, "markdown_strategy", d.Markdown, "reason", d.Reason)

	specHash := c.jsonSpecHash(d.Strategy, spec, o)
	if res, ok := c.cachedJSON(ctx, j.doc.Hash, specHash); ok {
		slog.Info("convert: json served from cache", "file", file)
		return res, nil
	}

	var res *JSONResult
	if d.Strategy == strategy.PageByPageJSONDirect {
		units, err := chunker.PageUnits(ctx, c.pages, j.pdfPath, c.cfg.DPI)
		if err != nil {
			return nil, err
		}
		out, err := extract.New(c.gw, extract.Config{Concurrency: c.cfg.Concurrency, Schema: o.schema}).
			Extract(ctx, units, spec)
		if err != nil {
			return nil, err
		}
		res = &JSONResult{Result: out}
	} else {
		md, err := c.markdown(ctx, j, d.Markdown)
		if err != nil {
			return nil, err
		}
		res, err = c.markdownToJSON(ctx, md.Markdown, spec, c.cfg.MaxChunkTokens, o)
		if err != nil {
			return nil, err
		}
		res.Markdown = md
	}
	res.Strategy = d.Strategy
	c.putJSON(ctx, j.doc, d.Strategy, specHash, res)

	slog.Info("convert: json ready", "file", file, "strategy", res.Strategy,
		"units", len(res.Entries), "failed_units", len(res.Errors()),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

func (c *converter) MarkdownToJSON(ctx context.Context, markdown string, spec JSONSpec, maxChunkTokens int, opts ...JSONOption) (*JSONResult, error) {
	if err := c.requireLLM("markdown to json"); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return c.markdownToJSON(ctx, markdown, spec, maxChunkTokens, applyJSONOptions(opts))
}

// markdownToJSON extracts from the whole document in one unit when it fits
// maxChunkTokens, else from chunks split at paragraph boundaries with the
// previous chunk's tail as context.
func (c *converter) markdownToJSON(ctx context.Context, markdown string, spec JSONSpec, maxChunkTokens int, o jsonOptions) (*JSONResult, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, fmt.Errorf("%w: empty markdown", ErrDocumentUnreadable)
	}
	if maxChunkTokens <= 0 {
		maxChunkTokens = c.cfg.MaxChunkTokens
	}

	var units []chunker.Unit
	if tokens := chunker.CountTokens(markdown); tokens <= maxChunkTokens {
		units = []chunker.Unit{{Ordinal: 0, Text: markdown}}
	} else {
		units = chunker.New(chunker.Config{MaxTokens: maxChunkTokens, Overlap: c.cfg.ChunkOverlap}).Split(markdown)
		slog.Info("convert: markdown split for extraction",
			"tokens", tokens, "max_chunk_tokens", maxChunkTokens, "chunks", len(units))
	}

	out, err := extract.New(c.gw, extract.Config{Concurrency: c.cfg.Concurrency, Schema: o.schema}).
		Extract(ctx, units, spec)
	if err != nil {
		return nil, err
	}
	return &JSONResult{Result: out}, nil
}

func (c *converter) Plan(ctx context.Context, path string, target Target, opts ...JSONOption) (*Plan, error) {
	if target != TargetMarkdown && target != TargetJSON {
		return nil, fmt.Errorf("%w: unknown target %q", ErrConfiguration, target)
	}
	o := applyJSONOptions(opts)

	j, err := c.prepare(ctx, path)
	if err != nil {
		return nil, err
	}
	defer j.cleanup()

	d, err := c.decide(ctx, j, target, o.markdownFirst)
	if err != nil && !errors.Is(err, ErrDocumentUnreadable) {
		return nil, err
	}
	return &Plan{
		File:          filepath.Base(path),
		Format:        j.doc.Format,
		Size:          j.doc.Size,
		Pages:         j.doc.PageCount,
		RenderedPages: j.props.RenderedPages,
		HasVisuals:    j.doc.HasVisuals,
		Tokens:        j.props.Tokens,
		Capabilities:  j.caps,
		Decision:      d,
	}, nil
}
