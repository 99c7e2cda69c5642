package aiworkflows

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/brunobiangulo/aiworkflows/extract"
	"github.com/brunobiangulo/aiworkflows/parser"
	"github.com/brunobiangulo/aiworkflows/store"
	"github.com/brunobiangulo/aiworkflows/strategy"
)

// Cached results are keyed by content hash, target and a hash of
// everything else the output depends on. Results with failed units are
// stored but never served, so the next request retries them.

type cachedEntry struct {
	Ordinal int            `json:"ordinal"`
	Page    int            `json:"page,omitempty"`
	Object  map[string]any `json:"object"`
}

// renderKey covers the settings that change what parsers and page
// rendering produce for the same file.
func (c *converter) renderKey() []string {
	return []string{strconv.Itoa(c.cfg.DPI), strconv.FormatBool(c.cfg.IncludeHiddenSheets)}
}

func (c *converter) markdownSpecHash(s strategy.Strategy) string {
	parts := append([]string{string(s), c.cfg.LLM.Provider, c.cfg.LLM.Model}, c.renderKey()...)
	return store.SpecHash(parts...)
}

func (c *converter) jsonSpecHash(s strategy.Strategy, spec JSONSpec, o jsonOptions) string {
	mf := ""
	if o.markdownFirst != nil {
		mf = strconv.FormatBool(*o.markdownFirst)
	}
	parts := []string{string(s), c.cfg.LLM.Provider, c.cfg.LLM.Model,
		spec.Context, spec.Job, spec.OutputSpec, o.schema, mf,
		strconv.Itoa(c.cfg.MaxChunkTokens)}
	return store.SpecHash(append(parts, c.renderKey()...)...)
}

func (c *converter) cachedMarkdown(ctx context.Context, hash, specHash string) (*MarkdownResult, bool) {
	conv, ok := c.lookup(ctx, hash, store.TargetMarkdown, specHash)
	if !ok {
		return nil, false
	}
	var frags []Fragment
	if err := json.Unmarshal([]byte(conv.JSON), &frags); err != nil {
		frags = []Fragment{{Markdown: conv.Markdown}}
	}
	return &MarkdownResult{
		Markdown:  conv.Markdown,
		Fragments: frags,
		Strategy:  strategy.Strategy(conv.Strategy),
		Cached:    true,
	}, true
}

func (c *converter) cachedJSON(ctx context.Context, hash, specHash string) (*JSONResult, bool) {
	conv, ok := c.lookup(ctx, hash, store.TargetJSON, specHash)
	if !ok {
		return nil, false
	}
	var entries []cachedEntry
	if err := json.Unmarshal([]byte(conv.JSON), &entries); err != nil {
		slog.Warn("cache: unreadable entry, ignoring", "id", conv.ID, "error", err)
		return nil, false
	}
	res := &JSONResult{
		Result:   &extract.Result{Entries: make([]extract.Entry, 0, len(entries))},
		Strategy: strategy.Strategy(conv.Strategy),
		Cached:   true,
	}
	for _, e := range entries {
		res.Entries = append(res.Entries, extract.Entry{Ordinal: e.Ordinal, Page: e.Page, Object: e.Object})
	}
	return res, true
}

func (c *converter) lookup(ctx context.Context, hash, target, specHash string) (*store.Conversion, bool) {
	if c.store == nil {
		return nil, false
	}
	conv, ok, err := c.store.Lookup(ctx, hash, target, specHash)
	if err != nil {
		slog.Warn("cache: lookup failed", "target", target, "error", err)
		return nil, false
	}
	if !ok || conv.UnitErrors != "" {
		return nil, false
	}
	return conv, true
}

func (c *converter) putMarkdown(ctx context.Context, doc *parser.Document, specHash string, res *MarkdownResult) {
	if c.store == nil {
		return
	}
	frags, err := json.Marshal(res.Fragments)
	if err != nil {
		return
	}
	c.put(ctx, store.Conversion{
		ContentHash: doc.Hash,
		Target:      store.TargetMarkdown,
		Strategy:    string(res.Strategy),
		SpecHash:    specHash,
		Markdown:    res.Markdown,
		JSON:        string(frags),
		UnitErrors:  unitErrorsJSON(res.Errors),
		Filename:    filepath.Base(doc.Path),
		Model:       c.cfg.LLM.Model,
	})
}

func (c *converter) putJSON(ctx context.Context, doc *parser.Document, s strategy.Strategy, specHash string, res *JSONResult) {
	if c.store == nil {
		return
	}
	entries := make([]cachedEntry, 0, len(res.Entries))
	for _, e := range res.Entries {
		if e.Err == nil {
			entries = append(entries, cachedEntry{Ordinal: e.Ordinal, Page: e.Page, Object: e.Object})
		}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	conv := store.Conversion{
		ContentHash: doc.Hash,
		Target:      store.TargetJSON,
		Strategy:    string(s),
		SpecHash:    specHash,
		JSON:        string(data),
		UnitErrors:  unitErrorsJSON(res.Errors()),
		Filename:    filepath.Base(doc.Path),
		Model:       c.cfg.LLM.Model,
	}
	if res.Markdown != nil {
		conv.Markdown = res.Markdown.Markdown
	}
	c.put(ctx, conv)
}

func (c *converter) put(ctx context.Context, conv store.Conversion) {
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if _, err := c.store.Put(ctx, conv); err != nil {
		slog.Warn("cache: store failed", "target", conv.Target, "error", err)
	}
}

func unitErrorsJSON(errs []extract.UnitError) string {
	if len(errs) == 0 {
		return ""
	}
	data, _ := json.Marshal(errorMessages(errs))
	return string(data)
}
