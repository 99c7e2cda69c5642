// Package strategy decides how a document is converted to Markdown or JSON.
//
// Selection is a fixed cost/quality ladder evaluated in priority order.
// It is a pure function of the document's properties, the available
// capabilities and the size limits; it never fails.
package strategy

import (
	"fmt"
	"log/slog"

	"github.com/brunobiangulo/aiworkflows/parser"
)

// Strategy is a conversion pathway.
type Strategy string

const (
	PlainParse                 Strategy = "plain_parse"
	GenericNonLLMParse         Strategy = "generic_nonllm_parse"
	LLMPageImage               Strategy = "llm_page_image"
	OfficeViaPDFThenLLM        Strategy = "office_via_pdf_then_llm"
	OfficeViaPDFThenNonLLM     Strategy = "office_via_pdf_then_nonllm"
	SpreadsheetStructuredParse Strategy = "spreadsheet_structured_parse"
	PageByPageJSONDirect       Strategy = "page_by_page_json_direct"
)

// UsesLLM reports whether the strategy calls the LLM while producing
// Markdown or JSON.
func (s Strategy) UsesLLM() bool {
	return s == LLMPageImage || s == OfficeViaPDFThenLLM || s == PageByPageJSONDirect
}

// NeedsPDF reports whether the input is converted to PDF first.
func (s Strategy) NeedsPDF() bool {
	return s == OfficeViaPDFThenLLM || s == OfficeViaPDFThenNonLLM
}

// Document holds the properties selection depends on.
type Document struct {
	Format        parser.Format
	PageCount     int  // 0 when unknown
	RenderedPages int  // page count after office-to-PDF rendering, 0 when not rendered
	HasVisuals    bool // embedded images or charts
	Tokens        int  // estimated tokens of the extractable text
	TextChars     int  // length of the extractable text
}

// Capabilities describes what is available for a conversion.
type Capabilities struct {
	LLM            bool // an LLM gateway is configured
	VisionLLM      bool // the configured provider accepts images
	OfficeRenderer bool // office-to-PDF rendering is available
}

// Limits are the size thresholds on the ladder.
type Limits struct {
	MaxXLSXViaPDFPages  int // spreadsheets with visuals rendering to more pages fall back
	MaxJSONDirectPages  int // ceiling for page-by-page JSON
	MaxJSONDirectTokens int
	// MinTextChars is the text length below which a document is judged
	// image-only and the token ceiling is ignored.
	MinTextChars int
}

// DefaultLimits returns the standard thresholds.
func DefaultLimits() Limits {
	return Limits{
		MaxXLSXViaPDFPages:  10,
		MaxJSONDirectPages:  50,
		MaxJSONDirectTokens: 25000,
		MinTextChars:        200,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxXLSXViaPDFPages <= 0 {
		l.MaxXLSXViaPDFPages = d.MaxXLSXViaPDFPages
	}
	if l.MaxJSONDirectPages <= 0 {
		l.MaxJSONDirectPages = d.MaxJSONDirectPages
	}
	if l.MaxJSONDirectTokens <= 0 {
		l.MaxJSONDirectTokens = d.MaxJSONDirectTokens
	}
	if l.MinTextChars <= 0 {
		l.MinTextChars = d.MinTextChars
	}
	return l
}

// Decision is a selected strategy and the rule that produced it.
type Decision struct {
	Strategy Strategy `json:"strategy"`
	// Markdown is the Markdown strategy behind a JSON decision. It equals
	// Strategy for Markdown requests.
	Markdown Strategy `json:"markdown_strategy"`
	Reason   string   `json:"reason"`
}

// Select picks the Markdown conversion strategy.
func Select(doc Document, caps Capabilities, limits Limits) Decision {
	d := selectMarkdown(doc, caps, limits.withDefaults())
	d.Markdown = d.Strategy
	slog.Debug("strategy: selected", "format", doc.Format, "strategy", d.Strategy, "reason", d.Reason)
	return d
}

// SelectJSON picks the strategy for a JSON request. Page-oriented LLM
// strategies go straight to page-by-page JSON unless markdownFirst is
// explicitly true or the document exceeds the direct ceiling.
func SelectJSON(doc Document, caps Capabilities, limits Limits, markdownFirst *bool) Decision {
	limits = limits.withDefaults()
	md := selectMarkdown(doc, caps, limits)
	d := Decision{Strategy: md.Strategy, Markdown: md.Strategy, Reason: md.Reason}

	switch {
	case md.Strategy != LLMPageImage && md.Strategy != OfficeViaPDFThenLLM:
		// Markdown is produced first and extracted from.
	case markdownFirst != nil && *markdownFirst:
		d.Reason = "markdown first requested"
	default:
		if ok, why := withinDirectCeiling(doc, limits); ok {
			d.Strategy = PageByPageJSONDirect
			d.Reason = why
		} else {
			d.Reason = why
		}
	}
	slog.Debug("strategy: selected for json", "format", doc.Format,
		"strategy", d.Strategy, "markdown_strategy", d.Markdown, "reason", d.Reason)
	return d
}

func selectMarkdown(doc Document, caps Capabilities, l Limits) Decision {
	vision := caps.LLM && caps.VisionLLM

	switch {
	case doc.Format == parser.FormatPDF && vision:
		return Decision{Strategy: LLMPageImage, Reason: "pdf with vision llm"}

	case doc.Format == parser.FormatPDF:
		return Decision{Strategy: GenericNonLLMParse, Reason: "pdf without vision llm"}

	case doc.Format == parser.FormatXLSX && !doc.HasVisuals:
		return Decision{Strategy: SpreadsheetStructuredParse, Reason: "spreadsheet without charts or images"}

	case doc.Format == parser.FormatXLSX:
		if !vision || !caps.OfficeRenderer {
			slog.Info("strategy: spreadsheet visuals dropped", "reason", "no vision llm or renderer")
			return Decision{Strategy: GenericNonLLMParse, Reason: "spreadsheet with visuals, no vision llm or renderer"}
		}
		if doc.RenderedPages > l.MaxXLSXViaPDFPages {
			slog.Info("strategy: spreadsheet over page budget",
				"pages", doc.RenderedPages, "limit", l.MaxXLSXViaPDFPages)
			return Decision{Strategy: GenericNonLLMParse,
				Reason: fmt.Sprintf("spreadsheet renders to %d pages, over %d", doc.RenderedPages, l.MaxXLSXViaPDFPages)}
		}
		return Decision{Strategy: OfficeViaPDFThenLLM, Reason: "spreadsheet with visuals within page budget"}

	case doc.Format == parser.FormatDOCX || doc.Format == parser.FormatDOC || doc.Format == parser.FormatPPTX:
		if vision && caps.OfficeRenderer {
			return Decision{Strategy: OfficeViaPDFThenLLM, Reason: "office document with vision llm"}
		}
		return Decision{Strategy: GenericNonLLMParse, Reason: "office document without vision llm or renderer"}

	case doc.Format.IsLegacyOffice():
		switch {
		case !caps.OfficeRenderer:
			slog.Info("strategy: no renderer for legacy format", "format", doc.Format)
			return Decision{Strategy: GenericNonLLMParse, Reason: "legacy office format without renderer"}
		case vision:
			return Decision{Strategy: OfficeViaPDFThenLLM, Reason: "legacy office format with vision llm"}
		default:
			return Decision{Strategy: OfficeViaPDFThenNonLLM, Reason: "legacy office format without llm"}
		}

	case doc.Format == parser.FormatText || doc.Format == parser.FormatMarkdown:
		return Decision{Strategy: PlainParse, Reason: "plain text"}

	case doc.Format == parser.FormatCSV || doc.Format == parser.FormatHTML:
		return Decision{Strategy: GenericNonLLMParse, Reason: "text-like format"}
	}

	slog.Info("strategy: unrecognized format, using generic parse", "format", doc.Format)
	return Decision{Strategy: GenericNonLLMParse, Reason: "fallback for unrecognized format"}
}

// withinDirectCeiling judges image-only documents by pages alone and
// documents with extractable text by pages and tokens.
func withinDirectCeiling(doc Document, l Limits) (bool, string) {
	pages := doc.PageCount
	if doc.RenderedPages > 0 {
		pages = doc.RenderedPages
	}
	if pages > l.MaxJSONDirectPages {
		return false, fmt.Sprintf("%d pages over direct ceiling of %d, markdown first", pages, l.MaxJSONDirectPages)
	}
	if doc.TextChars >= l.MinTextChars && doc.Tokens > l.MaxJSONDirectTokens {
		return false, fmt.Sprintf("%d tokens over direct ceiling of %d, markdown first", doc.Tokens, l.MaxJSONDirectTokens)
	}
	return true, "within direct ceiling, page-by-page json"
}
