package parser

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrUnreadable is returned for corrupt, empty or otherwise unreadable input.
	ErrUnreadable = errors.New("aiworkflows: document unreadable")

	// ErrUnsupportedFormat is returned when no backend can handle a format.
	// Errors wrapping it also wrap ErrUnreadable.
	ErrUnsupportedFormat = errors.New("aiworkflows: unsupported document format")
)

// Format is the closed set of document format tags.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatDOC      Format = "doc"
	FormatPPTX     Format = "pptx"
	FormatPPT      Format = "ppt"
	FormatXLSX     Format = "xlsx"
	FormatXLS      Format = "xls"
	FormatODT      Format = "odt"
	FormatODS      Format = "ods"
	FormatODP      Format = "odp"
	FormatRTF      Format = "rtf"
	FormatCSV      Format = "csv"
	FormatHTML     Format = "html"
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
	FormatOther    Format = "other"
)

var extFormats = map[string]Format{
	".pdf":      FormatPDF,
	".docx":     FormatDOCX,
	".doc":      FormatDOC,
	".pptx":     FormatPPTX,
	".ppt":      FormatPPT,
	".xlsx":     FormatXLSX,
	".xlsm":     FormatXLSX,
	".xls":      FormatXLS,
	".odt":      FormatODT,
	".ods":      FormatODS,
	".odp":      FormatODP,
	".rtf":      FormatRTF,
	".csv":      FormatCSV,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".txt":      FormatText,
	".text":     FormatText,
	".log":      FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
}

// DetectFormat infers the format tag from the file extension. Unknown
// extensions map to FormatOther.
func DetectFormat(path string) Format {
	if f, ok := extFormats[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	return FormatOther
}

// IsOffice reports whether the office-to-PDF renderer can convert the format.
func (f Format) IsOffice() bool {
	switch f {
	case FormatDOCX, FormatDOC, FormatPPTX, FormatPPT, FormatXLSX, FormatXLS,
		FormatODT, FormatODS, FormatODP, FormatRTF:
		return true
	}
	return false
}

// IsLegacyOffice reports whether the format has no native parser and is
// only readable after conversion to PDF.
func (f Format) IsLegacyOffice() bool {
	switch f {
	case FormatPPT, FormatXLS, FormatODT, FormatODS, FormatODP, FormatRTF:
		return true
	}
	return false
}

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Sections []Section // Ordered sections extracted from the document
	Method   string    // "native", "html", "text"
	Metadata map[string]string
}

// Section represents a logical block of a parsed document.
type Section struct {
	Heading    string
	Content    string
	Level      int // Heading level (1=top, 2=sub, etc.)
	PageNumber int
	Type       string // "section", "table", "list", "image", "page_break", "address", "page_header", "page_footer"
	Metadata   map[string]string
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}
