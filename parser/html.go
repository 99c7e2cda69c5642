package parser

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// HTMLParser sanitises HTML and converts it to Markdown. Build it with
// NewHTMLParser.
type HTMLParser struct {
	mdConverter *converter.Converter
	policy      *bluemonday.Policy
}

// NewHTMLParser returns an HTMLParser with CommonMark and table support.
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{
		mdConverter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

func (p *HTMLParser) SupportedFormats() []string { return []string{"html"} }

func (p *HTMLParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading HTML: %v", ErrUnreadable, err)
	}
	md, err := p.Convert(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: converting HTML: %v", ErrUnreadable, err)
	}
	if md == "" {
		return &ParseResult{Method: "html"}, nil
	}
	return &ParseResult{
		Sections: []Section{{Content: md, Type: "section"}},
		Method:   "html",
	}, nil
}

// Convert sanitises an HTML string and returns its Markdown rendering.
func (p *HTMLParser) Convert(html string) (string, error) {
	clean := p.policy.Sanitize(html)
	md, err := p.mdConverter.ConvertString(clean)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}
