package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// TextParser handles plain text, Markdown and other text-convertible files.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "md", "other"} }

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading text file: %v", ErrUnreadable, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %w: %s is not UTF-8 text", ErrUnreadable, ErrUnsupportedFormat, filepath.Base(path))
	}

	content := string(data)
	if content == "" {
		return &ParseResult{Method: "text"}, nil
	}

	return &ParseResult{
		Sections: []Section{
			{
				Content: content,
				Type:    "section",
			},
		},
		Method: "text",
	}, nil
}
