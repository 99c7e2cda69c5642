package parser

import "fmt"

// Registry maps format tags to the parser that handles them.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns a registry with every built-in parser registered.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	builtin := []Parser{
		&PDFParser{},
		&DOCXParser{},
		&XLSXParser{},
		&PPTXParser{},
		&CSVParser{},
		NewHTMLParser(),
		&TextParser{},
		&LegacyParser{},
	}
	for _, p := range builtin {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

// Get returns the parser for a format tag.
func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %w: no parser for format: %s", ErrUnreadable, ErrUnsupportedFormat, format)
	}
	return p, nil
}

// Register adds or replaces the parser for a format tag.
func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}
