package parser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts per-page text from PDFs without an LLM.
type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening PDF: %v", ErrUnreadable, err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	if totalPages == 0 {
		return nil, fmt.Errorf("%w: PDF has no pages", ErrUnreadable)
	}
	sections := make([]Section, 0, totalPages)

	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		sections = append(sections, splitPageIntoSections(text, i)...)
	}

	return &ParseResult{
		Sections: sections,
		Method:   "native",
		Metadata: map[string]string{"pages": strconv.Itoa(totalPages)},
	}, nil
}

// splitPageIntoSections breaks page text into logical sections.
func splitPageIntoSections(text string, pageNum int) []Section {
	lines := strings.Split(text, "\n")
	var sections []Section
	var currentContent strings.Builder
	var currentHeading string
	currentLevel := 0

	flush := func() {
		sections = append(sections, Section{
			Heading:    currentHeading,
			Content:    strings.TrimSpace(currentContent.String()),
			Level:      currentLevel,
			PageNumber: pageNum,
			Type:       classifySectionType(currentHeading, currentContent.String()),
		})
		currentContent.Reset()
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if currentContent.Len() > 0 {
				currentContent.WriteString("\n")
			}
			continue
		}

		if isLikelyHeading(trimmed) {
			if currentContent.Len() > 0 {
				flush()
			} else if currentHeading != "" {
				// consecutive headings: keep the earlier one as its own section
				flush()
			}
			currentHeading = trimmed
			currentLevel = detectHeadingLevel(trimmed)
		} else {
			if currentContent.Len() > 0 {
				currentContent.WriteString("\n")
			}
			currentContent.WriteString(trimmed)
		}
	}

	if currentContent.Len() > 0 || currentHeading != "" {
		flush()
	}

	return sections
}

// Heading prefixes that mark a heading on their own, in English, Spanish,
// Portuguese and French.
var headingWordPrefixes = []string{
	"section ", "article ", "chapter ", "part ",
	"sección ", "seccion ", "capítulo ", "capitulo ", "anexo ",
	"seção ", "secao ", "artigo ",
	"chapitre ", "partie ", "annexe ",
}

// Caption prefixes that mark a heading only when followed by a number, so
// body text like "tabla siguiente muestra" is not matched.
var headingNumberedPrefixes = []string{
	"table ", "figure ",
	"tabla ", "figura ", "cuadro ", "gráfico ", "grafico ",
	"tabela ", "quadro ",
	"tableau ", "graphique ",
}

func isLikelyHeading(line string) bool {
	if line == "" {
		return false
	}
	if len(line) < 100 && len(line) > 2 && line == strings.ToUpper(line) && hasLetter(line) {
		return true
	}
	if len(line) >= 120 {
		return false
	}
	// Numbered section like "1.", "1.1", "3.9.1", "7.3.1.2"
	if line[0] >= '0' && line[0] <= '9' && strings.Contains(line[:min(10, len(line))], ".") {
		return true
	}
	lower := strings.ToLower(line)
	for _, p := range headingWordPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	for _, p := range headingNumberedPrefixes {
		if strings.HasPrefix(lower, p) && len(lower) > len(p) && lower[len(p)] >= '0' && lower[len(p)] <= '9' {
			return true
		}
	}
	return false
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func detectHeadingLevel(heading string) int {
	// Count dots in numbering to determine depth
	parts := strings.SplitN(heading, " ", 2)
	if len(parts) > 0 {
		dots := strings.Count(strings.TrimSuffix(parts[0], "."), ".")
		if dots > 0 {
			return dots + 1
		}
		if strings.HasSuffix(parts[0], ".") && parts[0][0] >= '0' && parts[0][0] <= '9' {
			return 1
		}
	}
	// All-caps = top level
	if heading == strings.ToUpper(heading) {
		return 1
	}
	return 2
}

func classifySectionType(heading, content string) string {
	headingLower := strings.ToLower(heading)
	for _, p := range []string{"table", "tabla", "tabela", "tableau"} {
		if strings.HasPrefix(headingLower, p) {
			return "table"
		}
	}
	// Structural table detection via content: tabs/pipes indicate actual table formatting
	if strings.Count(content, "\t") > 3 || strings.Count(content, "|") > 3 {
		return "table"
	}
	return "section"
}
