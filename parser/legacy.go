package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// minTextRun is the shortest printable run kept from a binary document.
// Shorter runs are almost always style names and font tables.
const minTextRun = 16

// LegacyParser does best-effort text recovery from Word 97-2003 binaries.
// Text is stored either as 8-bit runs or as UTF-16LE runs; both are
// scanned and runs that look like prose are kept in file order.
type LegacyParser struct{}

func (p *LegacyParser) SupportedFormats() []string { return []string{"doc"} }

func (p *LegacyParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading DOC: %v", ErrUnreadable, err)
	}

	runs := printableRuns(data)
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no recoverable text in %s", ErrUnreadable, path)
	}

	return &ParseResult{
		Sections: []Section{{Content: strings.Join(runs, "\n\n"), Type: "section"}},
		Method:   "text",
	}, nil
}

// printableRuns returns prose-like runs found as UTF-16LE or 8-bit text,
// whichever encoding recovers more characters.
func printableRuns(data []byte) []string {
	wide := scanRuns(data, 2)
	narrow := scanRuns(data, 1)
	if runeTotal(wide) >= runeTotal(narrow) {
		return wide
	}
	return narrow
}

func runeTotal(runs []string) int {
	n := 0
	for _, r := range runs {
		n += len(r)
	}
	return n
}

// scanRuns collects printable ASCII runs where each character occupies
// width bytes (the high byte must be zero for width 2).
func scanRuns(data []byte, width int) []string {
	var runs []string
	var cur strings.Builder

	flush := func() {
		s := strings.Join(strings.Fields(cur.String()), " ")
		cur.Reset()
		if len(s) >= minTextRun && strings.Contains(s, " ") && letterRatio(s) >= 0.6 {
			runs = append(runs, s)
		}
	}

	for i := 0; i+width <= len(data); i += width {
		c := data[i]
		if width == 2 && data[i+1] != 0 {
			flush()
			continue
		}
		switch {
		case c == '\r' || c == '\n':
			flush()
		case c == '\t' || (c >= 0x20 && c < 0x7f):
			cur.WriteByte(c)
		default:
			flush()
		}
	}
	flush()
	return runs
}

func letterRatio(s string) float64 {
	letters, total := 0, 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(letters) / float64(total)
}
