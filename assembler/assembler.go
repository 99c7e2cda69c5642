// Package assembler joins per-unit Markdown fragments into one document.
//
// Cleanup is heuristic and approximate, not guaranteed lossless: running
// headers and footers repeated across consecutive units are dropped, and a
// sentence split across a unit boundary is rejoined.
package assembler

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Fragment is the Markdown produced for one unit.
type Fragment struct {
	Ordinal  int
	Markdown string
}

// Assembler holds the tunable cleanup thresholds.
type Assembler struct {
	// MinBoundaries is how many consecutive unit boundaries a line must
	// repeat across to count as a running header or footer.
	MinBoundaries int
	// Similarity is the minimum normalized edit similarity (0..1) for two
	// lines to be considered the same running line.
	Similarity float64
	// MaxLineLen bounds the length of a running line; longer lines are
	// treated as content.
	MaxLineLen int
	// NoRejoin disables rejoining sentences split across units.
	NoRejoin bool
}

// Default is the assembler used by Assemble.
var Default = Assembler{MinBoundaries: 2, Similarity: 0.85, MaxLineLen: 120}

// Assemble joins fragments with the default thresholds.
func Assemble(frags []Fragment) string {
	return Default.Assemble(frags)
}

// Assemble sorts fragments by ordinal, strips running headers and footers,
// and concatenates them with blank lines, rejoining split sentences.
func (a Assembler) Assemble(frags []Fragment) string {
	if len(frags) == 0 {
		return ""
	}
	a = a.withDefaults()

	sorted := make([]Fragment, len(frags))
	copy(sorted, frags)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Ordinal < sorted[j].Ordinal })

	pages := make([][]string, len(sorted))
	for i, f := range sorted {
		pages[i] = strings.Split(f.Markdown, "\n")
	}
	if len(pages) > 1 {
		a.stripRunning(pages, firstLine)
		a.stripRunning(pages, lastLine)
	}

	var out strings.Builder
	for i, lines := range pages {
		text := strings.TrimSpace(strings.Join(lines, "\n"))
		if text == "" {
			continue
		}
		if out.Len() == 0 {
			out.WriteString(text)
			continue
		}
		prev := out.String()
		switch {
		case !a.NoRejoin && i > 0 && continuesSentence(prev, text):
			if hyphenated(prev) {
				s := strings.TrimSuffix(prev, "-")
				out.Reset()
				out.WriteString(s)
			} else {
				out.WriteByte(' ')
			}
			out.WriteString(text)
		default:
			out.WriteString("\n\n")
			out.WriteString(text)
		}
	}
	return out.String()
}

func (a Assembler) withDefaults() Assembler {
	if a.MinBoundaries <= 0 {
		a.MinBoundaries = Default.MinBoundaries
	}
	if a.Similarity <= 0 {
		a.Similarity = Default.Similarity
	}
	if a.MaxLineLen <= 0 {
		a.MaxLineLen = Default.MaxLineLen
	}
	return a
}

// lineFunc returns the index of a page's header or footer candidate, or -1.
type lineFunc func(lines []string) int

func firstLine(lines []string) int {
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			return i
		}
	}
	return -1
}

func lastLine(lines []string) int {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return i
		}
	}
	return -1
}

// stripRunning blanks the candidate line of every page that sits inside a
// run of at least MinBoundaries consecutive matching boundaries.
func (a Assembler) stripRunning(pages [][]string, pick lineFunc) {
	n := len(pages)
	cand := make([]string, n)
	idx := make([]int, n)
	for i, lines := range pages {
		idx[i] = pick(lines)
		if idx[i] >= 0 {
			cand[i] = normalizeLine(lines[idx[i]])
		}
	}

	// match[b] reports whether pages b and b+1 share the candidate line.
	match := make([]bool, n-1)
	for b := 0; b < n-1; b++ {
		x, y := cand[b], cand[b+1]
		if x == "" || y == "" || utf8.RuneCountInString(x) > a.MaxLineLen || utf8.RuneCountInString(y) > a.MaxLineLen {
			continue
		}
		match[b] = similarity(x, y) >= a.Similarity
	}

	strip := make([]bool, n)
	for b := 0; b < len(match); {
		if !match[b] {
			b++
			continue
		}
		end := b
		for end+1 < len(match) && match[end+1] {
			end++
		}
		if end-b+1 >= a.MinBoundaries {
			for p := b; p <= end+1; p++ {
				strip[p] = true
			}
		}
		b = end + 1
	}

	for i, s := range strip {
		if s && idx[i] >= 0 {
			pages[i][idx[i]] = ""
		}
	}
}

// normalizeLine prepares a line for running-header comparison: markup and
// trailing extraction garbage are removed, digit runs collapse to '#' so
// page numbers do not defeat the match, and case is folded.
func normalizeLine(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == utf8.RuneError || unicode.Is(unicode.Co, r)
	})
	s = strings.Trim(s, "#*_ ")

	var b strings.Builder
	inDigits := false
	for _, r := range s {
		if unicode.IsDigit(r) {
			if !inDigits {
				b.WriteByte('#')
			}
			inDigits = true
			continue
		}
		inDigits = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// continuesSentence reports whether next looks like the continuation of a
// sentence left open at the end of prev.
func continuesSentence(prev, next string) bool {
	last := prev[strings.LastIndexByte(prev, '\n')+1:]
	last = strings.TrimSpace(last)
	if last == "" || isBlockLine(last) {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(last)
	if strings.ContainsRune(".!?:;\"'”’)]*_`|", r) {
		return false
	}

	first := next
	if i := strings.IndexByte(next, '\n'); i >= 0 {
		first = next[:i]
	}
	first = strings.TrimSpace(first)
	if first == "" || isBlockLine(first) {
		return false
	}
	fr, _ := utf8.DecodeRuneInString(first)
	return unicode.IsLower(fr)
}

// hyphenated reports whether text ends with a word broken by a hyphen.
func hyphenated(text string) bool {
	if !strings.HasSuffix(text, "-") || len(text) < 2 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text[:len(text)-1])
	return unicode.IsLetter(r)
}

// isBlockLine reports whether a line is Markdown block syntax that never
// continues as running prose.
func isBlockLine(line string) bool {
	switch {
	case strings.HasPrefix(line, "#"),
		strings.HasPrefix(line, "|"),
		strings.HasPrefix(line, "- "),
		strings.HasPrefix(line, "* "),
		strings.HasPrefix(line, "> "),
		strings.HasPrefix(line, "```"),
		strings.HasPrefix(line, "!["),
		line == "---", line == "***":
		return true
	}
	return false
}
