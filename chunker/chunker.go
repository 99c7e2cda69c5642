package chunker

import "strings"

// Config controls the chunking behaviour.
type Config struct {
	MaxTokens int // Maximum estimated tokens per chunk.
	Overlap   int // Tokens of trailing text carried into the next chunk as context.
}

// Unit is one page or text chunk of a document. Units are processed
// independently and reassembled by Ordinal.
type Unit struct {
	Ordinal  int
	Page     int    // 1-based source page for image units, 0 for text chunks
	Text     string // extracted text payload
	Image    []byte // encoded page image payload
	MIMEType string
	Context  string // tail of the previous unit's text, read-only context
}

// IsImage reports whether the unit carries a rendered image.
func (u Unit) IsImage() bool { return len(u.Image) > 0 }

// Chunker splits Markdown or plain text into token-bounded units.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration.
// Zero-value fields are replaced with sensible defaults; a negative
// Overlap disables carry-over context.
func New(cfg Config) *Chunker {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Overlap == 0 {
		cfg.Overlap = 128
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	return &Chunker{cfg: cfg}
}

// Split breaks text into ordered units that each fit within MaxTokens,
// splitting at paragraph and then sentence boundaries. Each unit after the
// first carries up to Overlap tokens of the previous unit's trailing text
// in Context. Blank input yields no units.
func (c *Chunker) Split(text string) []Unit {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	fragments := c.splitContent(text)
	units := make([]Unit, 0, len(fragments))
	for i, frag := range fragments {
		u := Unit{Ordinal: i, Text: frag}
		if i > 0 && c.cfg.Overlap > 0 {
			u.Context = extractOverlap(fragments[i-1], c.cfg.Overlap)
		}
		units = append(units, u)
	}
	return units
}

// splitContent breaks a long text into fragments that each fit within
// MaxTokens, splitting at paragraph and then sentence boundaries.
func (c *Chunker) splitContent(text string) []string {
	if CountTokens(text) <= c.cfg.MaxTokens {
		return []string{strings.TrimSpace(text)}
	}

	var fragments []string
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if current.Len() > 0 {
			fragments = append(fragments, strings.TrimSpace(current.String()))
			current.Reset()
			currentTokens = 0
		}
	}

	for _, para := range splitParagraphs(text) {
		paraTokens := CountTokens(para)

		// A single paragraph over budget is split by sentences.
		if paraTokens > c.cfg.MaxTokens {
			flush()
			fragments = append(fragments, c.splitBySentences(para)...)
			continue
		}

		if currentTokens+paraTokens > c.cfg.MaxTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		currentTokens += paraTokens
	}
	flush()

	return fragments
}

// splitBySentences breaks a paragraph into fragments at sentence
// boundaries. A sentence that alone exceeds MaxTokens is cut at word
// boundaries, the only case where a split lands mid-sentence.
func (c *Chunker) splitBySentences(text string) []string {
	var fragments []string
	var current strings.Builder
	currentTokens := 0

	for _, sent := range splitSentences(text) {
		sentTokens := CountTokens(sent)

		if currentTokens+sentTokens > c.cfg.MaxTokens && current.Len() > 0 {
			fragments = append(fragments, strings.TrimSpace(current.String()))
			current.Reset()
			currentTokens = 0
		}

		if sentTokens > c.cfg.MaxTokens {
			fragments = append(fragments, splitByWords(sent, c.cfg.MaxTokens)...)
			continue
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
		currentTokens += sentTokens
	}

	if current.Len() > 0 {
		fragments = append(fragments, strings.TrimSpace(current.String()))
	}

	return fragments
}

func splitByWords(text string, maxTokens int) []string {
	words := strings.Fields(text)
	per := maxWordsFor(maxTokens)
	if per == 0 {
		per = 1
	}
	var out []string
	for len(words) > 0 {
		n := per
		if n > len(words) {
			n = len(words)
		}
		out = append(out, strings.Join(words[:n], " "))
		words = words[n:]
	}
	return out
}

// splitParagraphs splits text on blank-line boundaries.
func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences is a simple sentence tokeniser.  It splits on
// period/question-mark/exclamation followed by whitespace or end of
// string.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				s := strings.TrimSpace(cur.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// extractOverlap returns the trailing portion of text whose estimated
// token count is at most maxTokens.  It works at the word level.
func extractOverlap(text string, maxTokens int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	maxWords := maxWordsFor(maxTokens)
	if maxWords > len(words) {
		maxWords = len(words)
	}
	if maxWords == 0 {
		return ""
	}
	return strings.Join(words[len(words)-maxWords:], " ")
}
