package extract

import (
	"fmt"
	"strings"

	"github.com/brunobiangulo/aiworkflows/llm"
)

// Spec describes a JSON extraction in natural language. The fields are
// forwarded verbatim into prompts and never interpreted.
type Spec struct {
	Context    string `json:"context"`     // what the document is
	Job        string `json:"job"`         // what to extract
	OutputSpec string `json:"output_spec"` // the expected JSON shape
}

// Validate requires all three fields.
func (s Spec) Validate() error {
	var missing []string
	if strings.TrimSpace(s.Context) == "" {
		missing = append(missing, "context")
	}
	if strings.TrimSpace(s.Job) == "" {
		missing = append(missing, "job")
	}
	if strings.TrimSpace(s.OutputSpec) == "" {
		missing = append(missing, "output spec")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: json extraction requires %s", llm.ErrConfig, strings.Join(missing, ", "))
	}
	return nil
}

// MarkdownPrompt asks for JSON from a block of Markdown. When context is
// non-empty it is shown as the already-processed tail of the previous
// chunk.
func MarkdownPrompt(spec Spec, markdown, context string) string {
	var b strings.Builder
	b.WriteString("Consider the Markdown text below, which has been extracted from a file.\n\n")
	writeSpec(&b, spec)
	if context != "" {
		b.WriteString("The text continues from an earlier part of the file that has already been processed. ")
		b.WriteString("Its last lines are enclosed by |^| delimiters for reference only; do not extract anything from them:\n\n")
		b.WriteString("|^|" + context + "|^|\n\n")
	}
	b.WriteString("Markdown text enclosed by |@| delimiters:\n\n")
	b.WriteString("|@|" + markdown + "|@|\n\n")
	b.WriteString("Your JSON response precisely following the instructions given above the Markdown text:")
	return b.String()
}

// PagePrompt asks for JSON from an attached page image.
func PagePrompt(spec Spec) string {
	var b strings.Builder
	b.WriteString("Consider the attached image, which shows a single page (or, sometimes, two facing pages) from a PDF file.\n\n")
	writeSpec(&b, spec)
	b.WriteString("Your JSON response precisely following the instructions above:")
	return b.String()
}

func writeSpec(b *strings.Builder, spec Spec) {
	for _, s := range []string{spec.Context, spec.Job, spec.OutputSpec} {
		b.WriteString(strings.TrimSpace(s))
		b.WriteString("\n\n")
	}
}

// ElementsSpec is the extraction that turns a page image into an ordered
// list of typed Markdown elements.
var ElementsSpec = Spec{
	Context: "The page might include a mix of text, tables, figures, charts, images, or other elements.",
	Job: `Your job is to:

First, identify each distinct element on the page, where an element is a part of the page that can be handled on its own. Elements include:

   1. Main body text, possibly in several sections. Body text can start on an earlier page or continue on a later one.
   2. Boxouts: sidebars, callouts or other self-contained sub-sections.
   3. Tables, with any title, notes or captions.
   4. Charts or graphs, with any title, notes or captions.
   5. Images or figures, with any title, notes or captions.
   6. Footnotes, with their number or letter.
   7. Page headers and footers: the thin one- or two-line strips at the top or bottom of the page, often with a title and page number. Larger headers or footers with real content are body text.
   8. Watermarks, backgrounds and purely decorative images. Ignore these completely.
   9. Anything else.

Then respond in correctly-formatted JSON as described below.`,
	OutputSpec: `Your JSON response must have a single key named "elements" holding a list of objects, one per element, in the order a human reader would read them. Each object has two keys:

   1. "type" (string), one of:
      "body_text_section", "boxout", "table", "chart", "image", "footnote", "page_header", "page_footer", "other"

   2. "content" (string), in Markdown:
      - body_text_section and boxout: the text verbatim, starting with its heading if any, formatted as Markdown, with soft hyphens at line ends removed and no hyperlinks added.
      - table: the complete table as a Markdown table, with its title, labels, data and notes.
      - chart: a description for a blind reader with exact details and numbers, including title, labels, notes and approximate values read from the axes.
      - image: a description for a blind reader with exact details, including title, labels, notes and captions.
      - footnote: the exact footnote including its label.
      - page_header and page_footer: the exact text.
      - other: the content as Markdown.

Return only the single "elements" list of objects, each with "type" and "content" keys.`,
}
