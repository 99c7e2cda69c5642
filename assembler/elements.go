package assembler

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Element types returned by the page-element prompt.
const (
	BodyText   = "body_text_section"
	Boxout     = "boxout"
	Table      = "table"
	Chart      = "chart"
	Image      = "image"
	Footnote   = "footnote"
	PageHeader = "page_header"
	PageFooter = "page_footer"
	Other      = "other"
)

// Element is one distinct part of a page.
type Element struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// PageElements are the elements found on one unit.
type PageElements struct {
	Ordinal  int
	Elements []Element
}

// ElementsFromJSON reads the "elements" list of a parsed page response.
// Entries that are not objects are skipped.
func ElementsFromJSON(obj map[string]any) ([]Element, error) {
	raw, ok := obj["elements"]
	if !ok {
		return nil, fmt.Errorf("response has no elements key")
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("elements is %T, not a list", raw)
	}
	out := make([]Element, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		typ, _ := m["type"].(string)
		content, _ := m["content"].(string)
		if typ == "" {
			typ = Other
		}
		out = append(out, Element{Type: strings.ToLower(typ), Content: content})
	}
	return out, nil
}

// CleanAndReorder cleans elements with the Default assembler.
func CleanAndReorder(elements []Element) []Element {
	return Default.CleanAndReorder(elements)
}

// CleanAndReorder drops page headers and footers and blank body sections.
// Body sections that do not open with a heading move to just after the
// last body section, so text flows across pages within a section; one that
// carries on an open sentence is joined onto that section.
func (a Assembler) CleanAndReorder(elements []Element) []Element {
	out := make([]Element, 0, len(elements))
	lastBody := -1
	for _, e := range elements {
		switch e.Type {
		case PageHeader, PageFooter:
			continue
		case BodyText:
			if strings.TrimSpace(e.Content) == "" {
				continue
			}
			if StartsWithHeading(e.Content) || lastBody < 0 {
				out = append(out, e)
				lastBody = len(out) - 1
				continue
			}
			prev := strings.TrimSpace(out[lastBody].Content)
			next := strings.TrimSpace(e.Content)
			if !a.NoRejoin && continuesSentence(prev, next) {
				out[lastBody].Content = joinSentence(prev, next)
				continue
			}
			lastBody++
			out = slices.Insert(out, lastBody, e)
		default:
			out = append(out, e)
		}
	}
	return out
}

// joinSentence glues next onto prev, mending a word hyphenated across the
// break.
func joinSentence(prev, next string) string {
	if hyphenated(prev) {
		return strings.TrimSuffix(prev, "-") + next
	}
	return prev + " " + next
}

// RenderElements renders body sections verbatim and every other element
// as a labelled block set off by horizontal rules.
func RenderElements(elements []Element) string {
	var b strings.Builder
	for _, e := range elements {
		content := strings.TrimSpace(e.Content)
		if e.Type == BodyText {
			b.WriteString(content)
			b.WriteString("\n\n")
			continue
		}
		fmt.Fprintf(&b, "***\n\n%s:\n\n%s\n\n***\n\n", strings.ToUpper(e.Type), content)
	}
	return strings.TrimSpace(b.String())
}

// AssembleElements assembles page elements with the default thresholds.
func AssembleElements(pages []PageElements) string {
	return Default.AssembleElements(pages)
}

// AssembleElements orders pages by ordinal, strips running lines the model
// typed as body text, then cleans and renders the flattened pages.
func (a Assembler) AssembleElements(pages []PageElements) string {
	a = a.withDefaults()
	sorted := make([]PageElements, len(pages))
	copy(sorted, pages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Ordinal < sorted[j].Ordinal })

	body := make([][]Element, len(sorted))
	for i, p := range sorted {
		for _, e := range p.Elements {
			if e.Type != PageHeader && e.Type != PageFooter {
				body[i] = append(body[i], e)
			}
		}
	}
	if len(body) > 1 {
		a.stripRunningBody(body, firstBodyIndex, firstLine)
		a.stripRunningBody(body, lastBodyIndex, lastLine)
	}

	var all []Element
	for _, els := range body {
		all = append(all, els...)
	}
	return RenderElements(a.CleanAndReorder(all))
}

// stripRunningBody runs stripRunning over the edge line of the chosen body
// section on every page. Headings and other block lines are never
// candidates, so numbered chapter titles survive.
func (a Assembler) stripRunningBody(pages [][]Element, pickElem func([]Element) int, pickLine lineFunc) {
	idx := make([]int, len(pages))
	lines := make([][]string, len(pages))
	for i, els := range pages {
		idx[i] = pickElem(els)
		if idx[i] >= 0 {
			lines[i] = strings.Split(els[idx[i]].Content, "\n")
		}
	}
	a.stripRunning(lines, proseLine(pickLine))
	for i, els := range pages {
		if idx[i] >= 0 {
			els[idx[i]].Content = strings.Join(lines[i], "\n")
		}
	}
}

func proseLine(pick lineFunc) lineFunc {
	return func(lines []string) int {
		i := pick(lines)
		if i >= 0 && isBlockLine(strings.TrimSpace(lines[i])) {
			return -1
		}
		return i
	}
}

func firstBodyIndex(els []Element) int {
	return slices.IndexFunc(els, func(e Element) bool { return e.Type == BodyText })
}

func lastBodyIndex(els []Element) int {
	for i := len(els) - 1; i >= 0; i-- {
		if els[i].Type == BodyText {
			return i
		}
	}
	return -1
}

// StartsWithHeading reports whether the first non-blank line is an ATX
// heading or is underlined setext style.
func StartsWithHeading(content string) bool {
	lines := strings.Split(content, "\n")
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i >= len(lines) {
		return false
	}
	line := strings.TrimSpace(lines[i])
	if strings.HasPrefix(line, "#") {
		return true
	}
	if i+1 < len(lines) {
		under := strings.TrimSpace(lines[i+1])
		if under != "" && len(under) >= len(line) &&
			(strings.Trim(under, "-") == "" || strings.Trim(under, "=") == "") {
			return true
		}
	}
	return false
}
