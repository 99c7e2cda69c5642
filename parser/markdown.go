package parser

import (
	"sort"
	"strings"
)

// RenderMarkdown renders parsed sections as a single Markdown document.
// Page headers and footers are dropped.
func RenderMarkdown(sections []Section) string {
	var b strings.Builder
	for _, s := range sections {
		writeSection(&b, s)
	}
	return strings.TrimSpace(b.String())
}

// PageFragment is the Markdown for one source page.
type PageFragment struct {
	Page     int
	Markdown string
}

// RenderPages renders sections grouped by PageNumber, in page order.
// Sections without a page number are attached to page 1.
func RenderPages(sections []Section) []PageFragment {
	byPage := make(map[int][]Section)
	for _, s := range sections {
		p := s.PageNumber
		if p < 1 {
			p = 1
		}
		byPage[p] = append(byPage[p], s)
	}
	pages := make([]int, 0, len(byPage))
	for p := range byPage {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	out := make([]PageFragment, 0, len(pages))
	for _, p := range pages {
		if md := RenderMarkdown(byPage[p]); md != "" {
			out = append(out, PageFragment{Page: p, Markdown: md})
		}
	}
	return out
}

func writeSection(b *strings.Builder, s Section) {
	switch s.Type {
	case "page_header", "page_footer":
		return
	case "page_break":
		b.WriteString("---\n\n")
		return
	case "image":
		alt := strings.TrimSpace(s.Content)
		if alt == "" {
			alt = "Image"
		}
		b.WriteString("![" + alt + "]\n\n")
		return
	}

	if s.Heading != "" {
		b.WriteString(strings.Repeat("#", clampLevel(s.Level)))
		b.WriteString(" ")
		b.WriteString(s.Heading)
		b.WriteString("\n\n")
	}

	content := strings.TrimSpace(s.Content)
	if content == "" {
		return
	}
	switch s.Type {
	case "list":
		for _, line := range strings.Split(content, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				b.WriteString("- " + line + "\n")
			}
		}
		b.WriteString("\n")
	case "address":
		for _, line := range strings.Split(content, "\n") {
			b.WriteString("> " + strings.TrimSpace(line) + "\n")
		}
		b.WriteString("\n")
	default:
		b.WriteString(content)
		b.WriteString("\n\n")
	}
}

func clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 6 {
		return 6
	}
	return level
}

// markdownTable renders rows as a Markdown table with the first row as
// the header. Cells are escaped for pipes and newlines.
func markdownTable(rows [][]string) string {
	escaped := make([][]string, len(rows))
	for i, r := range rows {
		escaped[i] = make([]string, len(r))
		for j, c := range r {
			escaped[i][j] = escapeCell(c)
		}
	}
	return rawMarkdownTable(escaped)
}

// rawMarkdownTable is markdownTable for cells that are already escaped.
func rawMarkdownTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	if width == 0 {
		return ""
	}

	var b strings.Builder
	writeRow := func(r []string) {
		b.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(r) {
				cell = r[i]
			}
			b.WriteString(" " + cell + " |")
		}
		b.WriteString("\n")
	}
	writeRow(rows[0])
	b.WriteString("|" + strings.Repeat(" --- |", width) + "\n")
	for _, r := range rows[1:] {
		writeRow(r)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func escapeCell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "<br>")
}
