package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DOCXParser converts Word documents to sections in document order.
type DOCXParser struct{}

func (p *DOCXParser) SupportedFormats() []string { return []string{"docx"} }

func (p *DOCXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening DOCX: %v", ErrUnreadable, err)
	}
	defer r.Close()

	data, err := readZipEntry(&r.Reader, "word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	sections, err := parseDocxXML(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing DOCX XML: %v", ErrUnreadable, err)
	}

	images := 0
	for _, s := range sections {
		if s.Type == "image" {
			images++
		}
	}

	return &ParseResult{
		Sections: sections,
		Method:   "native",
		Metadata: map[string]string{"images": strconv.Itoa(images)},
	}, nil
}

// readZipEntry returns the contents of a named entry in a zip archive.
func readZipEntry(r *zip.Reader, name string) ([]byte, error) {
	for _, f := range r.File {
		if f.Name == name {
			return readZipFile(f)
		}
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}

// DOCX XML structures (simplified)
type docxPara struct {
	PPr   *docxParaPr `xml:"pPr"`
	Runs  []docxRun   `xml:"r"`
	Links []docxLink  `xml:"hyperlink"`
}

// imageCount counts pictures embedded in the paragraph's runs.
func (p docxPara) imageCount() int {
	n := 0
	for _, r := range p.Runs {
		for _, d := range r.Drawings {
			n += len(d.Inline) + len(d.Anchor)
		}
	}
	return n
}

type docxParaPr struct {
	PStyle *docxPStyle `xml:"pStyle"`
	NumPr  *struct{}   `xml:"numPr"`
}

type docxPStyle struct {
	Val string `xml:"val,attr"`
}

type docxRun struct {
	Text     []docxText    `xml:"t"`
	Tabs     []struct{}    `xml:"tab"`
	Drawings []docxDrawing `xml:"drawing"`
}

type docxDrawing struct {
	Inline []docxBlip `xml:"inline>graphic>graphicData>pic>blipFill>blip"`
	Anchor []docxBlip `xml:"anchor>graphic>graphicData>pic>blipFill>blip"`
}

type docxLink struct {
	Runs []docxRun `xml:"r"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

type docxBlip struct {
	Embed string `xml:"embed,attr"`
}

type docxTable struct {
	Rows []docxRow `xml:"tr"`
}

type docxRow struct {
	Cells []docxCell `xml:"tc"`
}

type docxCell struct {
	Paras []docxPara `xml:"p"`
}

// parseDocxXML walks the document body in order, emitting heading
// sections, list blocks, tables and image placeholders.
func parseDocxXML(data []byte) ([]Section, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var sections []Section
	var current strings.Builder
	var list strings.Builder
	var heading string
	level := 0
	inBody := false

	flushList := func() {
		if list.Len() > 0 {
			sections = append(sections, Section{Content: list.String(), Type: "list"})
			list.Reset()
		}
	}
	flush := func() {
		if current.Len() > 0 || heading != "" {
			sections = append(sections, Section{
				Heading: heading,
				Content: strings.TrimSpace(current.String()),
				Level:   level,
				Type:    "section",
			})
		}
		current.Reset()
		heading = ""
		level = 0
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local == "body" {
			inBody = true
			continue
		}
		if !inBody {
			continue
		}

		switch start.Name.Local {
		case "p":
			var para docxPara
			if err := dec.DecodeElement(&para, &start); err != nil {
				return nil, err
			}
			text := strings.TrimSpace(extractParaText(para))
			style := ""
			if para.PPr != nil && para.PPr.PStyle != nil {
				style = para.PPr.PStyle.Val
			}
			lowerStyle := strings.ToLower(style)
			isList := para.PPr != nil && para.PPr.NumPr != nil || strings.HasPrefix(lowerStyle, "listparagraph")

			switch {
			case text == "":
			case strings.HasPrefix(lowerStyle, "heading") || strings.HasPrefix(lowerStyle, "title"):
				flushList()
				flush()
				heading = text
				level = headingStyleLevel(style)
			case isList:
				if current.Len() > 0 || heading != "" {
					flush()
				}
				list.WriteString(text + "\n")
			default:
				flushList()
				if current.Len() > 0 {
					current.WriteString("\n\n")
				}
				current.WriteString(text)
			}

			for range para.imageCount() {
				flushList()
				flush()
				sections = append(sections, Section{Type: "image"})
			}

		case "tbl":
			var tbl docxTable
			if err := dec.DecodeElement(&tbl, &start); err != nil {
				return nil, err
			}
			flushList()
			flush()
			if md := docxTableMarkdown(tbl); md != "" {
				sections = append(sections, Section{Content: md, Type: "table"})
			}

		default:
			if err := dec.Skip(); err != nil {
				return nil, err
			}
		}
	}

	flushList()
	flush()
	return sections, nil
}

func docxTableMarkdown(tbl docxTable) string {
	rows := make([][]string, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			var parts []string
			for _, p := range cell.Paras {
				if t := strings.TrimSpace(extractParaText(p)); t != "" {
					parts = append(parts, t)
				}
			}
			cells = append(cells, strings.Join(parts, "\n"))
		}
		rows = append(rows, cells)
	}
	return markdownTable(rows)
}

func extractParaText(para docxPara) string {
	var b strings.Builder
	writeRuns := func(runs []docxRun) {
		for _, run := range runs {
			for range run.Tabs {
				b.WriteString(" ")
			}
			for _, t := range run.Text {
				b.WriteString(t.Content)
			}
		}
	}
	writeRuns(para.Runs)
	for _, l := range para.Links {
		writeRuns(l.Runs)
	}
	return b.String()
}

func headingStyleLevel(style string) int {
	lower := strings.ToLower(style)
	if strings.Contains(lower, "title") {
		return 1
	}
	// Extract number from "Heading1", "Heading2", etc.
	for i := 1; i <= 9; i++ {
		if strings.Contains(lower, strconv.Itoa(i)) {
			return i
		}
	}
	return 1
}
