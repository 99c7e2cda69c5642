package parser

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// PPTXParser renders each slide as its own page-numbered section, with a
// page break between slides.
type PPTXParser struct{}

func (p *PPTXParser) SupportedFormats() []string { return []string{"pptx"} }

func (p *PPTXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening PPTX: %v", ErrUnreadable, err)
	}
	defer r.Close()

	slideFiles := pptxSlideFiles(&r.Reader)
	if len(slideFiles) == 0 {
		return nil, fmt.Errorf("%w: PPTX has no slides", ErrUnreadable)
	}

	nums := make([]int, 0, len(slideFiles))
	for n := range slideFiles {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var sections []Section
	for i, num := range nums {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rc, err := slideFiles[num].Open()
		if err != nil {
			slog.Debug("pptx: cannot open slide", "slide", num, "error", err)
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			slog.Debug("pptx: cannot read slide", "slide", num, "error", err)
			continue
		}

		if i > 0 {
			sections = append(sections, Section{Type: "page_break", PageNumber: num})
		}
		sections = append(sections, slideSections(data, num)...)
	}

	return &ParseResult{
		Sections: sections,
		Method:   "native",
		Metadata: map[string]string{"slides": strconv.Itoa(len(nums))},
	}, nil
}

func pptxSlideFiles(r *zip.Reader) map[int]*zip.File {
	slides := make(map[int]*zip.File)
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			if num := extractSlideNumber(f.Name); num > 0 {
				slides[num] = f
			}
		}
	}
	return slides
}

// pptxSlide simplified XML structure
type pptxSlide struct {
	CSld struct {
		SpTree struct {
			SPs    []pptxSP    `xml:"sp"`
			Frames []pptxFrame `xml:"graphicFrame"`
			Pics   []struct{}  `xml:"pic"`
		} `xml:"spTree"`
	} `xml:"cSld"`
}

type pptxSP struct {
	Placeholder *struct {
		Type string `xml:"type,attr"`
	} `xml:"nvSpPr>nvPr>ph"`
	TxBody *pptxTxBody `xml:"txBody"`
}

type pptxFrame struct {
	Rows []struct {
		Cells []struct {
			TxBody pptxTxBody `xml:"txBody"`
		} `xml:"tc"`
	} `xml:"graphic>graphicData>tbl>tr"`
}

type pptxTxBody struct {
	Paras []pptxAPara `xml:"p"`
}

type pptxAPara struct {
	Runs []pptxARun `xml:"r"`
}

type pptxARun struct {
	Text string `xml:"t"`
}

func (b *pptxTxBody) lines() []string {
	var out []string
	for _, para := range b.Paras {
		var line strings.Builder
		for _, run := range para.Runs {
			line.WriteString(run.Text)
		}
		if t := strings.TrimSpace(line.String()); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// slideSections turns one slide into a "Slide N" section carrying the
// slide title and body text, followed by its tables and image placeholders.
func slideSections(data []byte, num int) []Section {
	var slide pptxSlide
	if err := xml.Unmarshal(data, &slide); err != nil {
		slog.Debug("pptx: malformed slide", "slide", num, "error", err)
		return []Section{{Heading: fmt.Sprintf("Slide %d", num), Level: 2, Type: "section", PageNumber: num}}
	}

	var title string
	var body []string
	for _, sp := range slide.CSld.SpTree.SPs {
		if sp.TxBody == nil {
			continue
		}
		lines := sp.TxBody.lines()
		if sp.Placeholder != nil && (sp.Placeholder.Type == "title" || sp.Placeholder.Type == "ctrTitle") && title == "" {
			title = strings.Join(lines, " ")
			continue
		}
		body = append(body, lines...)
	}

	content := strings.Join(body, "\n\n")
	if title != "" {
		content = strings.TrimSpace("**" + title + "**\n\n" + content)
	}
	sections := []Section{{
		Heading:    fmt.Sprintf("Slide %d", num),
		Content:    content,
		Level:      2,
		Type:       "section",
		PageNumber: num,
	}}

	for _, frame := range slide.CSld.SpTree.Frames {
		if len(frame.Rows) == 0 {
			continue
		}
		rows := make([][]string, 0, len(frame.Rows))
		for _, tr := range frame.Rows {
			cells := make([]string, 0, len(tr.Cells))
			for _, tc := range tr.Cells {
				cells = append(cells, strings.Join(tc.TxBody.lines(), "\n"))
			}
			rows = append(rows, cells)
		}
		if md := markdownTable(rows); md != "" {
			sections = append(sections, Section{Content: md, Type: "table", PageNumber: num})
		}
	}

	for range slide.CSld.SpTree.Pics {
		sections = append(sections, Section{Type: "image", PageNumber: num})
	}
	return sections
}

func extractSlideNumber(name string) int {
	// Extract number from "ppt/slides/slide1.xml"
	name = strings.TrimPrefix(name, "ppt/slides/slide")
	name = strings.TrimSuffix(name, ".xml")
	num, err := strconv.Atoi(name)
	if err != nil {
		return 0
	}
	return num
}
