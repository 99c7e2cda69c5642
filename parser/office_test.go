package parser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf16"
)

const testDocxXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"
            xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"
            xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
            xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
            xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">
  <w:body>
    <w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Intro</w:t></w:r></w:p>
    <w:p><w:r><w:t>Hello </w:t></w:r><w:hyperlink><w:r><w:t>world.</w:t></w:r></w:hyperlink></w:p>
    <w:p><w:pPr><w:numPr><w:ilvl w:val="0"/></w:numPr></w:pPr><w:r><w:t>First</w:t></w:r></w:p>
    <w:p><w:pPr><w:numPr><w:ilvl w:val="0"/></w:numPr></w:pPr><w:r><w:t>Second</w:t></w:r></w:p>
    <w:tbl>
      <w:tr><w:tc><w:p><w:r><w:t>A</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>B</w:t></w:r></w:p></w:tc></w:tr>
      <w:tr><w:tc><w:p><w:r><w:t>1</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>2</w:t></w:r></w:p></w:tc></w:tr>
    </w:tbl>
    <w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:r><w:t>Details</w:t></w:r></w:p>
    <w:p>
      <w:r><w:t>More.</w:t></w:r>
      <w:r><w:drawing><wp:inline><a:graphic><a:graphicData><pic:pic><pic:blipFill>
        <a:blip r:embed="rId1"/>
      </pic:blipFill></pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r>
    </w:p>
    <w:sectPr/>
  </w:body>
</w:document>`

func TestDOCXParserDocumentOrder(t *testing.T) {
	path := writeZip(t, "test.docx", map[string][]byte{"word/document.xml": []byte(testDocxXML)})

	result, err := (&DOCXParser{}).Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	wantTypes := []string{"section", "list", "table", "section", "image"}
	if len(result.Sections) != len(wantTypes) {
		t.Fatalf("got %d sections, want %d: %+v", len(result.Sections), len(wantTypes), result.Sections)
	}
	for i, s := range result.Sections {
		if s.Type != wantTypes[i] {
			t.Errorf("section[%d].Type = %q, want %q", i, s.Type, wantTypes[i])
		}
	}
	if result.Metadata["images"] != "1" {
		t.Errorf("images metadata = %q, want 1", result.Metadata["images"])
	}

	md := RenderMarkdown(result.Sections)
	want := "# Intro\n\nHello world.\n\n" +
		"- First\n- Second\n\n" +
		"| A | B |\n| --- | --- |\n| 1 | 2 |\n\n" +
		"## Details\n\nMore.\n\n" +
		"![Image]"
	if md != want {
		t.Errorf("markdown mismatch\ngot:\n%s\nwant:\n%s", md, want)
	}
}

func TestDOCXParserUnreadable(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"not a zip", func(t *testing.T) string { return writeFile(t, "bad.docx", []byte("plain text")) }},
		{"missing document.xml", func(t *testing.T) string {
			return writeZip(t, "empty.docx", map[string][]byte{"word/styles.xml": []byte("<styles/>")})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&DOCXParser{}).Parse(context.Background(), tt.path(t))
			if !errors.Is(err, ErrUnreadable) {
				t.Errorf("error = %v, want ErrUnreadable", err)
			}
		})
	}
}

func TestHeadingStyleLevel(t *testing.T) {
	tests := map[string]int{
		"Heading1": 1,
		"heading3": 3,
		"Title":    1,
		"Heading":  1,
	}
	for style, want := range tests {
		if got := headingStyleLevel(style); got != want {
			t.Errorf("headingStyleLevel(%q) = %d, want %d", style, got, want)
		}
	}
}

const testSlideXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
       xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree>
    <p:sp>
      <p:nvSpPr><p:cNvPr id="2" name="Title 1"/><p:cNvSpPr/><p:nvPr><p:ph type="title"/></p:nvPr></p:nvSpPr>
      <p:txBody><a:p><a:r><a:t>Quarterly Review</a:t></a:r></a:p></p:txBody>
    </p:sp>
    <p:sp>
      <p:nvSpPr><p:cNvPr id="3" name="Body"/><p:cNvSpPr/><p:nvPr><p:ph idx="1"/></p:nvPr></p:nvSpPr>
      <p:txBody><a:p><a:r><a:t>Revenue grew.</a:t></a:r></a:p><a:p><a:r><a:t>Costs fell.</a:t></a:r></a:p></p:txBody>
    </p:sp>
    <p:graphicFrame><a:graphic><a:graphicData><a:tbl>
      <a:tr><a:tc><a:txBody><a:p><a:r><a:t>Q</a:t></a:r></a:p></a:txBody></a:tc><a:tc><a:txBody><a:p><a:r><a:t>Sales</a:t></a:r></a:p></a:txBody></a:tc></a:tr>
      <a:tr><a:tc><a:txBody><a:p><a:r><a:t>Q1</a:t></a:r></a:p></a:txBody></a:tc><a:tc><a:txBody><a:p><a:r><a:t>10</a:t></a:r></a:p></a:txBody></a:tc></a:tr>
    </a:tbl></a:graphicData></a:graphic></p:graphicFrame>
    <p:pic><p:nvPicPr><p:cNvPr id="4" name="Picture"/></p:nvPicPr></p:pic>
  </p:spTree></p:cSld>
</p:sld>`

const testSlide2XML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
       xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree>
    <p:sp><p:txBody><a:p><a:r><a:t>Thank you</a:t></a:r></a:p></p:txBody></p:sp>
  </p:spTree></p:cSld>
</p:sld>`

func TestPPTXParserSlides(t *testing.T) {
	path := writeZip(t, "deck.pptx", map[string][]byte{
		"ppt/slides/slide1.xml":            []byte(testSlideXML),
		"ppt/slides/slide2.xml":            []byte(testSlide2XML),
		"ppt/slides/_rels/slide1.xml.rels": []byte("<Relationships/>"),
	})

	result, err := (&PPTXParser{}).Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.Metadata["slides"] != "2" {
		t.Errorf("slides = %q, want 2", result.Metadata["slides"])
	}

	md := RenderMarkdown(result.Sections)
	want := "## Slide 1\n\n**Quarterly Review**\n\nRevenue grew.\n\nCosts fell.\n\n" +
		"| Q | Sales |\n| --- | --- |\n| Q1 | 10 |\n\n" +
		"![Image]\n\n" +
		"---\n\n" +
		"## Slide 2\n\nThank you"
	if md != want {
		t.Errorf("markdown mismatch\ngot:\n%s\nwant:\n%s", md, want)
	}

	pages := RenderPages(result.Sections)
	if len(pages) != 2 || pages[0].Page != 1 || pages[1].Page != 2 {
		t.Errorf("RenderPages = %+v, want slides 1 and 2", pages)
	}
}

func TestPPTXParserNoSlides(t *testing.T) {
	path := writeZip(t, "empty.pptx", map[string][]byte{"ppt/presentation.xml": []byte("<p/>")})
	_, err := (&PPTXParser{}).Parse(context.Background(), path)
	if !errors.Is(err, ErrUnreadable) {
		t.Errorf("error = %v, want ErrUnreadable", err)
	}
}

func TestExtractSlideNumber(t *testing.T) {
	tests := map[string]int{
		"ppt/slides/slide1.xml":  1,
		"ppt/slides/slide12.xml": 12,
		"ppt/slides/slideX.xml":  0,
	}
	for name, want := range tests {
		if got := extractSlideNumber(name); got != want {
			t.Errorf("extractSlideNumber(%q) = %d, want %d", name, got, want)
		}
	}
}

func utf16LE(s string) []byte {
	var out []byte
	for _, u := range utf16.Encode([]rune(s)) {
		out = append(out, byte(u), byte(u>>8))
	}
	return out
}

func TestLegacyParserRecoversText(t *testing.T) {
	var data []byte
	data = append(data, 0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1)
	data = append(data, []byte("Arial\x00Normal\x00\x00")...)
	data = append(data, 0x00, 0xFF, 0x00, 0xFE)
	data = append(data, utf16LE("The quarterly report shows steady growth in all regions.")...)
	data = append(data, 0x0D, 0x00)
	data = append(data, utf16LE("Second paragraph of recovered prose text.")...)
	data = append(data, 0xFF, 0xFF, 0x01, 0x02)

	path := writeFile(t, "old.doc", data)
	result, err := (&LegacyParser{}).Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	md := RenderMarkdown(result.Sections)
	for _, want := range []string{
		"The quarterly report shows steady growth in all regions.",
		"Second paragraph of recovered prose text.",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("recovered text missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "Arial") {
		t.Errorf("style names should not be recovered:\n%s", md)
	}
}

func TestLegacyParserNoText(t *testing.T) {
	path := writeFile(t, "blank.doc", []byte{0xD0, 0xCF, 0x11, 0xE0, 0x00, 0x01, 0x02, 0x03})
	_, err := (&LegacyParser{}).Parse(context.Background(), path)
	if !errors.Is(err, ErrUnreadable) {
		t.Errorf("error = %v, want ErrUnreadable", err)
	}
}

func TestOfficeRendererAvailable(t *testing.T) {
	r := &OfficeRenderer{Binary: "definitely-not-a-real-office-binary"}
	if r.Available() {
		t.Error("Available() = true for a missing binary")
	}
	if (&OfficeRenderer{}).binary() != "soffice" {
		t.Error("default binary should be soffice")
	}
}

func TestOfficeRendererMissingInput(t *testing.T) {
	r := &OfficeRenderer{Binary: "definitely-not-a-real-office-binary"}
	_, err := r.ConvertToPDF(context.Background(), "/nonexistent/file.docx", t.TempDir())
	if !errors.Is(err, ErrUnreadable) {
		t.Errorf("error = %v, want ErrUnreadable", err)
	}
}
