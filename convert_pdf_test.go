package aiworkflows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brunobiangulo/aiworkflows/llm"
	"github.com/brunobiangulo/aiworkflows/strategy"
)

// writePDF writes an image-only PDF with the given number of blank pages.
func writePDF(t *testing.T, pages int) string {
	t.Helper()
	var objs []string
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> /Contents %d 0 R >>", 4+2*i),
			"<< /Length 3 >>\nstream\nq Q\nendstream")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%EOF\n", len(objs)+1, xref)

	path := filepath.Join(t.TempDir(), fmt.Sprintf("scan-%d.pdf", pages))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConvertToJSONPDFDirect(t *testing.T) {
	fp := &fakeProvider{}
	fp.respond = func(prompt string, images []string) (string, error) {
		if len(images) != 1 {
			return "", errors.New("expected one page image")
		}
		return fmt.Sprintf(`{"questions": ["Q%d"]}`, pageOf(t, images[0])), nil
	}
	c := newTestConverter(t, WithProvider(fp), WithPageRenderer(&fakePages{images: numberedPages(3)}))

	res, err := c.ConvertToJSON(context.Background(), writePDF(t, 3), testSpec)
	if err != nil {
		t.Fatalf("ConvertToJSON: %v", err)
	}
	if res.Strategy != strategy.PageByPageJSONDirect {
		t.Errorf("strategy = %s, want %s", res.Strategy, strategy.PageByPageJSONDirect)
	}
	if len(res.Entries) != 3 || fp.callCount() != 3 {
		t.Fatalf("entries = %d calls = %d, want 3 each", len(res.Entries), fp.callCount())
	}
	if res.Markdown != nil {
		t.Error("direct extraction should not produce intermediate markdown")
	}
	got := res.Merge()["questions"].([]any)
	if len(got) != 3 || got[0] != "Q1" || got[2] != "Q3" {
		t.Errorf("merged questions = %v", got)
	}
}

func TestConvertToJSONPDFOverCeiling(t *testing.T) {
	fp := &fakeProvider{}
	fp.respond = func(prompt string, images []string) (string, error) {
		if len(images) == 0 {
			return `{"questions": ["How satisfied are you?"]}`, nil
		}
		n := pageOf(t, images[0])
		if n == 2 {
			return "", &llm.ProviderError{Provider: "fake", StatusCode: 401, Err: errors.New("bad key")}
		}
		return fmt.Sprintf(`{"elements":[{"type":"body_text_section","content":"# Page %d"}]}`, n), nil
	}
	c := newTestConverter(t, WithProvider(fp), WithPageRenderer(&fakePages{images: numberedPages(60)}))

	res, err := c.ConvertToJSON(context.Background(), writePDF(t, 60), testSpec)
	if err != nil {
		t.Fatalf("ConvertToJSON: %v", err)
	}
	if res.Strategy != strategy.LLMPageImage {
		t.Errorf("strategy = %s, want markdown first via %s", res.Strategy, strategy.LLMPageImage)
	}
	if res.Markdown == nil || !strings.HasPrefix(res.Markdown.Markdown, "# Page 1\n\n# Page 3") {
		t.Fatalf("intermediate markdown = %+v", res.Markdown)
	}
	if fp.callCount() != 61 {
		t.Errorf("provider calls = %d, want 60 pages and one extraction", fp.callCount())
	}
	if len(res.Entries) != 1 || res.Succeeded() != 1 {
		t.Errorf("entries = %d succeeded = %d", len(res.Entries), res.Succeeded())
	}

	errs := res.Errors()
	if len(errs) != 1 || errs[0].Page != 2 || !errors.Is(errs[0], ErrProviderFatal) {
		t.Fatalf("errors = %v, want the failed page 2", errs)
	}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"errors":["unit 1 (page 2)`) {
		t.Errorf("marshalled result lacks the page failure: %s", data)
	}
}
