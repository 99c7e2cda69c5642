package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Document is what Probe learns about a file before conversion.
type Document struct {
	Path       string
	Format     Format
	Size       int64
	Hash       string // hex SHA-256 of the file contents
	PageCount  int    // PDF pages or PPTX slides; 0 when unknown
	HasVisuals bool
	HasTables  bool   // PDF text shows grid-like layout
	Text       string // extracted PDF text, used for token estimates
}

// Probe inspects a file: format, size, hash, page count and whether it
// carries images or charts.
func Probe(ctx context.Context, path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnreadable, path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrUnreadable, path)
	}

	hash, err := fileHash(path)
	if err != nil {
		return nil, fmt.Errorf("%w: hashing: %v", ErrUnreadable, err)
	}

	doc := &Document{
		Path:   path,
		Format: DetectFormat(path),
		Size:   info.Size(),
		Hash:   hash,
	}

	switch doc.Format {
	case FormatPDF:
		err = probePDF(ctx, doc)
	case FormatDOCX:
		err = probeZip(doc, "word/media/", "")
	case FormatXLSX:
		err = probeZip(doc, "xl/media/", "xl/charts/")
	case FormatPPTX:
		err = probeZip(doc, "ppt/media/", "ppt/charts/")
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("probe: document",
		"file", filepath.Base(path), "format", doc.Format, "pages", doc.PageCount,
		"visuals", doc.HasVisuals, "tables", doc.HasTables)
	return doc, nil
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func probePDF(ctx context.Context, doc *Document) error {
	f, err := os.Open(doc.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	pctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return fmt.Errorf("%w: pdfcpu read: %v", ErrUnreadable, err)
	}
	doc.PageCount = pctx.PageCount
	doc.HasVisuals = detectImageStreams(pctx)

	text, err := pdfText(ctx, doc.Path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// pdfcpu accepted the file, so a text extraction failure only
		// means there is no usable text layer.
		slog.Debug("probe: no text layer", "file", doc.Path, "error", err)
		return nil
	}
	doc.Text = text
	doc.HasTables = looksTabular(text)
	return nil
}

// detectImageStreams checks if the PDF contains image XObjects.
func detectImageStreams(ctx *model.Context) bool {
	if ctx.Optimize != nil {
		for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
			if len(pdfcpu.ImageObjNrs(ctx, pageNr)) > 0 {
				return true
			}
		}
	}
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}

func pdfText(ctx context.Context, path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}

// looksTabular reports grid-like text: tab or pipe runs, or ruled lines.
func looksTabular(text string) bool {
	tabCount, pipeCount, dashLineCount := 0, 0, 0
	for _, line := range strings.Split(text, "\n") {
		tabCount += strings.Count(line, "\t")
		pipeCount += strings.Count(line, "|")
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > 3 && (strings.Count(trimmed, "-") > len(trimmed)/2 || strings.Count(trimmed, "_") > len(trimmed)/2) {
			dashLineCount++
		}
	}
	return tabCount > 5 || pipeCount > 5 || dashLineCount > 2
}

// probeZip inspects an OOXML container. Embedded images smaller than
// 32px on either side are treated as decoration; any chart counts.
func probeZip(doc *Document, mediaPrefix, chartPrefix string) error {
	r, err := zip.OpenReader(doc.Path)
	if err != nil {
		return fmt.Errorf("%w: opening %s container: %v", ErrUnreadable, doc.Format, err)
	}
	defer r.Close()

	if doc.Format == FormatPPTX {
		doc.PageCount = len(pptxSlideFiles(&r.Reader))
	}

	for _, f := range r.File {
		if chartPrefix != "" && strings.HasPrefix(f.Name, chartPrefix) && strings.HasSuffix(f.Name, ".xml") {
			doc.HasVisuals = true
			return nil
		}
		if !strings.HasPrefix(f.Name, mediaPrefix) {
			continue
		}
		mimeType := mimeFromExt(filepath.Ext(f.Name))
		if mimeType == "" {
			continue
		}
		if !decodableMIME(mimeType) {
			// Vector formats cannot be sized; count them.
			doc.HasVisuals = true
			return nil
		}
		data, err := readZipFile(f)
		if err != nil {
			continue
		}
		if w, h := imageSize(data); w >= 32 && h >= 32 {
			doc.HasVisuals = true
			return nil
		}
	}
	return nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func mimeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".tiff", ".tif":
		return "image/tiff"
	case ".emf":
		return "image/emf"
	case ".wmf":
		return "image/wmf"
	default:
		return ""
	}
}

func decodableMIME(mimeType string) bool {
	switch mimeType {
	case "image/png", "image/jpeg", "image/gif":
		return true
	}
	return false
}

// imageSize returns the width and height of an image from its encoded bytes.
func imageSize(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
