package parser

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/gen2brain/go-fitz"
)

// FitzRenderer rasterises PDF pages with MuPDF.
type FitzRenderer struct{}

// RenderPages renders every page of a PDF at the given DPI, in page order.
func (FitzRenderer) RenderPages(ctx context.Context, path string, dpi int) ([]image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening PDF for rendering: %v", ErrUnreadable, err)
	}
	defer doc.Close()

	n := doc.NumPage()
	pages := make([]image.Image, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(i, float64(dpi))
		if err != nil {
			return nil, fmt.Errorf("%w: rendering page %d: %v", ErrUnreadable, i+1, err)
		}
		pages = append(pages, img)
	}
	slog.Debug("render: pages rendered", "file", path, "pages", n, "dpi", dpi)
	return pages, nil
}
