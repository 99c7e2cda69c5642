package chunker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"math"

	"github.com/brunobiangulo/aiworkflows/parser"
)

// spreadTolerance is the relative tolerance used when comparing page
// dimensions for double-page spread detection.
const spreadTolerance = 1e-2

// PageRenderer renders every page of a document to an image.
type PageRenderer interface {
	RenderPages(ctx context.Context, path string, dpi int) ([]image.Image, error)
}

// PageImage is one rendered page, or one half of a split spread.
type PageImage struct {
	Page  int // 1-based source page
	Image image.Image
}

// PageUnits renders the document at path and returns one PNG image unit per
// page, splitting double-page spreads into left and right halves. A document
// that renders to zero pages is reported as unreadable.
func PageUnits(ctx context.Context, r PageRenderer, path string, dpi int) ([]Unit, error) {
	images, err := r.RenderPages(ctx, path, dpi)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, parser.ErrUnreadable):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: rendering pages: %v", parser.ErrUnreadable, err)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: document has no renderable pages", parser.ErrUnreadable)
	}

	pages := SplitSpreads(images)
	slog.Info("chunker: page units ready", "file", path, "pages", len(images), "units", len(pages))

	units := make([]Unit, 0, len(pages))
	for i, p := range pages {
		var buf bytes.Buffer
		if err := png.Encode(&buf, p.Image); err != nil {
			return nil, fmt.Errorf("%w: encoding page %d: %v", parser.ErrUnreadable, p.Page, err)
		}
		units = append(units, Unit{
			Ordinal:  i,
			Page:     p.Page,
			Image:    buf.Bytes(),
			MIMEType: "image/png",
		})
	}
	return units, nil
}

// SplitSpreads returns the pages in reading order, with each double-page
// spread replaced by its left half followed by its right half.
func SplitSpreads(images []image.Image) []PageImage {
	if len(images) == 0 {
		return nil
	}

	minW, minH := math.MaxInt, math.MaxInt
	for _, img := range images {
		b := img.Bounds()
		minW = min(minW, b.Dx())
		minH = min(minH, b.Dy())
	}

	out := make([]PageImage, 0, len(images))
	for i, img := range images {
		b := img.Bounds()
		if !IsSpread(b.Dx(), b.Dy(), minW, minH) {
			out = append(out, PageImage{Page: i + 1, Image: img})
			continue
		}
		mid := b.Min.X + b.Dx()/2
		left := crop(img, image.Rect(b.Min.X, b.Min.Y, mid, b.Max.Y))
		right := crop(img, image.Rect(mid, b.Min.Y, b.Max.X, b.Max.Y))
		out = append(out, PageImage{Page: i + 1, Image: left}, PageImage{Page: i + 1, Image: right})
	}
	return out
}

// IsSpread reports whether a page of the given size is a double-page spread
// in a document whose smallest page is minW x minH.
func IsSpread(width, height, minW, minH int) bool {
	return approxEqual(float64(height), float64(minH)) &&
		approxEqual(float64(width), float64(2*minW))
}

func approxEqual(a, b float64) bool {
	m := math.Max(math.Abs(a), math.Abs(b))
	if m == 0 {
		return true
	}
	return math.Abs(a-b)/m < spreadTolerance
}

func crop(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}
