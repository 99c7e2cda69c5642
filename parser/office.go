package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// OfficeRenderer converts office documents to PDF with a headless
// LibreOffice binary.
type OfficeRenderer struct {
	Binary string // defaults to "soffice"
}

func (o *OfficeRenderer) binary() string {
	if o.Binary == "" {
		return "soffice"
	}
	return o.Binary
}

// Available reports whether the converter binary can be found.
func (o *OfficeRenderer) Available() bool {
	_, err := exec.LookPath(o.binary())
	return err == nil
}

// ConvertToPDF writes a PDF rendering of path into outDir and returns its
// path. The command is killed when ctx is done.
func (o *OfficeRenderer) ConvertToPDF(ctx context.Context, path, outDir string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	start := time.Now()

	cmd := exec.CommandContext(ctx, o.binary(), "--headless", "--convert-to", "pdf", path, "--outdir", outDir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s conversion failed: %v: %s",
			ErrUnreadable, o.binary(), err, strings.TrimSpace(stderr.String()))
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	pdfPath := filepath.Join(outDir, base+".pdf")
	if _, err := os.Stat(pdfPath); err != nil {
		return "", fmt.Errorf("%w: converter produced no PDF for %s", ErrUnreadable, filepath.Base(path))
	}
	slog.Info("office: converted to PDF", "file", path, "elapsed", time.Since(start).Round(time.Millisecond))
	return pdfPath, nil
}
