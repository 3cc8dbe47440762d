package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// TesseractOCR shells out to the tesseract binary, the same engine the
// hosted OCR wrappers delegate to.
type TesseractOCR struct {
	Binary  string
	Timeout time.Duration
}

// NewTesseractOCR creates the local OCR engine with sane defaults.
func NewTesseractOCR() *TesseractOCR {
	return &TesseractOCR{Binary: "tesseract", Timeout: 30 * time.Second}
}

// ReadFile runs OCR over the file and returns the recognized text.
func (t *TesseractOCR) ReadFile(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Binary, path, "stdout")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract failed: %w (%s)", err, stderr.String())
	}
	return stdout.String(), nil
}

// PopplerRasterizer converts PDF pages to PNG images via pdftoppm.
type PopplerRasterizer struct {
	Binary  string
	Timeout time.Duration
}

// NewPopplerRasterizer creates the PDF rasterizer with sane defaults.
func NewPopplerRasterizer() *PopplerRasterizer {
	return &PopplerRasterizer{Binary: "pdftoppm", Timeout: 60 * time.Second}
}

// RasterizePDF writes one PNG per page into a temporary directory and
// returns the page paths in order. The caller removes them when done.
func (p *PopplerRasterizer) RasterizePDF(ctx context.Context, path string, dpi int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "mailcoach-pdf-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	prefix := filepath.Join(dir, "page")
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Binary, "-png", "-r", strconv.Itoa(dpi), path, prefix)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("pdftoppm failed: %w (%s)", err, stderr.String())
	}

	pages, err := filepath.Glob(prefix + "*.png")
	if err != nil || len(pages) == 0 {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("rasterization produced no pages")
	}
	sort.Strings(pages)
	return pages, nil
}
