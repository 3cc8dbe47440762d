// Package extract turns email attachments (images, PDFs, audio) into plain
// text. Every branch degrades to an empty string plus a logged error; no
// extraction failure is ever fatal to a processing batch.
package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Kind is the coarse attachment category used for dispatch.
type Kind string

const (
	KindImage   Kind = "image"
	KindPDF     Kind = "pdf"
	KindAudio   Kind = "audio"
	KindUnknown Kind = "unknown"
)

// VisionOCR extracts text from image bytes via a vision-capable model.
type VisionOCR interface {
	ReadImageText(ctx context.Context, imageData []byte, mimeType string) (string, error)
}

// LocalOCR extracts text from an image file with a local engine.
type LocalOCR interface {
	ReadFile(ctx context.Context, path string) (string, error)
}

// SpeechToText transcribes an audio file.
type SpeechToText interface {
	Transcribe(ctx context.Context, filePath string) (string, error)
}

// Rasterizer converts a PDF into one image file per page.
type Rasterizer interface {
	RasterizePDF(ctx context.Context, path string, dpi int) ([]string, error)
}

const (
	defaultPDFDPI = 300
	retryPDFDPI   = 200
)

// Extractor dispatches attachments to the right backend with fallbacks.
type Extractor struct {
	vision VisionOCR
	local  LocalOCR
	stt    SpeechToText
	raster Rasterizer
	logger zerolog.Logger
}

// NewExtractor wires the extraction backends together.
func NewExtractor(vision VisionOCR, local LocalOCR, stt SpeechToText, raster Rasterizer, logger zerolog.Logger) *Extractor {
	return &Extractor{
		vision: vision,
		local:  local,
		stt:    stt,
		raster: raster,
		logger: logger.With().Str("component", "extract").Logger(),
	}
}

// Extract returns the text content of the file at path. declaredKind is the
// content type reported by the mail server; the file extension is consulted
// when it is missing or unhelpful. Never returns an error: failures degrade
// to "".
func (e *Extractor) Extract(ctx context.Context, path, declaredKind string) string {
	if _, err := os.Stat(path); err != nil {
		e.logger.Error().Err(err).Str("path", path).Msg("attachment file missing")
		return ""
	}

	switch DetectKind(path, declaredKind) {
	case KindImage:
		return e.extractImage(ctx, path)
	case KindPDF:
		return e.extractPDF(ctx, path)
	case KindAudio:
		return e.extractAudio(ctx, path)
	default:
		// Best-effort local OCR on the raw bytes.
		text, err := e.local.ReadFile(ctx, path)
		if err != nil {
			e.logger.Warn().Err(err).Str("path", path).Msg("local OCR failed on unrecognized attachment")
			return ""
		}
		return text
	}
}

func (e *Extractor) extractImage(ctx context.Context, path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		e.logger.Error().Err(err).Str("path", path).Msg("failed to read image")
		return ""
	}

	text, err := e.vision.ReadImageText(ctx, data, mimeTypeFor(path))
	if err == nil {
		return text
	}
	e.logger.Warn().Err(err).Str("path", path).Msg("vision OCR failed, falling back to local OCR")

	text, err = e.local.ReadFile(ctx, path)
	if err != nil {
		e.logger.Error().Err(err).Str("path", path).Msg("local OCR fallback failed")
		return ""
	}
	return text
}

func (e *Extractor) extractPDF(ctx context.Context, path string) string {
	pages, err := e.raster.RasterizePDF(ctx, path, defaultPDFDPI)
	if err != nil {
		e.logger.Warn().Err(err).Str("path", path).Int("dpi", retryPDFDPI).Msg("rasterization failed, retrying at lower resolution")
		pages, err = e.raster.RasterizePDF(ctx, path, retryPDFDPI)
		if err != nil {
			e.logger.Error().Err(err).Str("path", path).Msg("pdf rasterization failed")
			return ""
		}
	}
	defer cleanupPages(pages)

	var parts []string
	for _, page := range pages {
		if text := e.extractImage(ctx, page); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

func (e *Extractor) extractAudio(ctx context.Context, path string) string {
	text, err := e.stt.Transcribe(ctx, path)
	if err != nil {
		e.logger.Error().Err(err).Str("path", path).Msg("transcription failed")
		return ""
	}
	return text
}

func cleanupPages(pages []string) {
	for _, page := range pages {
		_ = os.Remove(page)
	}
	if len(pages) > 0 {
		_ = os.Remove(filepath.Dir(pages[0]))
	}
}

var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".bmp": {}, ".gif": {}, ".webp": {},
}

var audioExtensions = map[string]struct{}{
	".wav": {}, ".mp3": {}, ".m4a": {}, ".flac": {}, ".ogg": {},
}

// DetectKind resolves the attachment kind from the declared content type
// first and the file extension second.
func DetectKind(path, declaredKind string) Kind {
	declared := strings.ToLower(strings.TrimSpace(declaredKind))
	switch {
	case strings.HasPrefix(declared, "image/"):
		return KindImage
	case declared == "application/pdf":
		return KindPDF
	case strings.HasPrefix(declared, "audio/"):
		return KindAudio
	}

	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := imageExtensions[ext]; ok {
		return KindImage
	}
	if ext == ".pdf" {
		return KindPDF
	}
	if _, ok := audioExtensions[ext]; ok {
		return KindAudio
	}
	return KindUnknown
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
