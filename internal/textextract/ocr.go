package textextract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/phuslu/log"

	"finextract/internal/domain"
	"finextract/internal/pdftools"
	"finextract/internal/port"
)

// BackendOCR is the name of the rasterize-and-recognize backend.
const BackendOCR = "ocr"

// minShortSide is the page size below which images are upscaled before
// recognition.
const minShortSide = 1000

// OCROptions configures an OCRBackend.
type OCROptions struct {
	Tesseract string
	Language  string
	PSM       int
	DPI       int
	Disabled  bool
}

// OCRBackend rasterizes every page, enhances it and runs tesseract on it.
// A page that fails recognition is skipped with a warning.
type OCRBackend struct {
	raster port.Rasterizer
	runner pdftools.Runner
	opts   OCROptions
}

// NewOCRBackend creates an OCRBackend.
func NewOCRBackend(raster port.Rasterizer, runner pdftools.Runner, opts OCROptions) *OCRBackend {
	if opts.Tesseract == "" {
		opts.Tesseract = "tesseract"
	}
	if opts.Language == "" {
		opts.Language = "eng"
	}
	if opts.DPI <= 0 {
		opts.DPI = 300
	}
	if runner == nil {
		runner = pdftools.ExecRunner{}
	}
	return &OCRBackend{raster: raster, runner: runner, opts: opts}
}

func (b *OCRBackend) Name() string { return BackendOCR }

func (b *OCRBackend) Extract(ctx context.Context, doc []byte) (*domain.TextExtraction, error) {
	if b.opts.Disabled {
		return nil, &domain.AvailabilityError{Backend: BackendOCR, Reason: "ocr is disabled"}
	}

	pages, err := b.raster.Rasterize(ctx, doc, b.opts.DPI)
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "finx-ocr-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	res := &domain.TextExtraction{Pages: len(pages), Backend: BackendOCR}
	texts := make([]string, 0, len(pages))
	recognized := 0
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := b.recognize(ctx, tmpDir, page)
		if err != nil {
			if pdftools.IsNotFound(err) {
				return nil, &domain.AvailabilityError{Backend: BackendOCR, Reason: b.opts.Tesseract + " not found"}
			}
			log.Warn().Int("page", page.Number).Err(err).Msg("textextract.OCR: page failed, skipping")
			res.Warnings = append(res.Warnings, fmt.Sprintf("page %d: %v", page.Number, err))
			texts = append(texts, "")
			continue
		}
		recognized++
		texts = append(texts, text)
	}
	if recognized == 0 && len(pages) > 0 {
		return nil, fmt.Errorf("no page could be recognized (%d pages)", len(pages))
	}
	res.Text = strings.Join(texts, "\f")
	return res, nil
}

func (b *OCRBackend) recognize(ctx context.Context, dir string, page domain.PageImage) (string, error) {
	enhanced, err := Enhance(page.PNG)
	if err != nil {
		return "", fmt.Errorf("enhancing image: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("page-%d.png", page.Number))
	if err := os.WriteFile(path, enhanced, 0o600); err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(path) }()

	args := []string{path, "stdout", "-l", b.opts.Language}
	if b.opts.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(b.opts.PSM))
	}
	out, errb, err := b.runner.Run(ctx, b.opts.Tesseract, args...)
	if err != nil {
		if pdftools.IsNotFound(err) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(errb)))
	}
	return string(out), nil
}

// Enhance prepares a page image for recognition: grayscale, contrast boost,
// sharpening and, for small pages, upscaling so the shorter side reaches
// 1000px. The result is PNG-encoded.
func Enhance(pngData []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, err
	}
	out := enhanceImage(img)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func enhanceImage(img image.Image) image.Image {
	gray := imaging.Grayscale(img)
	contrasted := imaging.AdjustContrast(gray, 30)
	sharp := imaging.Sharpen(contrasted, 1.0)

	b := sharp.Bounds()
	w, h := b.Dx(), b.Dy()
	short := w
	if h < short {
		short = h
	}
	if short > 0 && short < minShortSide {
		scale := float64(minShortSide) / float64(short)
		return imaging.Resize(sharp, int(float64(w)*scale+0.5), int(float64(h)*scale+0.5), imaging.Lanczos)
	}
	return sharp
}
