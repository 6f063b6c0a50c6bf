package pdftools

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/phuslu/log"

	"finextract/internal/domain"
)

// Rasterizer renders PDF pages to PNG images with pdftoppm.
type Rasterizer struct {
	bin    string
	runner Runner
}

// NewRasterizer creates a Rasterizer. An empty bin defaults to "pdftoppm".
func NewRasterizer(bin string, runner Runner) *Rasterizer {
	if bin == "" {
		bin = "pdftoppm"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Rasterizer{bin: bin, runner: runner}
}

// Rasterize returns one image per page, ordered by page number (1-indexed).
// Zero rendered pages is reported as domain.ErrNoPages.
func (r *Rasterizer) Rasterize(ctx context.Context, doc []byte, dpi int) ([]domain.PageImage, error) {
	if !LooksLikePDF(doc) {
		return nil, &domain.RasterizationError{Err: domain.ErrEmptyDocument}
	}
	if dpi <= 0 {
		dpi = 150
	}

	tmpDir, err := os.MkdirTemp("", "finx-raster-*")
	if err != nil {
		return nil, &domain.RasterizationError{Err: err}
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			log.Warn().Err(err).Str("dir", tmpDir).Msg("pdftools.Rasterize: failed to remove temp dir")
		}
	}()

	in := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(in, doc, 0o600); err != nil {
		return nil, &domain.RasterizationError{Err: err}
	}

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r <dpi> -png <in.pdf> <tmp/page>
	_, errb, err := r.runner.Run(ctx, r.bin, "-r", strconv.Itoa(dpi), "-png", in, prefix)
	if err != nil {
		if IsNotFound(err) {
			return nil, &domain.RasterizationError{Err: &domain.AvailabilityError{Backend: r.bin, Reason: "binary not found"}}
		}
		return nil, &domain.RasterizationError{Err: fmt.Errorf("%s: %w: %s", r.bin, err, strings.TrimSpace(string(errb)))}
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	if len(matches) == 0 {
		return nil, domain.ErrNoPages
	}
	files := sortPageFiles(matches)

	pages := make([]domain.PageImage, 0, len(files))
	for _, pf := range files {
		data, err := os.ReadFile(pf.path)
		if err != nil {
			return nil, &domain.RasterizationError{Err: fmt.Errorf("reading page %d: %w", pf.number, err)}
		}
		img := domain.PageImage{Number: pf.number, PNG: data}
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			img.Width, img.Height = cfg.Width, cfg.Height
		}
		pages = append(pages, img)
	}

	log.Debug().Int("pages", len(pages)).Int("dpi", dpi).Msg("pdftools.Rasterize: rendered")
	return pages, nil
}

type pageFile struct {
	path   string
	number int
}

// sortPageFiles orders pdftoppm outputs by their numeric suffix. pdftoppm
// zero-pads to the width of the page count, but sorting numerically keeps
// page-10 after page-9 regardless.
func sortPageFiles(paths []string) []pageFile {
	out := make([]pageFile, 0, len(paths))
	for _, p := range paths {
		base := strings.TrimSuffix(filepath.Base(p), ".png")
		idx := strings.LastIndex(base, "-")
		if idx < 0 {
			continue
		}
		n, err := strconv.Atoi(base[idx+1:])
		if err != nil {
			continue
		}
		out = append(out, pageFile{path: p, number: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].number < out[j].number })
	return out
}

// LooksLikePDF reports whether doc starts with the PDF magic header.
func LooksLikePDF(doc []byte) bool {
	head := doc
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}
