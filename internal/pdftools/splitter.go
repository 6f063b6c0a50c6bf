package pdftools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/phuslu/log"

	"finextract/internal/domain"
	"finextract/internal/port"
)

// Splitter cuts a PDF into page-range sub-documents with qpdf.
type Splitter struct {
	bin     string
	runner  Runner
	counter port.PageCounter
}

// NewSplitter creates a Splitter. An empty bin defaults to "qpdf".
func NewSplitter(bin string, runner Runner, counter port.PageCounter) *Splitter {
	if bin == "" {
		bin = "qpdf"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if counter == nil {
		counter = NewPageCounter()
	}
	return &Splitter{bin: bin, runner: runner, counter: counter}
}

// PageRange is an inclusive, 1-indexed page span.
type PageRange struct {
	From, To int
}

// Ranges partitions pages into consecutive spans of at most maxPages.
func Ranges(pages, maxPages int) []PageRange {
	if pages <= 0 {
		return nil
	}
	if maxPages <= 0 {
		maxPages = pages
	}
	var out []PageRange
	for from := 1; from <= pages; from += maxPages {
		to := from + maxPages - 1
		if to > pages {
			to = pages
		}
		out = append(out, PageRange{From: from, To: to})
	}
	return out
}

// Split returns sub-documents of at most maxPages pages each, in page order.
func (s *Splitter) Split(ctx context.Context, doc []byte, maxPages int) ([][]byte, error) {
	pages, err := s.counter.CountPages(doc)
	if err != nil {
		log.Warn().Err(err).Msg("pdftools.Split: page count unavailable, letting qpdf choose ranges")
		return s.splitUncounted(ctx, doc, maxPages)
	}
	if pages == 0 {
		return nil, domain.ErrNoPages
	}
	ranges := Ranges(pages, maxPages)
	if len(ranges) == 1 {
		return [][]byte{doc}, nil
	}

	tmpDir, err := os.MkdirTemp("", "finx-split-*")
	if err != nil {
		return nil, fmt.Errorf("pdftools.Split: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	in := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(in, doc, 0o600); err != nil {
		return nil, fmt.Errorf("pdftools.Split: %w", err)
	}

	parts := make([][]byte, 0, len(ranges))
	for i, r := range ranges {
		out := filepath.Join(tmpDir, fmt.Sprintf("part-%03d.pdf", i+1))
		// qpdf --empty --pages in.pdf 1-50 -- out.pdf
		_, errb, err := s.runner.Run(ctx, s.bin, "--empty", "--pages", in, fmt.Sprintf("%d-%d", r.From, r.To), "--", out)
		if err != nil {
			if IsNotFound(err) {
				return nil, &domain.AvailabilityError{Backend: s.bin, Reason: "binary not found"}
			}
			return nil, fmt.Errorf("pdftools.Split: pages %d-%d: %w: %s", r.From, r.To, err, strings.TrimSpace(string(errb)))
		}
		data, err := os.ReadFile(out)
		if err != nil {
			return nil, fmt.Errorf("pdftools.Split: reading part %d: %w", i+1, err)
		}
		parts = append(parts, data)
	}
	return parts, nil
}

// splitUncounted lets qpdf work out the page ranges itself, for documents
// whose page tree could not be read. qpdf names the parts
// part-<first>-<last>.pdf.
func (s *Splitter) splitUncounted(ctx context.Context, doc []byte, maxPages int) ([][]byte, error) {
	if maxPages <= 0 {
		return [][]byte{doc}, nil
	}

	tmpDir, err := os.MkdirTemp("", "finx-split-*")
	if err != nil {
		return nil, fmt.Errorf("pdftools.Split: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	in := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(in, doc, 0o600); err != nil {
		return nil, fmt.Errorf("pdftools.Split: %w", err)
	}

	// qpdf --split-pages=50 in.pdf part.pdf
	_, errb, err := s.runner.Run(ctx, s.bin, fmt.Sprintf("--split-pages=%d", maxPages), in, filepath.Join(tmpDir, "part.pdf"))
	if err != nil {
		if IsNotFound(err) {
			return nil, &domain.AvailabilityError{Backend: s.bin, Reason: "binary not found"}
		}
		return nil, fmt.Errorf("pdftools.Split: %w: %s", err, strings.TrimSpace(string(errb)))
	}

	files, err := filepath.Glob(filepath.Join(tmpDir, "part-*.pdf"))
	if err != nil {
		return nil, fmt.Errorf("pdftools.Split: %w", err)
	}
	if len(files) == 0 {
		return nil, domain.ErrNoPages
	}
	sort.Slice(files, func(i, j int) bool { return firstPage(files[i]) < firstPage(files[j]) })

	parts := make([][]byte, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("pdftools.Split: reading %s: %w", filepath.Base(f), err)
		}
		parts = append(parts, data)
	}
	return parts, nil
}

// firstPage reads the starting page from a qpdf part name. qpdf zero-pads the
// numbers only to the width of the page count, so names do not sort lexically.
func firstPage(path string) int {
	name := strings.TrimPrefix(filepath.Base(path), "part-")
	if i := strings.IndexAny(name, "-."); i >= 0 {
		name = name[:i]
	}
	n, err := strconv.Atoi(name)
	if err != nil {
		return 0
	}
	return n
}
