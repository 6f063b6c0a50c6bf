// Package pipeline turns a PDF filing into one merged financial statement,
// choosing a processing strategy from the document's page count.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phuslu/log"

	"finextract/internal/config"
	"finextract/internal/domain"
	"finextract/internal/pdftools"
	"finextract/internal/port"
)

// Structurer turns page images and text chunks into fragments.
type Structurer interface {
	ExtractPage(ctx context.Context, page domain.PageImage, subject string, totalPages int) (domain.Fragment, string, error)
	StructureText(ctx context.Context, text, subject string, chunk, totalChunks int) (domain.Fragment, string, error)
}

// Deps are the collaborators a Pipeline is built from. Async is optional;
// without it medium-sized documents go through page-image extraction.
type Deps struct {
	Counter    port.PageCounter
	Text       port.TextBackend
	Rasterizer port.Rasterizer
	Splitter   port.DocumentSplitter
	Async      port.AsyncAnalyzer
	Structurer Structurer
}

// Result is the outcome of one run.
type Result struct {
	Statement   domain.Fragment           `json:"statement"`
	Summary     string                    `json:"summary"`
	Strategy    domain.ExtractionStrategy `json:"strategy"`
	Pages       int                       `json:"pages"`
	Diagnostics Diagnostics               `json:"diagnostics"`
}

// Pipeline runs extractions. It holds no per-run state and is safe for
// concurrent use.
type Pipeline struct {
	deps Deps
	cfg  config.PipelineConfig
}

// New creates a Pipeline. Zero config values fall back to defaults.
func New(deps Deps, cfg config.PipelineConfig) *Pipeline {
	if cfg.SmallMaxPages <= 0 {
		cfg.SmallMaxPages = DefaultSmallMaxPages
	}
	if cfg.LargeMaxPages <= 0 {
		cfg.LargeMaxPages = DefaultLargeMaxPages
	}
	if cfg.MaxPagesPerChunk <= 0 {
		cfg.MaxPagesPerChunk = 50
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 3
	}
	if cfg.VisionDPI <= 0 {
		cfg.VisionDPI = 200
	}
	if cfg.ChunkChars <= 0 {
		cfg.ChunkChars = 12000
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 2 * time.Second
	}
	return &Pipeline{deps: deps, cfg: cfg}
}

// Run extracts the merged statement from doc. Page-level failures are
// absorbed and reported in the diagnostics; an error is returned only when
// the document as a whole cannot be processed. Progress already reported
// stays reported.
func (p *Pipeline) Run(ctx context.Context, doc []byte, documentID, subject string, progress ProgressFunc) (*Result, error) {
	if len(doc) == 0 {
		return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrEmptyDocument)
	}

	pages := p.countPages(doc, documentID)
	strategy := SelectStrategy(pages, Thresholds{SmallMaxPages: p.cfg.SmallMaxPages, LargeMaxPages: p.cfg.LargeMaxPages})
	tr := newTracker(progress, pages)
	tr.report(0, fmt.Sprintf("starting %s extraction of %d pages", strategy, pages))

	log.Info().Str("document_id", documentID).Str("subject", subject).Int("pages", pages).Str("strategy", string(strategy)).Msg("pipeline.Run: starting")
	start := time.Now()

	res := &Result{Strategy: strategy, Pages: pages}
	var err error
	switch strategy {
	case domain.StrategySmall:
		err = p.runSmall(ctx, doc, subject, tr, res)
	case domain.StrategyLargeAsync:
		err = p.runLarge(ctx, doc, documentID, subject, tr, res)
	default:
		err = p.runHuge(ctx, doc, subject, tr, res)
	}
	if err != nil {
		log.Error().Str("document_id", documentID).Str("strategy", string(strategy)).Err(err).Msg("pipeline.Run: failed")
		return nil, wrapDocumentError(documentID, err)
	}

	res.Summary = summarize(res)
	tr.report(pages, "completed")
	log.Info().Str("document_id", documentID).Int("fields", res.Statement.FieldCount()).Int("failed_units", len(res.Diagnostics.FailedUnits)).Dur("elapsed", time.Since(start)).Msg("pipeline.Run: completed")
	return res, nil
}

// countPages returns the exact page count, or a size-based estimate when the
// document cannot be parsed.
func (p *Pipeline) countPages(doc []byte, documentID string) int {
	if p.deps.Counter != nil {
		n, err := p.deps.Counter.CountPages(doc)
		if err == nil && n > 0 {
			return n
		}
		log.Warn().Str("document_id", documentID).Err(err).Msg("pipeline.countPages: falling back to size estimate")
	}
	return pdftools.EstimatePages(len(doc))
}

func wrapDocumentError(documentID string, err error) error {
	var rErr *domain.RasterizationError
	if errors.As(err, &rErr) && rErr.DocumentID == "" {
		rErr.DocumentID = documentID
	}
	return fmt.Errorf("document %s: %w", documentID, err)
}
