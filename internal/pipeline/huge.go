package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"finextract/internal/fanout"
	"finextract/internal/pdftools"
)

type partOutcome struct {
	results []fanout.Result
	text    string
	backend string
	err     error
}

// runHuge splits the document into sub-documents and processes them on a
// bounded worker pool. A failed part is recorded; the run fails only when
// every part failed.
func (p *Pipeline) runHuge(ctx context.Context, doc []byte, subject string, tr *tracker, res *Result) error {
	tr.report(0, "splitting document")
	parts, err := p.deps.Splitter.Split(ctx, doc, p.cfg.MaxPagesPerChunk)
	if err != nil {
		return fmt.Errorf("splitting document: %w", err)
	}
	ranges := pdftools.Ranges(res.Pages, p.cfg.MaxPagesPerChunk)

	outcomes := make([]partOutcome, len(parts))
	var (
		mu        sync.Mutex
		pagesDone int
	)
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.BatchWorkers)

	for i, part := range parts {
		g.Go(func() error {
			outcomes[i] = p.processPart(ctx, i+1, part, subject)

			mu.Lock()
			pagesDone += partPages(ranges, i, res.Pages, len(parts))
			done := pagesDone
			mu.Unlock()
			tr.report(done, fmt.Sprintf("processed part %d of %d", i+1, len(parts)))
			return nil
		})
	}
	_ = g.Wait()

	var (
		o    outcome
		errs []error
	)
	for i, po := range outcomes {
		if po.err != nil {
			res.Diagnostics.FailedParts = append(res.Diagnostics.FailedParts, PartFailure{Part: i + 1, Error: po.err.Error()})
			errs = append(errs, fmt.Errorf("part %d: %w", i+1, po.err))
			continue
		}
		if res.Diagnostics.Backend == "" {
			res.Diagnostics.Backend = po.backend
		}
		o.add(po.results, po.text)
	}
	if len(parts) > 0 && len(errs) == len(parts) {
		return fmt.Errorf("all %d document parts failed: %w", len(parts), errors.Join(errs...))
	}

	res.Statement = o.finish(&res.Diagnostics)
	return nil
}

func (p *Pipeline) processPart(ctx context.Context, n int, part []byte, subject string) partOutcome {
	ext, err := p.deps.Text.Extract(ctx, part)
	if err != nil {
		log.Warn().Int("part", n).Err(err).Msg("pipeline.processPart: text extraction failed")
		return partOutcome{err: err}
	}
	results := p.structureChunks(ctx, ext.Text, subject, nil)
	return partOutcome{results: results, text: ext.Text, backend: ext.Backend}
}

// partPages is the number of source pages part i covers. The split follows
// pdftools.Ranges; when the counts disagree the pages are spread evenly.
func partPages(ranges []pdftools.PageRange, i, pages, parts int) int {
	if len(ranges) == parts {
		return ranges[i].To - ranges[i].From + 1
	}
	if parts == 0 {
		return 0
	}
	n := pages / parts
	if i == parts-1 {
		n += pages % parts
	}
	return n
}
