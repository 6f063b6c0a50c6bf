package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/phuslu/log"

	"finextract/internal/domain"
	"finextract/internal/fanout"
)

// runLarge uses managed async analysis when it is configured and page-image
// extraction otherwise.
func (p *Pipeline) runLarge(ctx context.Context, doc []byte, documentID, subject string, tr *tracker, res *Result) error {
	if p.deps.Async != nil {
		err := p.runAsync(ctx, doc, documentID, subject, tr, res)
		var avail *domain.AvailabilityError
		if !errors.As(err, &avail) {
			return err
		}
		log.Info().Str("document_id", documentID).Str("reason", avail.Reason).Msg("pipeline.runLarge: async analysis unavailable, using page images")
	}
	return p.runVision(ctx, doc, subject, tr, res)
}

func (p *Pipeline) runAsync(ctx context.Context, doc []byte, documentID, subject string, tr *tracker, res *Result) error {
	tr.report(0, "running document analysis")
	ext, err := p.deps.Async.Analyze(ctx, doc, documentID)
	if err != nil {
		return err
	}
	res.Diagnostics.Backend = ext.Backend
	res.Diagnostics.Warnings = ext.Warnings

	results := p.structureChunks(ctx, ext.Text, subject, func(done, total int) {
		tr.scaled(done, total, chunkMessage(done, total))
	})

	var o outcome
	o.add(results, ext.Text)
	res.Statement = o.finish(&res.Diagnostics)
	return nil
}

func (p *Pipeline) runVision(ctx context.Context, doc []byte, subject string, tr *tracker, res *Result) error {
	tr.report(0, "rendering pages")
	images, err := p.deps.Rasterizer.Rasterize(ctx, doc, p.cfg.VisionDPI)
	if err != nil {
		var rErr *domain.RasterizationError
		if !errors.As(err, &rErr) {
			err = &domain.RasterizationError{Err: err}
		}
		return err
	}
	res.Diagnostics.Backend = "vision"

	total := len(images)
	units := make([]fanout.Unit[domain.PageImage], total)
	for i, img := range images {
		units[i] = fanout.Unit[domain.PageImage]{Number: img.Number, Input: img}
	}

	results := fanout.Run(ctx, units, func(ctx context.Context, u fanout.Unit[domain.PageImage]) (domain.Fragment, string, error) {
		return p.deps.Structurer.ExtractPage(ctx, u.Input, subject, total)
	}, fanout.Options{
		MaxConcurrency: p.cfg.PageConcurrency,
		ProgressEvery:  p.cfg.ProgressInterval,
		Progress: func(done, n int) {
			tr.scaled(done, n, fmt.Sprintf("extracted %d of %d pages", done, n))
		},
		Label: "page",
	})

	var o outcome
	o.add(results, "")
	res.Statement = o.finish(&res.Diagnostics)
	return nil
}
