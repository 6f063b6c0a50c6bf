package pipeline

import (
	"context"
	"errors"

	"finextract/internal/domain"
	"finextract/internal/fanout"
)

// runSmall extracts the text in one pass and structures it with one model
// call. A transport failure here is fatal: there is nothing else to try.
func (p *Pipeline) runSmall(ctx context.Context, doc []byte, subject string, tr *tracker, res *Result) error {
	tr.report(0, "extracting text")
	ext, err := p.deps.Text.Extract(ctx, doc)
	if err != nil {
		return err
	}
	res.Diagnostics.Backend = ext.Backend
	res.Diagnostics.Warnings = ext.Warnings

	tr.report(0, "structuring text")
	frag, raw, err := p.deps.Structurer.StructureText(ctx, ext.Text, subject, 1, 1)
	var transport *domain.TransportError
	if errors.As(err, &transport) {
		return err
	}

	var o outcome
	result := fanout.Result{Number: 1, Fragment: frag, Raw: raw, Err: err}
	if err != nil {
		result.Fragment = domain.NewFragment()
	}
	o.add([]fanout.Result{result}, ext.Text)
	res.Statement = o.finish(&res.Diagnostics)
	return nil
}
