package pipeline

import (
	"context"
	"fmt"

	"finextract/internal/domain"
	"finextract/internal/fanout"
	"finextract/internal/parser"
)

// structureChunks splits page-separated text into chunks and structures them
// concurrently. onProgress receives (chunks done, chunks total).
func (p *Pipeline) structureChunks(ctx context.Context, text, subject string, onProgress func(done, total int)) []fanout.Result {
	chunks := parser.ChunkText(text, p.cfg.ChunkChars)
	units := make([]fanout.Unit[string], len(chunks))
	for i, c := range chunks {
		units[i] = fanout.Unit[string]{Number: i + 1, Input: c}
	}
	total := len(units)

	return fanout.Run(ctx, units, func(ctx context.Context, u fanout.Unit[string]) (domain.Fragment, string, error) {
		return p.deps.Structurer.StructureText(ctx, u.Input, subject, u.Number, total)
	}, fanout.Options{
		MaxConcurrency: p.cfg.PageConcurrency,
		ProgressEvery:  p.cfg.ProgressInterval,
		Progress:       onProgress,
		Label:          "chunk",
	})
}

func chunkMessage(done, total int) string {
	return fmt.Sprintf("structured %d of %d text chunks", done, total)
}
