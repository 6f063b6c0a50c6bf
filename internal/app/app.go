// Package app assembles the extraction pipeline from configuration.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/phuslu/log"

	"finextract/internal/config"
	"finextract/internal/parser"
	"finextract/internal/parser/claude"
	"finextract/internal/parser/gemini"
	"finextract/internal/parser/ollama"
	"finextract/internal/parser/openai"
	"finextract/internal/pdftools"
	"finextract/internal/pipeline"
	"finextract/internal/port"
	"finextract/internal/textextract"
)

var registerOnce sync.Once

// RegisterProviders makes every built-in model provider available to
// parser.NewModel. It is safe to call more than once.
func RegisterProviders() {
	registerOnce.Do(func() {
		parser.RegisterProvider("openai", func(cfg *config.ModelProviderConfig) (port.LanguageModel, error) {
			return openai.NewModel(cfg), nil
		})
		parser.RegisterProvider("ollama", func(cfg *config.ModelProviderConfig) (port.LanguageModel, error) {
			return ollama.NewModel(cfg), nil
		})
		parser.RegisterProvider("claude", func(cfg *config.ModelProviderConfig) (port.LanguageModel, error) {
			return claude.NewModel(cfg), nil
		})
		parser.RegisterProvider("gemini", func(cfg *config.ModelProviderConfig) (port.LanguageModel, error) {
			return gemini.NewModel(cfg)
		})
	})
}

// BuildPipeline wires the text backends, rasterizer, splitter, model chain
// and, when Textract async analysis is enabled and storage is given, the
// async analyzer.
func BuildPipeline(ctx context.Context, cfg *config.Config, storage port.ObjectStorage) (*pipeline.Pipeline, error) {
	RegisterProviders()

	model, err := parser.NewModelChain(&cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("building model chain: %w", err)
	}
	structurer := parser.NewStructurer(model, parser.StructurerOptions{
		Provider:          cfg.Model.Primary.Provider,
		MaxPromptChars:    cfg.Pipeline.MaxPromptChars,
		WindowChars:       cfg.Pipeline.WindowChars,
		RuleBasedFallback: cfg.Pipeline.RuleBasedFallback,
		RequestsPerSecond: cfg.Model.RequestsPerSecond,
		Burst:             cfg.Model.Burst,
	})

	runner := pdftools.ExecRunner{}
	counter := pdftools.NewPageCounter()
	raster := pdftools.NewRasterizer(cfg.OCR.Pdftoppm, runner)
	splitter := pdftools.NewSplitter(cfg.OCR.Qpdf, runner, counter)

	backends := []port.TextBackend{textextract.NewLayoutBackend()}

	var async port.AsyncAnalyzer
	if cfg.Textract.Enabled {
		client, err := textextract.NewTextractClient(ctx, &cfg.Textract, &cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("building textract client: %w", err)
		}
		backends = append(backends, textextract.NewTextractBackend(client))

		if cfg.Textract.Async && storage != nil {
			async = textextract.NewAsyncAnalyzer(client, storage, textextract.AsyncOptions{
				Bucket:       cfg.S3.Staging(),
				Prefix:       cfg.Pipeline.StagingPrefix,
				PollInterval: cfg.Pipeline.PollInterval,
				Timeout:      cfg.Pipeline.PollTimeout,
			})
		}
	}

	backends = append(backends, textextract.NewOCRBackend(raster, runner, textextract.OCROptions{
		Tesseract: cfg.OCR.Tesseract,
		Language:  cfg.OCR.Language,
		PSM:       cfg.OCR.PSM,
		DPI:       cfg.Pipeline.OCRDPI,
		Disabled:  !cfg.OCR.Enabled,
	}))

	names := make([]string, 0, len(backends))
	for _, b := range backends {
		names = append(names, b.Name())
	}
	log.Info().
		Strs("text_backends", names).
		Bool("async_analysis", async != nil).
		Int("model_providers", len(cfg.Model.Providers())).
		Msg("app.BuildPipeline: pipeline assembled")

	return pipeline.New(pipeline.Deps{
		Counter:    counter,
		Text:       textextract.NewChain(cfg.Pipeline.MinTextChars, backends...),
		Rasterizer: raster,
		Splitter:   splitter,
		Async:      async,
		Structurer: structurer,
	}, cfg.Pipeline), nil
}
