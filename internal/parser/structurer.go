package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/phuslu/log"
	"golang.org/x/time/rate"

	"finextract/internal/domain"
	"finextract/internal/port"
)

// StructurerOptions tunes prompt sizing and request pacing.
type StructurerOptions struct {
	Provider          string  // name used in TransportError
	MaxPromptChars    int     // budget for text handed to the model
	WindowChars       int     // smart-truncation window size
	RuleBasedFallback bool    // scan text with RuleExtractor when the model yields nothing
	RequestsPerSecond float64 // 0 disables pacing
	Burst             int
}

// Structurer turns page images and text chunks into fragments using a
// language model.
type Structurer struct {
	model   port.LanguageModel
	limiter *rate.Limiter
	rules   *RuleExtractor
	opts    StructurerOptions
}

// NewStructurer creates a Structurer.
func NewStructurer(model port.LanguageModel, opts StructurerOptions) *Structurer {
	if opts.Provider == "" {
		opts.Provider = "model"
	}
	if opts.MaxPromptChars <= 0 {
		opts.MaxPromptChars = 24000
	}
	if opts.WindowChars <= 0 {
		opts.WindowChars = 2000
	}
	s := &Structurer{model: model, opts: opts, rules: NewRuleExtractor(DefaultCatalog())}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return s
}

// ExtractPage asks the model for the statement figures on one page image.
// It returns the fragment (empty on any error), the raw model output and a
// TransportError or MalformedResponseError.
func (s *Structurer) ExtractPage(ctx context.Context, page domain.PageImage, subject string, totalPages int) (domain.Fragment, string, error) {
	req := port.ModelRequest{
		System: SystemPrompt,
		Prompt: BuildVisionPrompt(subject, page.Number, totalPages),
		Images: [][]byte{page.PNG},
	}
	frag, raw, err := s.call(ctx, req)
	if err != nil {
		log.Debug().Int("page", page.Number).Err(err).Msg("parser.Structurer.ExtractPage: failed")
		return frag, raw, err
	}
	log.Debug().Int("page", page.Number).Int("fields", frag.FieldCount()).Msg("parser.Structurer.ExtractPage: done")
	return frag, raw, nil
}

// StructureText asks the model to structure one extracted text chunk.
// Chunk numbers are 1-indexed. Text longer than the prompt budget is
// smart-truncated. When the model returns nothing usable and rule-based
// fallback is enabled, the text is scanned for statement lines instead.
func (s *Structurer) StructureText(ctx context.Context, text, subject string, chunk, totalChunks int) (domain.Fragment, string, error) {
	cat := DefaultCatalog()
	body := SmartTruncate(text, s.opts.MaxPromptChars, s.opts.WindowChars, cat.Keywords)
	if len(body) < len(text) {
		log.Info().Int("chunk", chunk).Int("chars", len(text)).Int("kept", len(body)).Msg("parser.Structurer.StructureText: truncated")
	}
	req := port.ModelRequest{
		System: SystemPrompt,
		Prompt: BuildTextPrompt(subject, body, chunk, totalChunks),
	}

	frag, raw, err := s.call(ctx, req)

	var transportErr *domain.TransportError
	if errors.As(err, &transportErr) || !s.opts.RuleBasedFallback || !frag.IsEmpty() {
		return frag, raw, err
	}

	ruled := s.rules.Extract(text)
	if ruled.IsEmpty() {
		return frag, raw, err
	}
	log.Info().Int("chunk", chunk).Int("fields", ruled.FieldCount()).AnErr("model_error", err).Msg("parser.Structurer.StructureText: using rule-based extraction")
	return ruled, "[rule-based] " + raw, nil
}

func (s *Structurer) call(ctx context.Context, req port.ModelRequest) (domain.Fragment, string, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return domain.NewFragment(), "", &domain.TransportError{Provider: s.opts.Provider, Err: err}
		}
	}

	resp, err := s.model.Generate(ctx, req)
	if err != nil {
		return domain.NewFragment(), "", &domain.TransportError{Provider: s.opts.Provider, Err: err}
	}
	if strings.TrimSpace(resp.Text) == "" {
		return domain.NewFragment(), "", &domain.MalformedResponseError{Err: fmt.Errorf("empty response from %s", resp.Model)}
	}

	frag, err := ParseFragment(resp.Text)
	return frag, resp.Text, err
}
