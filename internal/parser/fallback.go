package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"

	"finextract/internal/port"
)

// minPause is the shortest time a rate-limited model is left alone.
const minPause = time.Second

// FallbackModel asks each model in turn until one answers. A model that
// reports a rate limit is paused for its Retry-After and skipped until then.
// It implements port.LanguageModel.
type FallbackModel struct {
	models []port.LanguageModel
	names  []string
	now    func() time.Time

	mu     sync.Mutex
	paused []time.Time // per model; zero means available
}

// NewFallbackModel creates a FallbackModel. names label the models in logs
// and must line up with models.
func NewFallbackModel(models []port.LanguageModel, names []string) *FallbackModel {
	return &FallbackModel{
		models: models,
		names:  names,
		now:    time.Now,
		paused: make([]time.Time, len(models)),
	}
}

// pausedUntil returns the end of model i's pause, or the zero time when the
// model may be called at t.
func (f *FallbackModel) pausedUntil(i int, t time.Time) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	until := f.paused[i]
	if !until.IsZero() && !t.Before(until) {
		f.paused[i] = time.Time{}
		return time.Time{}
	}
	return until
}

func (f *FallbackModel) pause(i int, until time.Time) {
	f.mu.Lock()
	f.paused[i] = until
	f.mu.Unlock()
}

func (f *FallbackModel) Generate(ctx context.Context, req port.ModelRequest) (*port.ModelResponse, error) {
	start := f.now()

	var (
		failures []string
		lastErr  error // last failure that was not a rate limit
		resume   time.Time
	)
	wait := func(t time.Time) {
		if resume.IsZero() || t.Before(resume) {
			resume = t
		}
	}

	for i, m := range f.models {
		if until := f.pausedUntil(i, start); !until.IsZero() {
			log.Debug().Str("model", f.names[i]).Time("paused_until", until).Msg("parser.FallbackModel: model paused")
			wait(until)
			continue
		}

		out, err := m.Generate(ctx, req)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		log.Warn().Str("model", f.names[i]).Err(err).Msg("parser.FallbackModel: model failed")
		failures = append(failures, fmt.Sprintf("%s: %v", f.names[i], err))

		var rlErr *RateLimitError
		if !errors.As(err, &rlErr) {
			lastErr = err
			continue
		}
		pause := rlErr.RetryAfter
		if pause < minPause {
			pause = minPause
		}
		f.pause(i, start.Add(pause))
		wait(start.Add(pause))
	}

	if lastErr == nil {
		retryAfter := resume.Sub(f.now())
		if retryAfter < minPause {
			retryAfter = minPause
		}
		return nil, NewRateLimitError("all", errors.New("all models rate limited"), int(retryAfter.Round(time.Second).Seconds()))
	}
	// Only a non rate-limit cause is wrapped, so callers do not requeue a
	// request that some model rejected outright.
	return nil, fmt.Errorf("all models failed (%s): %w", strings.Join(failures, "; "), lastErr)
}
