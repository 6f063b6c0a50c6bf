// Package fanout runs one independent unit of work per page or chunk with
// bounded concurrency, isolating failures and reporting throttled progress.
package fanout

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"

	"finextract/internal/domain"
)

const (
	DefaultMaxConcurrency = 30
	DefaultProgressEvery  = 2 * time.Second
)

// Unit is one item of work. Number is the 1-indexed page or chunk number.
type Unit[T any] struct {
	Number int
	Input  T
}

// Func processes a single unit into a fragment and the raw model output.
type Func[T any] func(ctx context.Context, u Unit[T]) (domain.Fragment, string, error)

// Result is the terminal state of one unit. Fragment is empty when Err is set.
type Result struct {
	Number   int
	Fragment domain.Fragment
	Raw      string
	Err      error
}

// Options tunes a Run.
type Options struct {
	MaxConcurrency int
	ProgressEvery  time.Duration
	// Progress receives (done, total). Calls are serialized and done never
	// decreases.
	Progress func(done, total int)
	Label    string // used in log lines, e.g. "page" or "chunk"
}

// Run processes every unit and returns their results in input order. A
// failing or panicking unit never affects the others. Run returns only after
// every unit has finished.
func Run[T any](ctx context.Context, units []Unit[T], fn Func[T], opts Options) []Result {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	if opts.Label == "" {
		opts.Label = "unit"
	}

	results := make([]Result, len(units))
	rep := newReporter(len(units), opts.ProgressEvery, opts.Progress)
	sem := make(chan struct{}, opts.MaxConcurrency)

	var wg sync.WaitGroup
	for i, u := range units {
		wg.Add(1)
		go func(i int, u Unit[T]) {
			defer wg.Done()
			defer rep.completed()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = Result{Number: u.Number, Fragment: domain.NewFragment(), Err: ctx.Err()}
				return
			}

			results[i] = runOne(ctx, u, fn, opts.Label)
		}(i, u)
	}
	wg.Wait()
	rep.final()

	return results
}

func runOne[T any](ctx context.Context, u Unit[T], fn Func[T], label string) (res Result) {
	res.Number = u.Number
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("label", label).Int("number", u.Number).Interface("panic", r).Msg("fanout.Run: unit panicked")
			res = Result{Number: u.Number, Fragment: domain.NewFragment(), Err: fmt.Errorf("%s %d panicked: %v", label, u.Number, r)}
		}
	}()

	frag, raw, err := fn(ctx, u)
	if err != nil {
		log.Warn().Str("label", label).Int("number", u.Number).Err(err).Msg("fanout.Run: unit failed")
		return Result{Number: u.Number, Fragment: domain.NewFragment(), Raw: raw, Err: err}
	}
	frag.Normalize()
	return Result{Number: u.Number, Fragment: frag, Raw: raw}
}

// reporter counts completions and forwards them to a progress callback at
// most once per interval.
type reporter struct {
	total    int
	interval time.Duration
	fn       func(done, total int)

	done atomic.Int64

	mu       sync.Mutex
	lastAt   time.Time
	lastDone int
}

func newReporter(total int, interval time.Duration, fn func(done, total int)) *reporter {
	return &reporter{total: total, interval: interval, fn: fn, lastAt: time.Now()}
}

func (r *reporter) completed() {
	done := int(r.done.Add(1))
	if r.fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastAt) < r.interval {
		return
	}
	r.emitLocked(done)
}

func (r *reporter) final() {
	if r.fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitLocked(int(r.done.Load()))
}

func (r *reporter) emitLocked(done int) {
	// A goroutine that incremented earlier may arrive here after one that
	// incremented later.
	if done < r.lastDone {
		done = r.lastDone
	}
	r.lastDone = done
	r.lastAt = time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Int("done", done).Int("total", r.total).Msg("fanout.Run: progress callback panicked")
		}
	}()
	r.fn(done, r.total)
}

// Fragments returns the fragments of the results in order, including the
// empty ones of failed units.
func Fragments(results []Result) []domain.Fragment {
	out := make([]domain.Fragment, len(results))
	for i, r := range results {
		out[i] = r.Fragment
	}
	return out
}

// Failed returns the results that ended with an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
