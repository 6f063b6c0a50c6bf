package pipeline

import (
	"sync"

	"github.com/phuslu/log"
)

// ProgressFunc receives progress updates: pages done out of total, with a
// short description of the current task.
type ProgressFunc func(done, total int, message string)

// SafeProgress wraps fn so that a nil callback is a no-op and a panicking
// one is logged instead of crashing the run.
func SafeProgress(fn ProgressFunc) ProgressFunc {
	return func(done, total int, message string) {
		if fn == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("message", message).Msg("pipeline.SafeProgress: progress callback panicked")
			}
		}()
		fn(done, total, message)
	}
}

// tracker serializes progress and keeps the done count from going backwards
// across phases.
type tracker struct {
	mu    sync.Mutex
	fn    ProgressFunc
	total int
	done  int
}

func newTracker(fn ProgressFunc, total int) *tracker {
	return &tracker{fn: SafeProgress(fn), total: total}
}

func (t *tracker) report(done int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if done < t.done {
		done = t.done
	}
	if done > t.total {
		done = t.total
	}
	t.done = done
	t.fn(done, t.total, message)
}

// scaled maps (done, of) within a phase onto the page total.
func (t *tracker) scaled(done, of int, message string) {
	if of <= 0 {
		t.report(t.total, message)
		return
	}
	t.report(done*t.total/of, message)
}
