package engine

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/galaxyproject/depotsync/util/common/progress"
)

const (
	defaultPollInterval  = 5 * time.Second
	defaultAbortGrace    = 30 * time.Second
	defaultMaxRetryDelay = 10 * time.Minute
)

type Option func(*Engine)

// WithConcurrency bounds the number of items in flight. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMaxRetries sets how many times a failed item is requeued.
// An item is attempted at most maxRetries+1 times.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithItemTimeout bounds each executor invocation. Zero disables the bound.
func WithItemTimeout(d time.Duration) Option {
	return func(e *Engine) { e.itemTimeout = d }
}

// WithRunTimeout bounds the whole run. Zero disables the bound.
func WithRunTimeout(d time.Duration) Option {
	return func(e *Engine) { e.runTimeout = d }
}

// WithRetryDelay sets the initial delay before a failed item is attempted again.
// The delay grows exponentially per item. Zero requeues immediately.
func WithRetryDelay(initial, max time.Duration) Option {
	return func(e *Engine) {
		e.retryDelay = initial
		if max > 0 {
			e.maxRetryDelay = max
		}
	}
}

// WithScratchGauge enables the resource pause: after a resource failure no new
// item is admitted until usage reports less than budget bytes, or ceiling elapses.
func WithScratchGauge(usage func() (int64, error), budget int64, ceiling time.Duration) Option {
	return func(e *Engine) {
		e.usage = usage
		e.budget = budget
		if ceiling > 0 {
			e.pauseCeiling = ceiling
		}
	}
}

// WithPauseCeiling caps how long admission stays paused after a resource failure.
func WithPauseCeiling(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pauseCeiling = d
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithAbortGrace sets how long an aborted run waits for in-flight items to return.
func WithAbortGrace(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.abortGrace = d
		}
	}
}

// WithRecorder receives one record per terminal item, in completion order.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithReporter(r progress.Reporter) Option {
	return func(e *Engine) {
		if r != nil {
			e.reporter = r
		}
	}
}
