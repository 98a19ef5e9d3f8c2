// Package engine schedules work items onto a bounded pool of workers, retries
// failed items and records every terminal outcome.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/util/common/errors"
	"github.com/galaxyproject/depotsync/util/common/progress"
)

// Executor processes one attempt of one item. It receives a copy of the item
// and must not retain it.
type Executor interface {
	Process(ctx context.Context, item types.WorkItem) types.Outcome
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, item types.WorkItem) types.Outcome

func (f ExecutorFunc) Process(ctx context.Context, item types.WorkItem) types.Outcome {
	return f(ctx, item)
}

// Recorder persists terminal outcomes.
type Recorder interface {
	Append(rec types.RunRecord) error
}

type Engine struct {
	executor Executor
	recorder Recorder
	reporter progress.Reporter
	logger   zerolog.Logger
	runID    string

	concurrency   int
	maxRetries    int
	itemTimeout   time.Duration
	runTimeout    time.Duration
	retryDelay    time.Duration
	maxRetryDelay time.Duration

	usage        func() (int64, error)
	budget       int64
	pauseCeiling time.Duration
	pollInterval time.Duration
	abortGrace   time.Duration
}

func NewEngine(executor Executor, opts ...Option) *Engine {
	e := &Engine{
		executor:      executor,
		reporter:      progress.NewNopReporter(),
		logger:        log.Logger,
		concurrency:   types.DefaultRun.Concurrency,
		maxRetries:    types.DefaultRun.MaxRetries,
		itemTimeout:   types.DefaultRun.ItemTimeout,
		retryDelay:    types.DefaultRun.RetryDelay,
		maxRetryDelay: defaultMaxRetryDelay,
		pauseCeiling:  5 * time.Minute,
		pollInterval:  defaultPollInterval,
		abortGrace:    defaultAbortGrace,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runID == "" {
		e.runID = uuid.New().String()
	}
	return e
}

func (e *Engine) RunID() string { return e.runID }

// entry is the scheduler's bookkeeping for one work item.
type entry struct {
	item    *types.WorkItem
	readyAt time.Time
	started time.Time
	backoff *backoff.ExponentialBackOff
}

type task struct {
	name string
	item types.WorkItem
}

type result struct {
	name     string
	outcome  types.Outcome
	timedOut bool
}

// run holds the state of one Run call. Only the scheduler goroutine touches it.
type run struct {
	*Engine
	logger zerolog.Logger

	pending   []*entry
	inFlight  map[string]*entry
	succeeded map[string]bool
	remaining int

	paused      bool
	pausedSince time.Time
	lastPoll    time.Time

	summary types.RunSummary
	errs    []error
}

// Run processes the work set to completion. Every item ends Succeeded,
// Abandoned or, for a duplicate of a name that already succeeded, Skipped,
// and exactly one record is written per item. The returned error joins
// recorder failures and, when the run was cut short, ErrRunAborted.
func (e *Engine) Run(ctx context.Context, work []*types.WorkItem) (types.RunSummary, error) {
	start := time.Now()
	r := &run{
		Engine:    e,
		logger:    e.logger.With().Str("run_id", e.runID).Int("concurrency", e.concurrency).Logger(),
		inFlight:  make(map[string]*entry),
		succeeded: make(map[string]bool),
		remaining: len(work),
		summary:   types.RunSummary{RunID: e.runID},
	}
	for _, item := range work {
		r.pending = append(r.pending, &entry{item: item})
	}

	if len(work) == 0 {
		r.logger.Info().Msg("No work to execute")
		return r.summary, nil
	}
	r.logger.Info().Int("total_items", len(work)).Msg("Starting run")
	e.reporter.Start("Mirroring", len(work))
	defer e.reporter.End()

	runCtx, cancel := context.WithCancel(ctx)
	if e.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.runTimeout)
	}
	defer cancel()

	dispatch := make(chan task)
	results := make(chan result, e.concurrency)
	done := make(chan struct{})

	var g errgroup.Group
	for i := 0; i < e.concurrency; i++ {
		g.Go(func() error {
			for t := range dispatch {
				res := e.attempt(runCtx, t)
				select {
				case results <- res:
				case <-done:
					return nil
				}
			}
			return nil
		})
	}

	aborted := r.loop(runCtx, dispatch, results)
	close(dispatch)
	if aborted {
		r.drain(runCtx.Err(), results)
	}
	close(done)

	if aborted {
		// workers still inside the executor get abortGrace to notice the cancellation
		waited := make(chan struct{})
		go func() {
			_ = g.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-time.After(e.abortGrace):
			r.logger.Warn().Msg("Workers did not stop within the abort grace period")
		}
	} else {
		_ = g.Wait()
	}

	r.summary.Admitted = len(work) - r.summary.Skipped
	r.summary.Duration = time.Since(start)
	r.logger.Info().
		Int("succeeded", r.summary.Succeeded).
		Int("abandoned", r.summary.Abandoned).
		Int("skipped", r.summary.Skipped).
		Int("failed_attempts", r.summary.Failed).
		Dur("duration", r.summary.Duration).
		Msg("Run finished")

	if aborted {
		r.errs = append(r.errs, fmt.Errorf("%w: %v", errors.ErrRunAborted, context.Cause(runCtx)))
	}
	return r.summary, errors.Join(r.errs...)
}

// attempt runs the executor once under the per-item timeout.
func (e *Engine) attempt(runCtx context.Context, t task) result {
	ctx, cancel := runCtx, context.CancelFunc(func() {})
	if e.itemTimeout > 0 {
		ctx, cancel = context.WithTimeout(runCtx, e.itemTimeout)
	}
	defer cancel()

	started := time.Now()
	outcome := e.executor.Process(ctx, t.item)
	if outcome.Duration == 0 {
		outcome.Duration = time.Since(started)
	}
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded) && runCtx.Err() == nil
	return result{name: t.name, outcome: outcome, timedOut: timedOut}
}

// loop admits and collects items until every item is terminal or the run
// context ends. It reports whether the run was aborted.
func (r *run) loop(runCtx context.Context, dispatch chan<- task, results <-chan result) bool {
	for {
		if r.remaining == 0 {
			return false
		}
		if runCtx.Err() != nil {
			return true
		}
		now := time.Now()
		r.checkPause(now)

		next := r.nextReady(now)
		if r.remaining == 0 {
			return false
		}
		var dispatchCh chan<- task
		var t task
		if next != nil {
			dispatchCh = dispatch
			snapshot := *next.item
			snapshot.Status = types.StatusInFlight
			t = task{name: next.item.Name(), item: snapshot}
		}

		var timer *time.Timer
		var wake <-chan time.Time
		if d, ok := r.wakeAfter(now); ok {
			timer = time.NewTimer(d)
			wake = timer.C
		}

		aborted := false
		select {
		case dispatchCh <- t:
			r.admit(next, now)
		case res := <-results:
			r.complete(res, runCtx)
		case <-wake:
		case <-runCtx.Done():
			aborted = true
		}
		if timer != nil {
			timer.Stop()
		}
		if aborted {
			return true
		}
	}
}

// nextReady returns the first pending entry that may be dispatched now, in
// FIFO order. Duplicates of a name that already succeeded are recorded as
// skipped on the way.
func (r *run) nextReady(now time.Time) *entry {
	if r.paused || len(r.inFlight) >= r.concurrency {
		return nil
	}
	for i := 0; i < len(r.pending); i++ {
		en := r.pending[i]
		name := en.item.Name()
		if r.succeeded[name] && en.item.Status == types.StatusPending && en.item.Attempts() == 0 {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			i--
			r.skip(en, now)
			continue
		}
		if _, busy := r.inFlight[name]; busy {
			continue
		}
		if en.readyAt.After(now) {
			continue
		}
		return en
	}
	return nil
}

// wakeAfter returns how long the loop may sleep before something other than a
// worker result can change its decision.
func (r *run) wakeAfter(now time.Time) (time.Duration, bool) {
	if r.paused {
		return r.pollInterval, true
	}
	var earliest time.Time
	for _, en := range r.pending {
		if _, busy := r.inFlight[en.item.Name()]; busy {
			continue
		}
		if en.readyAt.After(now) && (earliest.IsZero() || en.readyAt.Before(earliest)) {
			earliest = en.readyAt
		}
	}
	if earliest.IsZero() {
		return 0, false
	}
	return earliest.Sub(now), true
}

func (r *run) admit(en *entry, now time.Time) {
	for i, p := range r.pending {
		if p == en {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			break
		}
	}
	if err := en.item.Transition(types.StatusInFlight); err != nil {
		r.logger.Error().Err(err).Msg("Invalid admission")
	}
	if en.started.IsZero() {
		en.started = now
	}
	r.inFlight[en.item.Name()] = en
	r.logger.Debug().
		Str("artifact", en.item.Name()).
		Int("attempt", en.item.Attempt).
		Int("in_flight", len(r.inFlight)).
		Msg("Item admitted")
}

func (r *run) complete(res result, runCtx context.Context) {
	en, ok := r.inFlight[res.name]
	if !ok {
		r.logger.Error().Str("artifact", res.name).Msg("Result for an item that is not in flight")
		return
	}
	delete(r.inFlight, res.name)
	item := en.item
	itemLogger := r.logger.With().Str("artifact", item.Name()).Int("attempt", item.Attempt).Logger()

	if res.outcome.Status == types.StatusSucceeded {
		_ = item.Transition(types.StatusSucceeded)
		item.LastError = nil
		r.succeeded[item.Name()] = true
		itemLogger.Info().Dur("duration", res.outcome.Duration).Msg("Item succeeded")
		r.finish(en)
		return
	}

	_ = item.Transition(types.StatusFailed)
	r.summary.Failed++
	err := res.outcome.Err
	if err == nil {
		err = fmt.Errorf("attempt failed without an error")
	}
	kind := res.outcome.Kind
	if res.timedOut {
		kind = errors.KindTransient
		err = errors.Transient("process", item.Name(), fmt.Errorf("item timeout after %s: %w", r.itemTimeout, err))
	}
	item.LastError = err

	switch {
	case runCtx.Err() != nil:
		itemLogger.Warn().Err(err).Msg("Item failed while the run is aborting")
		r.abandon(en)
	case kind.Retryable() && item.Attempt < r.maxRetries:
		_ = item.Transition(types.StatusPending)
		en.readyAt = time.Now().Add(r.nextDelay(en))
		r.pending = append(r.pending, en)
		itemLogger.Warn().Err(err).Str("kind", kind.String()).Time("retry_at", en.readyAt).Msg("Item failed, requeued")
		if kind == errors.KindResource {
			r.pause()
		}
	default:
		itemLogger.Error().Err(err).Str("kind", kind.String()).Int("attempts", item.Attempts()).Msg("Item abandoned")
		r.abandon(en)
		if kind == errors.KindResource {
			r.pause()
		}
	}
}

func (r *run) nextDelay(en *entry) time.Duration {
	if r.retryDelay <= 0 {
		return 0
	}
	if en.backoff == nil {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = r.retryDelay
		b.MaxInterval = r.maxRetryDelay
		en.backoff = b
	}
	d := en.backoff.NextBackOff()
	if d < 0 {
		return r.maxRetryDelay
	}
	return d
}

func (r *run) pause() {
	if r.paused {
		return
	}
	r.paused = true
	r.pausedSince = time.Now()
	r.lastPoll = time.Time{}
	r.logger.Warn().Int64("budget_bytes", r.budget).Dur("ceiling", r.pauseCeiling).Msg("Scratch exhausted, pausing admission")
	r.reporter.Message("Scratch space exhausted, waiting for running images to finish")
}

// checkPause lifts the pause once scratch usage is back under budget, once no
// item holds scratch space when no gauge is configured, or after the ceiling.
func (r *run) checkPause(now time.Time) {
	if !r.paused {
		return
	}
	resume := false
	reason := ""
	switch {
	case now.Sub(r.pausedSince) >= r.pauseCeiling:
		resume, reason = true, "ceiling"
	case r.usage != nil && r.budget > 0:
		if now.Sub(r.lastPoll) < r.pollInterval {
			return
		}
		r.lastPoll = now
		used, err := r.usage()
		if err != nil {
			r.logger.Warn().Err(err).Msg("Failed to measure scratch usage")
			return
		}
		if used < r.budget {
			resume, reason = true, "below budget"
		}
	case len(r.inFlight) == 0:
		resume, reason = true, "scratch idle"
	}
	if resume {
		r.paused = false
		r.logger.Info().Str("reason", reason).Dur("paused_for", now.Sub(r.pausedSince)).Msg("Resuming admission")
		r.reporter.Message("Resuming (" + reason + ")")
	}
}

func (r *run) abandon(en *entry) {
	if err := en.item.Transition(types.StatusAbandoned); err != nil {
		r.logger.Error().Err(err).Msg("Invalid abandonment")
	}
	r.finish(en)
}

func (r *run) skip(en *entry, now time.Time) {
	en.item.Status = types.StatusSkipped
	en.started = now
	r.logger.Info().Str("artifact", en.item.Name()).Msg("Duplicate of a succeeded item, skipped")
	r.finish(en)
}

// finish writes the record of a terminal item.
func (r *run) finish(en *entry) {
	now := time.Now()
	var d time.Duration
	if !en.started.IsZero() {
		d = now.Sub(en.started)
	}
	rec := types.NewRunRecord(r.runID, en.item, now, d)
	r.summary.Add(rec)
	r.remaining--
	if r.recorder != nil {
		if err := r.recorder.Append(rec); err != nil {
			r.logger.Error().Err(err).Str("artifact", rec.Name).Msg("Failed to record outcome")
			r.errs = append(r.errs, err)
		}
	}
	r.reporter.Done(rec.Name, string(rec.Status))
}

// drain collects the results of items still in flight when the run was
// aborted, waiting at most abortGrace, then abandons everything left.
func (r *run) drain(cause error, results <-chan result) {
	r.logger.Warn().Err(cause).Int("in_flight", len(r.inFlight)).Int("pending", len(r.pending)).Msg("Run aborted, abandoning remaining items")

	deadline := time.NewTimer(r.abortGrace)
	defer deadline.Stop()
	for len(r.inFlight) > 0 {
		select {
		case res := <-results:
			en, ok := r.inFlight[res.name]
			if !ok {
				continue
			}
			delete(r.inFlight, res.name)
			if res.outcome.Status == types.StatusSucceeded {
				_ = en.item.Transition(types.StatusSucceeded)
				r.succeeded[en.item.Name()] = true
				r.finish(en)
				continue
			}
			_ = en.item.Transition(types.StatusFailed)
			r.summary.Failed++
			en.item.LastError = res.outcome.Err
			if en.item.LastError == nil {
				en.item.LastError = cause
			}
			r.abandon(en)
		case <-deadline.C:
			for name, en := range r.inFlight {
				delete(r.inFlight, name)
				r.summary.Failed++
				en.item.LastError = cause
				r.abandon(en)
			}
		}
	}

	for _, en := range r.pending {
		if en.item.LastError == nil {
			en.item.LastError = cause
		}
		r.abandon(en)
	}
	r.pending = nil
}
