// Package worker implements the supervisor's five cooperating loops:
// Market (fetch + snapshot), Dream (knowledge-graph assessment), Think
// (committee decisions + execution), and the optional Options/OptionsThink
// pair. Every worker shares the same lifecycle shape so the supervisor can
// treat them uniformly.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// sleepSlice bounds how long a single wait between ticks blocks before
// re-checking for cancellation, grounded on the teacher's ticker+select
// run loop: instead of one long time.Sleep, StopNow takes effect within
// one slice instead of waiting out the whole interval.
const sleepSlice = 250 * time.Millisecond

// Stats is a point-in-time snapshot of one worker's run history.
type Stats struct {
	Name        string
	Ticks       int64
	Errors      int64
	LastErr     string
	LastRunAt   time.Time
	LastStepDur time.Duration
	Running     bool
}

// StepFunc is one worker's unit of work, called once per tick.
type StepFunc func(ctx context.Context) error

// Worker is a named, independently startable/stoppable loop that calls
// its StepFunc on a fixed interval until stopped.
type Worker struct {
	name     string
	interval time.Duration
	step     StepFunc

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool

	ticks     atomic.Int64
	errors    atomic.Int64
	lastErr   atomic.Value // string
	lastRunAt atomic.Value // time.Time
	lastDur   atomic.Int64 // time.Duration as nanoseconds
}

// New builds a Worker with the given name, tick interval, and step
// function.
func New(name string, interval time.Duration, step StepFunc) *Worker {
	w := &Worker{name: name, interval: interval, step: step}
	w.lastErr.Store("")
	w.lastRunAt.Store(time.Time{})
	return w
}

// Start runs the worker's loop in a new goroutine until ctx is canceled
// or StopNow is called. Calling Start on an already-running worker is a
// no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	go w.run(loopCtx)
}

// StopNow cancels the worker's loop. It returns once the cancellation has
// been requested; it does not wait for the in-flight step to finish.
func (w *Worker) StopNow() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
	w.running = false
}

func (w *Worker) run(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		_ = w.StepOnce(ctx)
		if !cancellableSleep(ctx, w.interval) {
			return
		}
	}
}

// StepOnce runs exactly one step immediately, recording its outcome in
// Stats, regardless of whether the loop is running. The supervisor's
// -dry-run smoke test calls this directly without ever starting the loop.
func (w *Worker) StepOnce(ctx context.Context) error {
	start := time.Now()
	err := w.step(ctx)
	dur := time.Since(start)

	w.ticks.Add(1)
	w.lastRunAt.Store(start)
	w.lastDur.Store(int64(dur))
	if err != nil {
		w.errors.Add(1)
		w.lastErr.Store(err.Error())
	} else {
		w.lastErr.Store("")
	}
	return err
}

// Stats returns a snapshot of this worker's run history.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()

	return Stats{
		Name:        w.name,
		Ticks:       w.ticks.Load(),
		Errors:      w.errors.Load(),
		LastErr:     w.lastErr.Load().(string),
		LastRunAt:   w.lastRunAt.Load().(time.Time),
		LastStepDur: time.Duration(w.lastDur.Load()),
		Running:     running,
	}
}

// cancellableSleep waits up to d, checking ctx.Done() every sleepSlice so
// a StopNow takes effect promptly instead of waiting out a long interval.
// It returns false if ctx was canceled before d elapsed.
func cancellableSleep(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		slice := sleepSlice
		if remaining < slice {
			slice = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(slice):
		}
	}
}
