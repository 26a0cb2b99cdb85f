// Package discussion implements the multi-round discussion engine: the
// round executor, weighted aggregator, convergence detector, opt-out
// tracker, and the controller state machine that drives them. The package
// has no I/O of its own; workers, loggers, and progress sinks are injected.
package discussion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-quorum/internal/domain"
)

// DefaultMaxParallel bounds concurrent worker calls within a round when the
// caller does not configure a limit.
const DefaultMaxParallel = 8

// Executor runs one round: it fans out to the eligible workers
// concurrently, applies per-call deadlines, isolates failures, discards
// invalid results, and clamps every surviving scorecard to the metric
// registry. It mutates no state beyond emitting the result set.
type Executor struct {
	registry    *domain.MetricRegistry
	timeout     time.Duration
	maxParallel int
	logger      *slog.Logger
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithWorkerTimeout sets the per-worker call deadline. Zero disables it.
func WithWorkerTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// WithMaxParallel bounds the number of worker calls in flight at once.
func WithMaxParallel(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// WithExecutorLogger sets the logger for per-worker failure diagnostics.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates a round executor clamping results to the registry.
func NewExecutor(registry *domain.MetricRegistry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:    registry,
		maxParallel: DefaultMaxParallel,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// workerOutcome is one slot of a round's fan-in.
type workerOutcome struct {
	result *domain.WorkerResult
	err    error
}

// RunRound executes all eligible workers concurrently and collects their
// results behind a fan-in barrier. The round completes only when every call
// has returned or been timed out; a failing, panicking, or slow worker never
// aborts the round and never blocks the barrier indefinitely.
//
// Returned results contain only valid entries (non-empty trimmed summary,
// required metrics present) with scorecards sanitized against the registry.
// Failures lists the worker IDs that produced no usable result, in roster
// order. Usage sums resource consumption across all calls that returned,
// including those whose results were discarded as invalid.
func (e *Executor) RunRound(
	ctx context.Context,
	workers []domain.Worker,
	ec domain.EvalContext,
) (results []domain.WorkerResult, failures []string, usage domain.ResourceUsage) {
	outcomes := make([]workerOutcome, len(workers))

	g := &errgroup.Group{}
	g.SetLimit(e.maxParallel)
	for i, w := range workers {
		g.Go(func() error {
			outcomes[i] = e.invoke(ctx, w, ec)
			return nil
		})
	}
	// Goroutines never return errors; failures land in their slot.
	_ = g.Wait()

	for i, w := range workers {
		out := outcomes[i]
		if out.err != nil {
			e.logger.Warn("worker failed",
				"worker_id", w.ID(),
				"role", w.Role(),
				"round", ec.RoundIndex,
				"error", out.err)
			failures = append(failures, w.ID())
			continue
		}

		res := e.normalize(w, ec, out.result)
		usage = usage.Add(res.Usage)

		if !res.IsValid() {
			e.logger.Warn("worker returned empty summary, discarding",
				"worker_id", w.ID(), "round", ec.RoundIndex)
			failures = append(failures, w.ID())
			continue
		}
		if missing := res.Scorecard.MissingRequired(e.registry); len(missing) > 0 {
			e.logger.Warn("worker omitted required metrics, discarding",
				"worker_id", w.ID(), "round", ec.RoundIndex, "missing", missing)
			failures = append(failures, w.ID())
			continue
		}

		results = append(results, res)
	}

	return results, failures, usage
}

// invoke runs one worker call with panic isolation and an optional deadline.
// A call that outlives its deadline is abandoned: its goroutine keeps
// running until the worker honors cancellation, but the round does not wait.
func (e *Executor) invoke(ctx context.Context, w domain.Worker, ec domain.EvalContext) workerOutcome {
	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	done := make(chan workerOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- workerOutcome{err: fmt.Errorf("worker %s panicked: %v", w.ID(), r)}
			}
		}()
		res, err := w.Execute(callCtx, ec)
		if err == nil && res == nil {
			err = fmt.Errorf("worker %s returned no result", w.ID())
		}
		done <- workerOutcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		return out
	case <-callCtx.Done():
		return workerOutcome{err: fmt.Errorf("worker %s: %w", w.ID(), callCtx.Err())}
	}
}

// normalize stamps executor-owned identity fields and clamps the scorecard
// to the registry. The worker's copy is never aliased into the round.
func (e *Executor) normalize(w domain.Worker, ec domain.EvalContext, res *domain.WorkerResult) domain.WorkerResult {
	out := res.Clone()
	out.WorkerID = w.ID()
	out.Role = w.Role()
	out.RoundIndex = ec.RoundIndex
	out.Scorecard = out.Scorecard.Sanitized(e.registry)
	return out
}
