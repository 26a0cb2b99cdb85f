package discussion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ahrav/go-quorum/internal/domain"
)

// ProgressUpdate is the per-round snapshot delivered to an optional progress
// sink after each round. Sinks feed external UI or reporting and are never
// required for correctness.
type ProgressUpdate struct {
	RoundIndex   int                `json:"round_index"`
	MaxRounds    int                `json:"max_rounds"`
	ResultsCount int                `json:"results_count"`
	Aggregated   domain.Scorecard   `json:"aggregated"`
	Convergence  domain.Convergence `json:"convergence"`

	// OptedOut lists the workers whose scorecards stabilized this round and
	// who are excluded from all later rounds.
	OptedOut []string `json:"opted_out,omitempty"`
}

// ProgressFunc receives a ProgressUpdate after each completed round.
// It is invoked synchronously from the controller loop; slow sinks delay
// the next round, so callers should hand off quickly.
type ProgressFunc func(ProgressUpdate)

// Controller is the discussion state machine. It owns the round index,
// drives executor, aggregator, convergence detector, and opt-out tracking
// in sequence each round, and decides continue-vs-stop.
//
// A controller instance owns exactly one discussion's state at a time and
// shares no mutable globals, so any number of controllers may run
// concurrently for independent diffs.
type Controller struct {
	registry *domain.MetricRegistry
	weights  *domain.WeightTable
	logger   *slog.Logger
	progress ProgressFunc

	// executorOpts are retained so each evaluation can build an executor
	// with the per-discussion worker timeout layered on top.
	executorOpts []ExecutorOption
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger. The controller only ever logs;
// it never writes to shared output streams directly.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
			c.executorOpts = append(c.executorOpts, WithExecutorLogger(l))
		}
	}
}

// WithProgress installs a progress sink invoked after each round.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Controller) { c.progress = fn }
}

// WithParallelism bounds concurrent worker calls within a round.
func WithParallelism(n int) Option {
	return func(c *Controller) {
		c.executorOpts = append(c.executorOpts, WithMaxParallel(n))
	}
}

// NewController creates a controller over an injected metric registry and
// weight table. Both are read-only for the controller's lifetime; nothing
// is ever looked up ambiently.
func NewController(registry *domain.MetricRegistry, weights *domain.WeightTable, opts ...Option) *Controller {
	c := &Controller{
		registry: registry,
		weights:  weights,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// withExecutor builds the round executor for one discussion's configuration.
func (c *Controller) withExecutor(cfg domain.DiscussionConfig) *Executor {
	opts := append([]ExecutorOption{WithWorkerTimeout(cfg.WorkerTimeout)}, c.executorOpts...)
	return NewExecutor(c.registry, opts...)
}

// Evaluate runs a full discussion over the diff: up to MaxRounds rounds of
// concurrent worker review, weighted aggregation, convergence detection,
// and opt-out tracking, stopping early once the group's output stabilizes.
//
// Configuration violations (a controller fault, e.g. MinRounds > MaxRounds)
// abort before any round executes. Per-worker failures never abort the
// evaluation; they surface in the returned history's Failures lists.
func (c *Controller) Evaluate(
	ctx context.Context,
	ec domain.EvalContext,
	roster []domain.Worker,
	cfg domain.DiscussionConfig,
) (*domain.EvaluationReport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		return nil, domain.ErrEmptyRoster
	}
	if err := ec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid evaluation context: %w", err)
	}

	return c.run(ctx, domain.NewDiscussionState(cfg), ec, roster)
}

// Resume continues a checkpointed discussion from its serialized state.
// The state must validate and must not already be terminal.
func (c *Controller) Resume(
	ctx context.Context,
	state *domain.DiscussionState,
	ec domain.EvalContext,
	roster []domain.Worker,
) (*domain.EvaluationReport, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}
	if state.Phase == domain.PhaseDone {
		return nil, domain.ErrDiscussionDone
	}
	if len(roster) == 0 {
		return nil, domain.ErrEmptyRoster
	}
	if err := ec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid evaluation context: %w", err)
	}

	return c.run(ctx, state, ec, roster)
}

// run drives the state machine: AWAITING_ROUND -> ROUND_IN_PROGRESS ->
// DECIDING -> (AWAITING_ROUND | DONE). Rounds are strictly sequential; an
// in-flight round always runs to completion (or per-worker timeout) before
// the stop rule is re-evaluated. Context cancellation is honored only
// between rounds.
func (c *Controller) run(
	ctx context.Context,
	state *domain.DiscussionState,
	base domain.EvalContext,
	roster []domain.Worker,
) (*domain.EvaluationReport, error) {
	executor := c.withExecutor(state.Config)
	// The detector's token cache is keyed by (worker, round), which repeats
	// across discussions; a fresh detector per run keeps one discussion's
	// texts from bleeding into the next.
	detector := NewDetector()
	cfg := state.Config

	for state.RoundIndex < cfg.MaxRounds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		state.Phase = domain.PhaseAwaitingRound

		roundCtx := c.buildRoundContext(base, state)
		eligible := c.eligibleWorkers(ctx, roster, state, roundCtx)
		if len(eligible) == 0 && len(state.Excluded) == len(roster) {
			// Everyone has opted out; further rounds cannot change anything.
			c.logger.Info("all workers opted out, ending discussion",
				"round", state.RoundIndex)
			break
		}

		state.Phase = domain.PhaseRoundInProgress
		results, failures, usage := executor.RunRound(ctx, eligible, roundCtx)
		if len(results) == 0 {
			c.logger.Warn("round produced no valid results",
				"round", state.RoundIndex, "failures", len(failures))
		}

		state.Phase = domain.PhaseDeciding
		aggregated, warnings := Aggregate(results, c.weights, c.registry)
		for _, w := range warnings {
			c.logger.Warn("aggregation gap", "round", state.RoundIndex, "detail", w.String())
		}

		conv := detector.Detect(results, state.PreviousResults, cfg.ConvergenceThreshold)
		stable := StableWorkers(results, state.PreviousResults, c.registry)

		record := domain.RoundRecord{
			RoundIndex:  state.RoundIndex,
			Results:     results,
			Failures:    failures,
			Aggregated:  aggregated,
			Convergence: conv,
		}

		// One named fold per state field, applied exactly once per round.
		state.AppendHistory(record)
		state.ReplaceAggregate(aggregated)
		state.ReplaceCurrentRoundResults(results)
		state.SumUsage(usage)
		state.UnionExcluded(stable)

		if c.progress != nil {
			c.progress(ProgressUpdate{
				RoundIndex:   state.RoundIndex,
				MaxRounds:    cfg.MaxRounds,
				ResultsCount: len(results),
				Aggregated:   aggregated,
				Convergence:  conv,
				OptedOut:     stable,
			})
		}

		completed := state.RoundIndex
		state.RoundIndex++

		if conv.Converged && completed >= cfg.MinRounds-1 {
			c.logger.Info("discussion converged",
				"round", completed, "score", conv.Score)
			break
		}
	}

	state.Phase = domain.PhaseDone
	return buildReport(state), nil
}

// buildRoundContext derives the per-round worker context from the caller's
// base context and the current state: round metadata, the prior round's
// results, and the concerns peers raised in them.
func (c *Controller) buildRoundContext(base domain.EvalContext, state *domain.DiscussionState) domain.EvalContext {
	ec := base
	ec.RoundIndex = state.RoundIndex
	ec.IsFinalRound = state.RoundIndex == state.Config.MaxRounds-1
	ec.PriorResults = state.PreviousResults

	var concerns []string
	for _, res := range state.PreviousResults {
		concerns = append(concerns, res.Concerns...)
	}
	ec.PeerConcerns = concerns
	return ec
}

// eligibleWorkers filters the roster down to workers that have not opted
// out and whose CanExecute accepts the round context. An excluded worker is
// never invoked again regardless of what CanExecute would say.
func (c *Controller) eligibleWorkers(
	ctx context.Context,
	roster []domain.Worker,
	state *domain.DiscussionState,
	roundCtx domain.EvalContext,
) []domain.Worker {
	eligible := make([]domain.Worker, 0, len(roster))
	for _, w := range roster {
		if state.IsExcluded(w.ID()) {
			continue
		}
		if !w.CanExecute(ctx, roundCtx) {
			c.logger.Debug("worker declined round",
				"worker_id", w.ID(), "round", state.RoundIndex)
			continue
		}
		eligible = append(eligible, w)
	}
	return eligible
}

// buildReport assembles the caller-facing report from terminal state.
func buildReport(state *domain.DiscussionState) *domain.EvaluationReport {
	report := &domain.EvaluationReport{
		History:        state.History,
		FinalScorecard: state.RunningAggregate,
		RoundsRun:      len(state.History),
		TotalUsage:     state.TotalUsage,
	}

	if n := len(state.History); n > 0 {
		last := state.History[n-1]
		report.Converged = last.Convergence.Converged
		if len(last.Results) > 0 {
			var sum int
			for _, res := range last.Results {
				sum += res.ConfidenceScore
			}
			report.MeanConfidence = float64(sum) / float64(len(last.Results))
		}
	}
	return report
}
