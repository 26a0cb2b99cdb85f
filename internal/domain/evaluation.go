package domain

import (
	"fmt"
	"time"
)

// Default discussion configuration values.
const (
	DefaultMaxRounds            = 3
	DefaultMinRounds            = 2
	DefaultConvergenceThreshold = 0.85
	DefaultWorkerTimeout        = 2 * time.Minute
)

// DiscussionConfig bounds one discussion: how many rounds may run, how many
// must run before early exit is honored, and the similarity threshold that
// counts as convergence.
//
// MinRounds exists to prevent single-round false convergence: with no prior
// round the detector reports not-converged, but near-duplicate first answers
// across workers could otherwise be misread as agreement. The gate forces at
// least MinRounds rounds of actual cross-examination.
type DiscussionConfig struct {
	// MaxRounds is the hard ceiling on rounds. The discussion always stops
	// once RoundIndex reaches it, converged or not.
	MaxRounds int `json:"max_rounds" validate:"required,min=1"`

	// MinRounds is the minimum number of rounds that must complete before
	// a convergence verdict is allowed to stop the discussion.
	MinRounds int `json:"min_rounds" validate:"min=1"`

	// ConvergenceThreshold is the combined similarity score at or above
	// which successive rounds count as converged.
	ConvergenceThreshold float64 `json:"convergence_threshold" validate:"gt=0,max=1"`

	// WorkerTimeout bounds each individual worker call within a round.
	// Zero means no per-worker deadline.
	WorkerTimeout time.Duration `json:"worker_timeout" validate:"min=0"`
}

// DefaultDiscussionConfig returns the stock 3-round configuration.
func DefaultDiscussionConfig() DiscussionConfig {
	return DiscussionConfig{
		MaxRounds:            DefaultMaxRounds,
		MinRounds:            DefaultMinRounds,
		ConvergenceThreshold: DefaultConvergenceThreshold,
		WorkerTimeout:        DefaultWorkerTimeout,
	}
}

// Validate checks the configuration invariants. A violation here is a
// controller fault: it is raised to the caller before any round executes.
func (c *DiscussionConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.MinRounds > c.MaxRounds {
		return fmt.Errorf("%w: min_rounds (%d) exceeds max_rounds (%d)",
			ErrInvalidConfig, c.MinRounds, c.MaxRounds)
	}
	return nil
}

// EvaluationReport is the caller-facing outcome of a discussion: the full
// per-round transcript plus the final aggregated scorecard and totals.
type EvaluationReport struct {
	// History is the complete ordered transcript, one record per round run.
	History EvaluationHistory `json:"history"`

	// FinalScorecard is the last round's aggregated scorecard.
	FinalScorecard Scorecard `json:"final_scorecard"`

	// Converged reports whether the discussion stopped because successive
	// rounds stabilized (as opposed to hitting MaxRounds).
	Converged bool `json:"converged"`

	// RoundsRun is the number of rounds actually executed.
	RoundsRun int `json:"rounds_run"`

	// TotalUsage sums resource consumption across every worker call in
	// every round, including calls whose results were later discarded.
	TotalUsage ResourceUsage `json:"total_usage"`

	// MeanConfidence averages the self-reported confidence of the final
	// round's valid results. Zero when the final round produced none.
	MeanConfidence float64 `json:"mean_confidence"`
}
