package domain

import "context"

// EvalContext is everything a worker sees when asked to review a diff in a
// given round: the change itself, the prior round's results, concerns raised
// by peers, and round metadata. The diff and file list are opaque strings to
// this core; retrieval and chunking happen upstream.
type EvalContext struct {
	// Diff is the raw unified diff under review.
	Diff string `json:"diff" validate:"required,min=1"`

	// ChangedFiles lists the paths touched by the diff.
	ChangedFiles []string `json:"changed_files,omitempty"`

	// RoundIndex is the 0-based index of the round being executed.
	RoundIndex int `json:"round_index" validate:"min=0"`

	// IsFinalRound tells workers this is the last possible round so they
	// can produce closing summaries instead of opening new threads.
	IsFinalRound bool `json:"is_final_round"`

	// PriorResults carries the previous round's valid results so workers
	// can revise their position after seeing peers' output. Empty in
	// round 0.
	PriorResults []WorkerResult `json:"prior_results,omitempty"`

	// PeerConcerns aggregates the concerns peers raised in the previous
	// round, in the order they were produced.
	PeerConcerns []string `json:"peer_concerns,omitempty"`
}

// Validate checks the context against its structural constraints.
func (c *EvalContext) Validate() error { return validate.Struct(c) }

// Worker is an independent reviewer capability: given round context it
// returns a partial scorecard with free-text assessment, or fails. Workers
// are consumed by the discussion core, not implemented by it; how a worker
// decides its scores is opaque.
//
// Execute must be safe to call concurrently with other workers' Execute and
// must honor context cancellation: the round executor enforces per-call
// deadlines and will abandon calls that exceed them.
type Worker interface {
	// ID uniquely identifies the worker within a roster.
	ID() string

	// Role returns the reviewer persona the worker scores under.
	Role() RoleKey

	// CanExecute reports whether the worker is able to evaluate the given
	// context (e.g. a security auditor may decline a docs-only diff).
	CanExecute(ctx context.Context, ec EvalContext) bool

	// Execute produces the worker's result for the round. A returned error
	// or an expired context marks the worker failed for this round only.
	Execute(ctx context.Context, ec EvalContext) (*WorkerResult, error)
}
