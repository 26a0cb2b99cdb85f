package domain

import (
	"fmt"
	"sort"
)

// Phase names a discussion controller state.
// Transitions: AWAITING_ROUND -> ROUND_IN_PROGRESS -> DECIDING ->
// (AWAITING_ROUND | DONE).
type Phase string

const (
	// PhaseAwaitingRound means the controller is ready to start a round.
	PhaseAwaitingRound Phase = "AWAITING_ROUND"

	// PhaseRoundInProgress means a round's workers are executing.
	PhaseRoundInProgress Phase = "ROUND_IN_PROGRESS"

	// PhaseDeciding means the round completed and the stop rule is being
	// evaluated.
	PhaseDeciding Phase = "DECIDING"

	// PhaseDone is the terminal state.
	PhaseDone Phase = "DONE"
)

// DiscussionState is the mutable control state of one discussion. It has
// exactly one writer (the owning controller), lives for the duration of one
// evaluation, and is JSON-serializable so a discussion can be checkpointed
// and resumed.
//
// Each field is updated through a single named fold method invoked once per
// round by the controller; there are no hidden merge strategies.
type DiscussionState struct {
	// RoundIndex is the next round to run, 0-based. Always in
	// [0, Config.MaxRounds] while the controller is live; a completed
	// round is never re-run.
	RoundIndex int `json:"round_index" validate:"min=0"`

	// Config is the bounds the discussion was started with.
	Config DiscussionConfig `json:"config"`

	// Phase is the controller's current state-machine phase.
	Phase Phase `json:"phase"`

	// Excluded holds worker IDs that opted out (stable scorecards) in a
	// prior round. Exclusion is permanent for the rest of the discussion.
	// Kept sorted for deterministic serialization.
	Excluded []string `json:"excluded,omitempty"`

	// PreviousResults is the prior round's valid results, the baseline for
	// the next convergence comparison. Replaced wholesale each round.
	PreviousResults []WorkerResult `json:"previous_results,omitempty"`

	// RunningAggregate is the most recent round's aggregated scorecard.
	RunningAggregate Scorecard `json:"running_aggregate,omitempty"`

	// TotalUsage accumulates resource consumption across all rounds.
	TotalUsage ResourceUsage `json:"total_usage"`

	// History is the append-only transcript of completed rounds.
	History EvaluationHistory `json:"history"`
}

// NewDiscussionState creates the initial state for a fresh discussion.
func NewDiscussionState(cfg DiscussionConfig) *DiscussionState {
	return &DiscussionState{
		RoundIndex: 0,
		Config:     cfg,
		Phase:      PhaseAwaitingRound,
	}
}

// Validate checks a state before resuming a checkpointed discussion.
func (s *DiscussionState) Validate() error {
	if err := s.Config.Validate(); err != nil {
		return err
	}
	switch s.Phase {
	case PhaseAwaitingRound, PhaseRoundInProgress, PhaseDeciding, PhaseDone:
	default:
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidState, s.Phase)
	}
	if s.RoundIndex < 0 || s.RoundIndex > s.Config.MaxRounds {
		return fmt.Errorf("%w: round_index %d outside [0,%d]",
			ErrInvalidState, s.RoundIndex, s.Config.MaxRounds)
	}
	if len(s.History) != s.RoundIndex {
		return fmt.Errorf("%w: history has %d records for round_index %d",
			ErrInvalidState, len(s.History), s.RoundIndex)
	}
	return nil
}

// IsExcluded reports whether the worker has opted out in a prior round.
func (s *DiscussionState) IsExcluded(workerID string) bool {
	for _, id := range s.Excluded {
		if id == workerID {
			return true
		}
	}
	return false
}

// AppendHistory folds a completed round record into the transcript.
// Append-only: records are never rewritten.
func (s *DiscussionState) AppendHistory(rec RoundRecord) {
	s.History = append(s.History, rec)
}

// ReplaceCurrentRoundResults folds the round's valid results in as the new
// convergence baseline, replacing the previous round's wholesale.
func (s *DiscussionState) ReplaceCurrentRoundResults(results []WorkerResult) {
	s.PreviousResults = results
}

// ReplaceAggregate folds the round's aggregated scorecard in as the running
// aggregate, replacing the previous one wholesale.
func (s *DiscussionState) ReplaceAggregate(card Scorecard) {
	s.RunningAggregate = card
}

// SumUsage folds one round's resource consumption into the running total.
func (s *DiscussionState) SumUsage(usage ResourceUsage) {
	s.TotalUsage = s.TotalUsage.Add(usage)
}

// UnionExcluded folds newly opted-out workers into the exclusion set.
// Duplicates are ignored; the set only grows.
func (s *DiscussionState) UnionExcluded(workerIDs []string) {
	for _, id := range workerIDs {
		if !s.IsExcluded(id) {
			s.Excluded = append(s.Excluded, id)
		}
	}
	sort.Strings(s.Excluded)
}
