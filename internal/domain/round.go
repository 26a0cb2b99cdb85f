package domain

// Convergence is the stability verdict for one round: a combined similarity
// score in [0,1] and whether it met the configured threshold.
type Convergence struct {
	// Score blends content similarity and metric stability against the
	// previous round. 0 when there is no previous round.
	Score float64 `json:"score" validate:"min=0,max=1"`

	// Converged reports whether Score met the convergence threshold.
	Converged bool `json:"converged"`
}

// RoundRecord is the immutable transcript entry for one completed round.
// Created by the discussion controller at the end of the round and appended
// to the evaluation history; never mutated after append.
type RoundRecord struct {
	// RoundIndex is the 0-based index of the round.
	RoundIndex int `json:"round_index" validate:"min=0"`

	// Results holds one entry per participating worker that produced a
	// valid result this round. Failed and invalid workers are absent.
	Results []WorkerResult `json:"results"`

	// Failures lists the worker IDs that errored, timed out, or returned
	// an invalid result this round. Recorded for observability only.
	Failures []string `json:"failures,omitempty"`

	// Aggregated is the weighted per-pillar combination of Results.
	// Pillars with no contributor are absent, never zero.
	Aggregated Scorecard `json:"aggregated"`

	// Convergence compares this round to the previous one.
	Convergence Convergence `json:"convergence"`
}

// EvaluationHistory is the ordered, append-only transcript of a discussion.
// Records appear in strict round order; the history is the authoritative
// account of what every round produced.
type EvaluationHistory []RoundRecord

// TotalResults returns the number of valid worker results across all rounds.
func (h EvaluationHistory) TotalResults() int {
	var n int
	for _, rec := range h {
		n += len(rec.Results)
	}
	return n
}

// LastAggregated returns the most recent round's aggregated scorecard, or
// nil if no round has completed.
func (h EvaluationHistory) LastAggregated() Scorecard {
	if len(h) == 0 {
		return nil
	}
	return h[len(h)-1].Aggregated
}
