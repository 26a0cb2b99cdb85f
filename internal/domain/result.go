package domain

import "strings"

// ResourceUsage tracks the resources a worker consumed producing one result.
// Units are provider-agnostic (tokens for LLM-backed workers); cost uses the
// Cents type to avoid floating-point money.
type ResourceUsage struct {
	// InputUnits counts the units consumed by the request side (e.g. prompt
	// tokens for an LLM-backed reviewer).
	InputUnits int64 `json:"input_units" validate:"min=0"`

	// OutputUnits counts the units produced by the response side.
	OutputUnits int64 `json:"output_units" validate:"min=0"`

	// CostCents is the monetary cost of the call in cents.
	CostCents Cents `json:"cost_cents" validate:"min=0"`
}

// Add returns the element-wise sum of two usage records.
func (u ResourceUsage) Add(other ResourceUsage) ResourceUsage {
	return ResourceUsage{
		InputUnits:  u.InputUnits + other.InputUnits,
		OutputUnits: u.OutputUnits + other.OutputUnits,
		CostCents:   u.CostCents.Add(other.CostCents),
	}
}

// IsZero reports whether no resources were recorded.
func (u ResourceUsage) IsZero() bool {
	return u.InputUnits == 0 && u.OutputUnits == 0 && u.CostCents.IsZero()
}

// WorkerResult is one worker's contribution to one round: a partial
// scorecard plus free-text assessment and bookkeeping. Results are created
// once per worker per round and never mutated afterwards; the round that
// produced a result owns it.
type WorkerResult struct {
	// WorkerID uniquely identifies the worker that produced this result.
	WorkerID string `json:"worker_id" validate:"required,min=1"`

	// Role is the reviewer persona the worker evaluated under.
	// Drives weight lookup during aggregation.
	Role RoleKey `json:"role" validate:"required,min=1"`

	// RoundIndex is the 0-based round that produced this result.
	RoundIndex int `json:"round_index" validate:"min=0"`

	// Summary is the worker's short assessment. A result is valid only if
	// the summary is non-empty after trimming whitespace.
	Summary string `json:"summary"`

	// Details carries the worker's extended reasoning. May be empty.
	Details string `json:"details,omitempty"`

	// Scorecard holds the worker's per-pillar values. Absent pillars are
	// null (the worker abstained).
	Scorecard Scorecard `json:"scorecard"`

	// Concerns lists issues the worker wants peers to weigh in on during
	// subsequent rounds.
	Concerns []string `json:"concerns,omitempty"`

	// Usage records the resources consumed producing this result.
	Usage ResourceUsage `json:"usage"`

	// ConfidenceScore is the worker's self-reported confidence, 0-100.
	ConfidenceScore int `json:"confidence_score" validate:"min=0,max=100"`

	// RefinementCount is how many times the worker revised its answer
	// internally before returning it.
	RefinementCount int `json:"refinement_count" validate:"min=0"`
}

// IsValid reports whether the result is usable: the summary must be
// non-empty after trimming. Invalid results are discarded by the round
// executor, never coerced.
func (r *WorkerResult) IsValid() bool {
	return strings.TrimSpace(r.Summary) != ""
}

// Clone returns a deep copy of the result so callers can retain results
// across rounds without aliasing the producing round's data.
func (r *WorkerResult) Clone() WorkerResult {
	out := *r
	out.Scorecard = r.Scorecard.Clone()
	if r.Concerns != nil {
		out.Concerns = make([]string, len(r.Concerns))
		copy(out.Concerns, r.Concerns)
	}
	return out
}
