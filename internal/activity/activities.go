// Package activity hosts the Temporal activity surface of the discussion
// engine. The activity owns nothing the library core does not: it wires the
// injected registry, weight table, and worker roster into a controller, runs
// the discussion, and emits round-lifecycle events for observability.
package activity

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/ahrav/go-quorum/internal/discussion"
	"github.com/ahrav/go-quorum/internal/domain"
	pkgactivity "github.com/ahrav/go-quorum/pkg/activity"
)

// DiscussionInput is the serializable request for one discussion run.
type DiscussionInput struct {
	// Context is the diff and metadata under review. Round metadata fields
	// are controller-owned and ignored on input.
	Context domain.EvalContext `json:"context"`

	// Config bounds the discussion.
	Config domain.DiscussionConfig `json:"config"`
}

// ResumeInput is the serializable request for resuming a checkpointed
// discussion.
type ResumeInput struct {
	// State is the checkpointed discussion state to continue from.
	State *domain.DiscussionState `json:"state"`

	// Context is the diff and metadata under review.
	Context domain.EvalContext `json:"context"`
}

// Activities handles discussion-specific Temporal activities. The worker
// roster is bound at worker startup; rosters are live capabilities and do
// not travel through Temporal payloads.
type Activities struct {
	pkgactivity.BaseActivities
	registry *domain.MetricRegistry
	weights  *domain.WeightTable
	roster   []domain.Worker
	events   *EventEmitter
}

// NewActivities creates discussion activities with injected dependencies.
func NewActivities(
	base pkgactivity.BaseActivities,
	registry *domain.MetricRegistry,
	weights *domain.WeightTable,
	roster []domain.Worker,
) *Activities {
	return &Activities{
		BaseActivities: base,
		registry:       registry,
		weights:        weights,
		roster:         roster,
		events:         NewEventEmitter(base),
	}
}

// RunDiscussion executes one full discussion over the input diff.
//
// Configuration faults are non-retryable: retrying malformed input cannot
// succeed. Context cancellation is returned as-is so Temporal can apply its
// own retry policy. Per-worker failures never surface here as errors; they
// are part of the returned history.
func (a *Activities) RunDiscussion(ctx context.Context, input DiscussionInput) (*domain.EvaluationReport, error) {
	wfCtx := a.GetWorkflowContext(ctx)
	pkgactivity.SafeLog(ctx, "starting discussion",
		"workflow_id", wfCtx.WorkflowID,
		"max_rounds", input.Config.MaxRounds,
		"roster_size", len(a.roster))

	ctrl := a.newController(ctx, wfCtx)
	report, err := ctrl.Evaluate(ctx, input.Context, a.roster, input.Config)
	if err != nil {
		return nil, classify("RunDiscussion", err)
	}

	a.events.EmitCompletion(ctx, wfCtx, report)
	pkgactivity.SafeLog(ctx, "discussion complete",
		"rounds_run", report.RoundsRun,
		"converged", report.Converged)
	return report, nil
}

// ResumeDiscussion continues a checkpointed discussion to completion.
func (a *Activities) ResumeDiscussion(ctx context.Context, input ResumeInput) (*domain.EvaluationReport, error) {
	wfCtx := a.GetWorkflowContext(ctx)
	pkgactivity.SafeLog(ctx, "resuming discussion",
		"workflow_id", wfCtx.WorkflowID,
		"round_index", input.State.RoundIndex)

	ctrl := a.newController(ctx, wfCtx)
	report, err := ctrl.Resume(ctx, input.State, input.Context, a.roster)
	if err != nil {
		return nil, classify("ResumeDiscussion", err)
	}

	a.events.EmitCompletion(ctx, wfCtx, report)
	return report, nil
}

// newController builds a controller whose progress sink heartbeats the
// activity and emits a round event per completed round, plus one opt-out
// event per worker whose scorecard stabilized that round.
func (a *Activities) newController(ctx context.Context, wfCtx pkgactivity.WorkflowContext) *discussion.Controller {
	return discussion.NewController(a.registry, a.weights,
		discussion.WithProgress(func(update discussion.ProgressUpdate) {
			a.RecordHeartbeat(ctx, update.RoundIndex, update.MaxRounds)
			a.events.EmitRoundCompleted(ctx, wfCtx, update)
			for _, workerID := range update.OptedOut {
				a.events.EmitWorkerOptedOut(ctx, wfCtx, workerID, update.RoundIndex)
			}
		}),
	)
}

// classify maps controller errors onto Temporal error semantics.
// Controller faults (bad config, empty roster, unresumable state) are
// non-retryable; everything else keeps default retry behavior.
func classify(tag string, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrEmptyRoster),
		errors.Is(err, domain.ErrDiscussionDone):
		return temporal.NewNonRetryableApplicationError(err.Error(), tag, err)
	default:
		return temporal.NewApplicationError(err.Error(), tag, err)
	}
}
