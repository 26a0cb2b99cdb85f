package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-quorum/internal/discussion"
	"github.com/ahrav/go-quorum/internal/domain"
	pkgactivity "github.com/ahrav/go-quorum/pkg/activity"
	"github.com/ahrav/go-quorum/pkg/events"
)

// eventSource identifies this package as the emitting component.
const eventSource = "discussion-activity"

// EventEmitter handles event emission for the discussion domain: one event
// per completed round plus a completion event when the discussion converges.
// Emission is best-effort; failures are logged and never affect the run.
type EventEmitter struct {
	base pkgactivity.BaseActivities
}

// NewEventEmitter creates an emitter over the shared base infrastructure.
func NewEventEmitter(base pkgactivity.BaseActivities) *EventEmitter {
	return &EventEmitter{base: base}
}

// roundCompletedPayload is the wire payload of a round_completed event.
type roundCompletedPayload struct {
	RoundIndex   int                `json:"round_index"`
	MaxRounds    int                `json:"max_rounds"`
	ResultsCount int                `json:"results_count"`
	Aggregated   domain.Scorecard   `json:"aggregated"`
	Convergence  domain.Convergence `json:"convergence"`
}

// EmitRoundCompleted emits the per-round progress event.
func (e *EventEmitter) EmitRoundCompleted(
	ctx context.Context,
	wfCtx pkgactivity.WorkflowContext,
	update discussion.ProgressUpdate,
) {
	payload, err := json.Marshal(roundCompletedPayload{
		RoundIndex:   update.RoundIndex,
		MaxRounds:    update.MaxRounds,
		ResultsCount: update.ResultsCount,
		Aggregated:   update.Aggregated,
		Convergence:  update.Convergence,
	})
	if err != nil {
		pkgactivity.SafeLogError(ctx, "failed to marshal round event", "error", err)
		return
	}

	envelope := newEnvelope(events.TypeRoundCompleted, wfCtx,
		fmt.Sprintf("%s:%s:round:%d", wfCtx.WorkflowID, wfCtx.RunID, update.RoundIndex),
		payload)
	e.base.EmitEventSafe(ctx, envelope, fmt.Sprintf("RoundCompleted[%d]", update.RoundIndex))
}

// workerOptedOutPayload is the wire payload of a worker_opted_out event.
type workerOptedOutPayload struct {
	WorkerID   string `json:"worker_id"`
	RoundIndex int    `json:"round_index"`
}

// EmitWorkerOptedOut emits one event per worker whose scorecard stabilized.
// Exclusion is permanent, so the idempotency key carries only the worker ID;
// a retried round cannot announce the same opt-out twice.
func (e *EventEmitter) EmitWorkerOptedOut(
	ctx context.Context,
	wfCtx pkgactivity.WorkflowContext,
	workerID string,
	roundIndex int,
) {
	payload, err := json.Marshal(workerOptedOutPayload{
		WorkerID:   workerID,
		RoundIndex: roundIndex,
	})
	if err != nil {
		pkgactivity.SafeLogError(ctx, "failed to marshal opt-out event", "error", err)
		return
	}

	envelope := newEnvelope(events.TypeWorkerOptedOut, wfCtx,
		fmt.Sprintf("%s:%s:optout:%s", wfCtx.WorkflowID, wfCtx.RunID, workerID),
		payload)
	e.base.EmitEventSafe(ctx, envelope, fmt.Sprintf("WorkerOptedOut[%s]", workerID))
}

// completionPayload is the wire payload of a converged event.
type completionPayload struct {
	RoundsRun      int              `json:"rounds_run"`
	Converged      bool             `json:"converged"`
	FinalScorecard domain.Scorecard `json:"final_scorecard"`
	TotalCost      domain.Cents     `json:"total_cost_cents"`
}

// EmitCompletion emits the terminal event for a converged discussion.
// Discussions that exhaust MaxRounds without converging emit nothing here;
// their final round event already tells the story.
func (e *EventEmitter) EmitCompletion(
	ctx context.Context,
	wfCtx pkgactivity.WorkflowContext,
	report *domain.EvaluationReport,
) {
	if !report.Converged {
		return
	}

	payload, err := json.Marshal(completionPayload{
		RoundsRun:      report.RoundsRun,
		Converged:      report.Converged,
		FinalScorecard: report.FinalScorecard,
		TotalCost:      report.TotalUsage.CostCents,
	})
	if err != nil {
		pkgactivity.SafeLogError(ctx, "failed to marshal completion event", "error", err)
		return
	}

	envelope := newEnvelope(events.TypeConverged, wfCtx,
		fmt.Sprintf("%s:%s:converged", wfCtx.WorkflowID, wfCtx.RunID),
		payload)
	e.base.EmitEventSafe(ctx, envelope, "DiscussionConverged")
}

// newEnvelope stamps the standard envelope metadata around a payload.
func newEnvelope(
	eventType string,
	wfCtx pkgactivity.WorkflowContext,
	idempotencyKey string,
	payload json.RawMessage,
) events.Envelope {
	return events.Envelope{
		ID:             uuid.NewString(),
		Type:           eventType,
		Source:         eventSource,
		Version:        events.SchemaVersion,
		Timestamp:      time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
		WorkflowID:     wfCtx.WorkflowID,
		RunID:          wfCtx.RunID,
		Payload:        payload,
	}
}
