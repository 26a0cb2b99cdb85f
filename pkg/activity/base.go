// Package activity provides shared infrastructure for Temporal activity
// implementations: workflow context extraction, context-safe logging, and
// best-effort event emission that works identically in production activity
// contexts and plain test contexts.
package activity

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/ahrav/go-quorum/pkg/events"
)

// WorkflowContext carries metadata extracted from the Temporal activity
// context, with stable fallback values for non-activity (test) contexts.
type WorkflowContext struct {
	WorkflowID string
	RunID      string
	ActivityID string
}

// BaseActivities provides common infrastructure for activity types:
// event emission and workflow context extraction.
type BaseActivities struct {
	eventSink events.EventSink
}

// NewBaseActivities creates base infrastructure around an event sink.
// A nil sink disables emission, which is fine for tests.
func NewBaseActivities(sink events.EventSink) BaseActivities {
	return BaseActivities{eventSink: sink}
}

// GetWorkflowContext safely extracts workflow execution metadata.
// In a Temporal activity context it returns the real execution details;
// outside one (unit tests) it returns fixed test identifiers instead of
// panicking.
func (b *BaseActivities) GetWorkflowContext(ctx context.Context) WorkflowContext {
	var wfCtx WorkflowContext

	func() {
		defer func() {
			if recover() != nil {
				wfCtx.WorkflowID = "test-workflow"
				wfCtx.RunID = "test-run"
				wfCtx.ActivityID = "test-activity"
			}
		}()

		info := activity.GetInfo(ctx)
		wfCtx.WorkflowID = info.WorkflowExecution.ID
		wfCtx.RunID = info.WorkflowExecution.RunID
		wfCtx.ActivityID = info.ActivityID
	}()

	return wfCtx
}

// EmitEventSafe emits an event with best-effort semantics: a short retry,
// then give up with an error log. Event emission never fails the activity
// that produced the event.
func (b *BaseActivities) EmitEventSafe(ctx context.Context, envelope events.Envelope, description string) {
	if b.eventSink == nil {
		return
	}

	const maxAttempts = 2
	const retryDelay = 200 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				SafeLogError(ctx, fmt.Sprintf("event emission cancelled: %s", description),
					"event_type", envelope.Type)
				return
			}
		}

		if err := b.eventSink.Append(ctx, envelope); err != nil {
			lastErr = err
			continue
		}

		SafeLog(ctx, fmt.Sprintf("event emitted: %s", description),
			"event_type", envelope.Type,
			"idempotency_key", envelope.IdempotencyKey)
		return
	}

	SafeLogError(ctx, fmt.Sprintf("failed to emit %s after %d attempts", description, maxAttempts),
		"event_type", envelope.Type,
		"error", lastErr)
}

// RecordHeartbeat safely records a heartbeat in the Temporal activity
// context. Ignored in non-activity contexts.
func (b *BaseActivities) RecordHeartbeat(ctx context.Context, details ...any) {
	defer func() {
		_ = recover() // not an activity context
	}()
	activity.RecordHeartbeat(ctx, details...)
}

// SafeLog logs through the activity logger when one is available and is a
// no-op otherwise, so activities can log freely in unit tests.
func SafeLog(ctx context.Context, msg string, keyvals ...any) {
	defer func() {
		_ = recover() // not an activity context
	}()
	activity.GetLogger(ctx).Info(msg, keyvals...)
}

// SafeLogError is SafeLog at ERROR level.
func SafeLogError(ctx context.Context, msg string, keyvals ...any) {
	defer func() {
		_ = recover() // not an activity context
	}()
	activity.GetLogger(ctx).Error(msg, keyvals...)
}
