package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/go-quorum/internal/activity"
	"github.com/ahrav/go-quorum/internal/domain"
)

// perRoundSlack pads the per-round time budget for aggregation, convergence
// detection, and bookkeeping around the worker calls themselves.
const perRoundSlack = 30 * time.Second

// DiscussionWorkflow runs one multi-round diff review to completion.
//
// Validation happens before the activity is scheduled so malformed requests
// fail fast and non-retryably. The activity performs the whole discussion:
// retrying individual rounds is impossible from out here without re-running
// earlier rounds, so the retry unit is the full run.
func DiscussionWorkflow(
	ctx workflow.Context,
	input activity.DiscussionInput,
) (*domain.EvaluationReport, error) {
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "discussion.v", workflow.DefaultVersion, currentVersion)

	if err := input.Config.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(
			"invalid discussion configuration",
			"Validation",
			err,
		)
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: activityBudget(input.Config),
		HeartbeatTimeout:    2 * perRoundBudget(input.Config),
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var report domain.EvaluationReport
	var activities *activity.Activities
	if err := workflow.ExecuteActivity(ctx, activities.RunDiscussion, input).Get(ctx, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// perRoundBudget is the worst-case wall time for one round.
func perRoundBudget(cfg domain.DiscussionConfig) time.Duration {
	timeout := cfg.WorkerTimeout
	if timeout <= 0 {
		timeout = domain.DefaultWorkerTimeout
	}
	return timeout + perRoundSlack
}

// activityBudget sizes the activity timeout to the configured round ceiling.
func activityBudget(cfg domain.DiscussionConfig) time.Duration {
	return time.Duration(cfg.MaxRounds) * perRoundBudget(cfg)
}
