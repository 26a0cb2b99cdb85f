// Package worker exposes helpers to assemble and register the discussion
// engine with a Temporal worker.
package worker

import (
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-quorum/internal/activity"
	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/workflow"
	pkgactivity "github.com/ahrav/go-quorum/pkg/activity"
	"github.com/ahrav/go-quorum/pkg/events"
)

// RegisterAll registers the discussion workflow and activities with the
// Temporal worker. Call once during worker initialization before starting
// the worker; registration is not thread-safe.
//
// The roster is bound here, at worker startup: workers are live
// capabilities (API clients, credentials) and never travel through
// Temporal payloads.
func RegisterAll(
	w sdkworker.Worker,
	registry *domain.MetricRegistry,
	weights *domain.WeightTable,
	roster []domain.Worker,
	sink events.EventSink,
) {
	if sink == nil {
		sink = events.NewNoOpEventSink()
	}
	base := pkgactivity.NewBaseActivities(sink)
	activities := activity.NewActivities(base, registry, weights, roster)

	w.RegisterWorkflow(workflow.DiscussionWorkflow)
	w.RegisterActivity(activities.RunDiscussion)
	w.RegisterActivity(activities.ResumeDiscussion)
}
