// Command quorum-worker runs a Temporal worker hosting the discussion
// workflow and activities. Each activity invocation evaluates one diff;
// Temporal's task queue is the bounded pool that fans independent
// evaluations across worker processes.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-quorum/internal/worker"
	"github.com/ahrav/go-quorum/pkg/events"
)

// DefaultTaskQueue is the task queue discussions are dispatched on.
const DefaultTaskQueue = "quorum-discussions"

func main() {
	// Missing .env is fine; production deployments set real env vars.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	registry, weights, err := worker.LoadRubric()
	if err != nil {
		return err
	}

	roster, err := worker.InitializeRoster(context.Background(), registry)
	if err != nil {
		return err
	}

	c, err := client.Dial(client.Options{
		HostPort:  os.Getenv("TEMPORAL_ADDRESS"),
		Namespace: os.Getenv("TEMPORAL_NAMESPACE"),
	})
	if err != nil {
		return err
	}
	defer c.Close()

	taskQueue := os.Getenv("QUORUM_TASK_QUEUE")
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}

	w := sdkworker.New(c, taskQueue, sdkworker.Options{})
	worker.RegisterAll(w, registry, weights, roster, events.NewNoOpEventSink())

	logger.Info("worker starting",
		"task_queue", taskQueue,
		"metrics", registry.Len(),
		"roster_size", len(roster))

	return w.Run(sdkworker.InterruptCh())
}
