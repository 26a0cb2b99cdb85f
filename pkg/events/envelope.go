// Package events provides the event infrastructure for discussion
// observability. It defines the Envelope type wrapping round-lifecycle
// events with consistent metadata and the EventSink interface events are
// delivered through. Events feed external reporting and projections; they
// are never required for discussion correctness.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Event types emitted over the life of one discussion.
const (
	// TypeRoundCompleted fires after each round's record is appended.
	TypeRoundCompleted = "discussion.round_completed"

	// TypeWorkerOptedOut fires when a worker's scorecard stabilizes and it
	// is excluded from further rounds.
	TypeWorkerOptedOut = "discussion.worker_opted_out"

	// TypeConverged fires when the discussion stops on convergence rather
	// than the round ceiling.
	TypeConverged = "discussion.converged"
)

// SchemaVersion is the current envelope payload schema version.
const SchemaVersion = "1.0.0"

// Envelope wraps discussion events with consistent metadata for reliable
// downstream processing: routing by type, deduplication via idempotency
// keys, and correlation back to the workflow execution that produced them.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type identifies the event for routing (see Type* constants).
	Type string `json:"type"`

	// Source identifies the component that emitted the event.
	Source string `json:"source"`

	// Version enables payload schema evolution.
	Version string `json:"version"`

	// Timestamp records when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey ensures exactly-once processing across retries.
	// Deterministic for a given workflow execution and round.
	IdempotencyKey string `json:"idempotency_key"`

	// WorkflowID and RunID correlate the event to the Temporal execution
	// that ran the discussion. Empty for library-embedded runs.
	WorkflowID string `json:"workflow_id,omitempty"`
	RunID      string `json:"run_id,omitempty"`

	// Payload carries the event-specific data as JSON.
	Payload json.RawMessage `json:"payload"`
}

// EventSink delivers events to downstream consumers: outbox tables, message
// queues, or log outputs. Implementations must treat duplicate idempotency
// keys as no-ops and should return quickly; sink failures must never fail
// the discussion that emitted the event.
type EventSink interface {
	// Append adds an event to the sink with best-effort delivery.
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink discards all events. Useful in tests and when event
// emission is disabled.
type NoOpEventSink struct{}

// NewNoOpEventSink creates a sink that discards everything.
func NewNoOpEventSink() EventSink { return &NoOpEventSink{} }

// Append implements EventSink.
func (n *NoOpEventSink) Append(_ context.Context, _ Envelope) error { return nil }

// MemorySink collects events in memory for tests and local inspection.
// Safe for concurrent use.
type MemorySink struct {
	mu        sync.Mutex
	envelopes []Envelope
	seen      map[string]struct{}
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{seen: make(map[string]struct{})}
}

// Append implements EventSink, deduplicating on idempotency key.
func (m *MemorySink) Append(_ context.Context, envelope Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.seen[envelope.IdempotencyKey]; dup {
		return nil
	}
	m.seen[envelope.IdempotencyKey] = struct{}{}
	m.envelopes = append(m.envelopes, envelope)
	return nil
}

// Events returns a snapshot of the collected envelopes.
func (m *MemorySink) Events() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Envelope, len(m.envelopes))
	copy(out, m.envelopes)
	return out
}
