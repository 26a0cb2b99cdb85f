// Package workflow implements the Temporal workflow definitions for the
// go-quorum discussion engine.
//
// The workflow layer is deliberately thin: the discussion controller is an
// ordinary library with its own state machine, so the workflow's job is to
// validate the request, establish activity options sized to the discussion
// bounds, and hand the run to the RunDiscussion activity. Temporal provides
// the bounded worker pool that evaluates many diffs concurrently; each
// activity invocation owns one controller instance and shares no state.
//
// Workflow code uses only workflow-safe APIs: no wall-clock time, no
// external I/O, no shared mutable state.
package workflow
