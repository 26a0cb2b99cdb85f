package domain

import "errors"

// ErrInvalidConfig indicates the discussion configuration violates an
// invariant (e.g. min_rounds > max_rounds). This is a controller fault:
// it aborts the evaluation before any round executes.
var ErrInvalidConfig = errors.New("invalid discussion configuration")

// ErrInvalidState indicates a checkpointed discussion state cannot be
// resumed because its bookkeeping is inconsistent.
var ErrInvalidState = errors.New("invalid discussion state")

// ErrEmptyRoster indicates an evaluation was requested with no workers.
var ErrEmptyRoster = errors.New("worker roster is empty")

// ErrDiscussionDone indicates an attempt to resume a discussion that has
// already reached its terminal phase.
var ErrDiscussionDone = errors.New("discussion already complete")
