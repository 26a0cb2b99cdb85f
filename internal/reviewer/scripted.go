// Package reviewer provides Worker implementations for the discussion
// engine: a Gemini-backed reviewer persona and a deterministic scripted
// worker for tests and local development. The discussion core only ever
// sees the domain.Worker interface; nothing here leaks into it.
package reviewer

import (
	"context"

	"github.com/ahrav/go-quorum/internal/domain"
)

// ScriptedWorker replays a fixed sequence of results, one per round, and
// repeats the last entry once the script is exhausted. Because a repeated
// entry is bit-identical to the previous round's, a scripted worker
// naturally opts out after its script runs dry — which makes it useful for
// exercising the full discussion lifecycle without a live model.
type ScriptedWorker struct {
	WorkerID   string
	WorkerRole domain.RoleKey
	Script     []domain.WorkerResult

	// Refuse makes CanExecute reject every round.
	Refuse bool

	// Err, when set, makes every Execute call fail with it.
	Err error
}

var _ domain.Worker = (*ScriptedWorker)(nil)

// ID implements domain.Worker.
func (s *ScriptedWorker) ID() string { return s.WorkerID }

// Role implements domain.Worker.
func (s *ScriptedWorker) Role() domain.RoleKey { return s.WorkerRole }

// CanExecute implements domain.Worker.
func (s *ScriptedWorker) CanExecute(_ context.Context, _ domain.EvalContext) bool {
	return !s.Refuse
}

// Execute returns the scripted result for the round, honoring cancellation.
func (s *ScriptedWorker) Execute(ctx context.Context, ec domain.EvalContext) (*domain.WorkerResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Script) == 0 {
		return &domain.WorkerResult{}, nil
	}

	i := ec.RoundIndex
	if i >= len(s.Script) {
		i = len(s.Script) - 1
	}
	res := s.Script[i].Clone()
	return &res, nil
}
