package discussion

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/reviewer"
)

// countingWorker wraps a scripted worker and counts Execute invocations.
type countingWorker struct {
	*reviewer.ScriptedWorker
	calls atomic.Int64
}

func (c *countingWorker) Execute(ctx context.Context, ec domain.EvalContext) (*domain.WorkerResult, error) {
	c.calls.Add(1)
	return c.ScriptedWorker.Execute(ctx, ec)
}

// scriptedRounds builds a worker whose summary and scorecard can vary per
// round; the last entry repeats once the script is exhausted.
func scripted(id string, role domain.RoleKey, rounds ...domain.WorkerResult) *countingWorker {
	return &countingWorker{
		ScriptedWorker: &reviewer.ScriptedWorker{
			WorkerID:   id,
			WorkerRole: role,
			Script:     rounds,
		},
	}
}

func entry(summary string, card domain.Scorecard) domain.WorkerResult {
	return domain.WorkerResult{
		Summary:         summary,
		Scorecard:       card,
		ConfidenceScore: 80,
		Usage:           domain.ResourceUsage{InputUnits: 100, OutputUnits: 50, CostCents: 2},
	}
}

func diffContext() domain.EvalContext {
	return domain.EvalContext{
		Diff:         "--- a/parser.go\n+++ b/parser.go\n@@ -1 +1 @@\n-old\n+new\n",
		ChangedFiles: []string{"parser.go"},
	}
}

func testController(t *testing.T) *Controller {
	t.Helper()
	return NewController(domain.DefaultRegistry(), domain.DefaultWeightTable())
}

func TestEvaluateControllerFaults(t *testing.T) {
	ctrl := testController(t)

	t.Run("config fault aborts before any round", func(t *testing.T) {
		w := scripted("a", domain.RoleArchitect, entry("fine", nil))
		cfg := domain.DefaultDiscussionConfig()
		cfg.MinRounds = 4
		cfg.MaxRounds = 2

		report, err := ctrl.Evaluate(context.Background(), diffContext(), []domain.Worker{w}, cfg)

		require.ErrorIs(t, err, domain.ErrInvalidConfig)
		assert.Nil(t, report)
		assert.Zero(t, w.calls.Load(), "no worker may run under a config fault")
	})

	t.Run("empty roster rejected", func(t *testing.T) {
		_, err := ctrl.Evaluate(context.Background(), diffContext(), nil, domain.DefaultDiscussionConfig())
		require.ErrorIs(t, err, domain.ErrEmptyRoster)
	})

	t.Run("missing diff rejected", func(t *testing.T) {
		w := scripted("a", domain.RoleArchitect, entry("fine", nil))
		_, err := ctrl.Evaluate(context.Background(), domain.EvalContext{}, []domain.Worker{w}, domain.DefaultDiscussionConfig())
		require.Error(t, err, "an empty diff cannot be evaluated")
	})
}

// Five workers, maxRounds=3, minRounds=2, threshold=0.85. Round 1 repeats
// round 0's prose with a small score drift, clearing the threshold, so the
// discussion stops after two rounds with ten results and round 2 never
// executes.
func TestEvaluateEarlyConvergence(t *testing.T) {
	ctrl := testController(t)

	roster := make([]domain.Worker, 0, 5)
	counters := make([]*countingWorker, 0, 5)
	roles := []domain.RoleKey{
		domain.RoleArchitect,
		domain.RoleSecurityAuditor,
		domain.RolePerformanceAnalyst,
		domain.RoleQualityReviewer,
		domain.RoleTestEngineer,
	}
	for i, role := range roles {
		id := string(role)
		w := scripted(id, role,
			entry("well structured change with thorough tests", domain.Scorecard{domain.MetricSecurity: 7 + float64(i)*0.1}),
			entry("well structured change with thorough tests", domain.Scorecard{domain.MetricSecurity: 7.2 + float64(i)*0.1}),
			entry("should never run", domain.Scorecard{domain.MetricSecurity: 1}),
		)
		counters = append(counters, w)
		roster = append(roster, w)
	}

	cfg := domain.DiscussionConfig{
		MaxRounds:            3,
		MinRounds:            2,
		ConvergenceThreshold: 0.85,
	}

	report, err := ctrl.Evaluate(context.Background(), diffContext(), roster, cfg)
	require.NoError(t, err)

	assert.True(t, report.Converged)
	require.Len(t, report.History, 2, "round 2 must never execute")
	assert.Equal(t, 2, report.RoundsRun)
	assert.Equal(t, 10, report.History.TotalResults(), "5 workers times 2 rounds")
	assert.False(t, report.History[0].Convergence.Converged,
		"round 0 has no previous round and cannot converge")
	assert.True(t, report.History[1].Convergence.Converged)
	assert.GreaterOrEqual(t, report.History[1].Convergence.Score, 0.85)

	for _, w := range counters {
		assert.Equal(t, int64(2), w.calls.Load(), "each worker runs exactly twice")
	}

	// Usage: 10 calls at 100/50/2 each.
	assert.Equal(t, domain.ResourceUsage{InputUnits: 1000, OutputUnits: 500, CostCents: 20},
		report.TotalUsage)
	assert.InDelta(t, 80.0, report.MeanConfidence, 1e-12)
}

func TestEvaluateMinRoundGate(t *testing.T) {
	ctrl := testController(t)

	// Identical prose with a hairline score drift each round: convergence
	// clears the threshold from round 1 on, but the drift keeps the worker
	// from opting out. With minRounds=3 the gate must force a third round
	// even though round 1 already converged.
	w := scripted("a", domain.RoleArchitect,
		entry("identical assessment every round", domain.Scorecard{domain.MetricArchitecture: 8}),
		entry("identical assessment every round", domain.Scorecard{domain.MetricArchitecture: 8.05}),
		entry("identical assessment every round", domain.Scorecard{domain.MetricArchitecture: 8.1}),
	)

	cfg := domain.DiscussionConfig{
		MaxRounds:            5,
		MinRounds:            3,
		ConvergenceThreshold: 0.85,
	}

	report, err := ctrl.Evaluate(context.Background(), diffContext(), []domain.Worker{w}, cfg)
	require.NoError(t, err)

	assert.True(t, report.Converged)
	assert.Len(t, report.History, 3, "convergence before the gate must not stop the discussion")
	assert.True(t, report.History[1].Convergence.Converged,
		"round 1 already met the threshold; only the gate kept going")
}

func TestEvaluateMaxRoundsCeiling(t *testing.T) {
	ctrl := testController(t)

	// Wildly different prose each round: never converges.
	w := scripted("a", domain.RoleArchitect,
		entry("concerns about module boundaries everywhere", domain.Scorecard{domain.MetricArchitecture: 3}),
		entry("completely revised opinion after seeing responses", domain.Scorecard{domain.MetricArchitecture: 9}),
		entry("splitting difference final verdict remains unclear", domain.Scorecard{domain.MetricArchitecture: 5}),
	)

	cfg := domain.DiscussionConfig{
		MaxRounds:            3,
		MinRounds:            1,
		ConvergenceThreshold: 0.99,
	}

	report, err := ctrl.Evaluate(context.Background(), diffContext(), []domain.Worker{w}, cfg)
	require.NoError(t, err)

	assert.False(t, report.Converged)
	assert.Len(t, report.History, 3, "the ceiling bounds the discussion")
}

func TestEvaluateOptOutPermanence(t *testing.T) {
	ctrl := testController(t)

	// "settled" repeats its card from round 0, so it opts out after round 1.
	settled := scripted("settled", domain.RoleSecurityAuditor,
		entry("no security impact detected", domain.Scorecard{domain.MetricSecurity: 9}))

	// "restless" changes prose and scores every round to keep the
	// discussion from converging.
	restless := scripted("restless", domain.RoleQualityReviewer,
		entry("naming is inconsistent across handlers", domain.Scorecard{domain.MetricCodeQuality: 4}),
		entry("revised after discussion still worried elsewhere", domain.Scorecard{domain.MetricCodeQuality: 7}),
		entry("final position splitting disagreement remains", domain.Scorecard{domain.MetricCodeQuality: 5}),
	)

	cfg := domain.DiscussionConfig{
		MaxRounds:            3,
		MinRounds:            1,
		ConvergenceThreshold: 0.999,
	}

	report, err := ctrl.Evaluate(context.Background(), diffContext(),
		[]domain.Worker{settled, restless}, cfg)
	require.NoError(t, err)

	require.Len(t, report.History, 3)
	assert.Equal(t, int64(2), settled.calls.Load(),
		"an opted-out worker is never invoked again, CanExecute notwithstanding")
	assert.Equal(t, int64(3), restless.calls.Load())

	assert.Len(t, report.History[1].Results, 2,
		"the stable round's own record is retained in history")
	assert.Len(t, report.History[2].Results, 1,
		"round 2 runs without the opted-out worker")
}

func TestEvaluatePersistentFailure(t *testing.T) {
	ctrl := testController(t)

	failing := &countingWorker{ScriptedWorker: &reviewer.ScriptedWorker{
		WorkerID:   "broken",
		WorkerRole: domain.RoleTestEngineer,
		Err:        errors.New("api quota exhausted"),
	}}
	healthy := scripted("healthy", domain.RoleArchitect,
		entry("looks reasonable first pass", domain.Scorecard{domain.MetricArchitecture: 7}),
		entry("confirming initial reasonable assessment", domain.Scorecard{domain.MetricArchitecture: 7.5}),
	)

	cfg := domain.DiscussionConfig{
		MaxRounds:            2,
		MinRounds:            1,
		ConvergenceThreshold: 0.999,
	}

	report, err := ctrl.Evaluate(context.Background(), diffContext(),
		[]domain.Worker{failing, healthy}, cfg)
	require.NoError(t, err, "per-worker failures never abort the evaluation")

	require.Len(t, report.History, 2)
	for _, rec := range report.History {
		assert.Contains(t, rec.Failures, "broken", "each round reports the failure")
		require.Len(t, rec.Results, 1)
		assert.Equal(t, "healthy", rec.Results[0].WorkerID)
	}
	assert.Equal(t, int64(2), failing.calls.Load(),
		"a failing worker is retried next round, not excluded")
}

func TestEvaluateAllWorkersFail(t *testing.T) {
	ctrl := testController(t)

	roster := []domain.Worker{
		&countingWorker{ScriptedWorker: &reviewer.ScriptedWorker{
			WorkerID: "b1", WorkerRole: domain.RoleArchitect, Err: errors.New("down"),
		}},
		&countingWorker{ScriptedWorker: &reviewer.ScriptedWorker{
			WorkerID: "b2", WorkerRole: domain.RoleTestEngineer, Err: errors.New("down"),
		}},
	}

	cfg := domain.DiscussionConfig{
		MaxRounds:            2,
		MinRounds:            1,
		ConvergenceThreshold: 0.85,
	}

	report, err := ctrl.Evaluate(context.Background(), diffContext(), roster, cfg)
	require.NoError(t, err, "an all-failed round must not crash the controller")

	require.Len(t, report.History, 2)
	for _, rec := range report.History {
		assert.Empty(t, rec.Results)
		assert.Empty(t, rec.Aggregated, "no contributors means an empty scorecard")
		assert.Equal(t, []string{"b1", "b2"}, rec.Failures,
			"the situation surfaces to the caller through the history")
	}
	assert.False(t, report.Converged)
	assert.Empty(t, report.FinalScorecard)
}

func TestEvaluateSkipsDecliningWorkers(t *testing.T) {
	ctrl := testController(t)

	declining := &countingWorker{ScriptedWorker: &reviewer.ScriptedWorker{
		WorkerID:   "decliner",
		WorkerRole: domain.RoleSecurityAuditor,
		Refuse:     true,
		Script:     []domain.WorkerResult{entry("should not run", nil)},
	}}
	active := scripted("active", domain.RoleArchitect,
		entry("straightforward mechanical refactor", domain.Scorecard{domain.MetricArchitecture: 8}))

	cfg := domain.DiscussionConfig{MaxRounds: 2, MinRounds: 1, ConvergenceThreshold: 0.9}

	report, err := ctrl.Evaluate(context.Background(), diffContext(),
		[]domain.Worker{declining, active}, cfg)
	require.NoError(t, err)

	assert.Zero(t, declining.calls.Load(), "CanExecute=false workers are never invoked")
	assert.NotContains(t, report.History[0].Failures, "decliner",
		"declining is not a failure")
}

func TestEvaluateRoundContextPropagation(t *testing.T) {
	ctrl := testController(t)

	var contexts []domain.EvalContext
	recorder := &contextRecorder{
		id:   "recorder",
		role: domain.RoleArchitect,
		seen: &contexts,
	}
	peer := scripted("peer", domain.RoleSecurityAuditor,
		entry("injection risk in query builder", domain.Scorecard{domain.MetricSecurity: 3}),
		entry("risk acknowledged by peers escalating severity", domain.Scorecard{domain.MetricSecurity: 2}),
	)
	peer.Script[0].Concerns = []string{"unparameterized SQL in query builder"}

	cfg := domain.DiscussionConfig{MaxRounds: 2, MinRounds: 2, ConvergenceThreshold: 0.99}

	_, err := ctrl.Evaluate(context.Background(), diffContext(),
		[]domain.Worker{recorder, peer}, cfg)
	require.NoError(t, err)

	require.Len(t, contexts, 2)

	round0, round1 := contexts[0], contexts[1]
	assert.Equal(t, 0, round0.RoundIndex)
	assert.Empty(t, round0.PriorResults, "round 0 has no prior results")
	assert.Empty(t, round0.PeerConcerns)
	assert.False(t, round0.IsFinalRound)

	assert.Equal(t, 1, round1.RoundIndex)
	assert.True(t, round1.IsFinalRound, "round maxRounds-1 is flagged final")
	assert.Len(t, round1.PriorResults, 2, "both round-0 results are visible to round 1")
	assert.Equal(t, []string{"unparameterized SQL in query builder"}, round1.PeerConcerns,
		"concerns raised in round 0 are routed into round 1")
}

// contextRecorder captures every EvalContext it is executed with.
type contextRecorder struct {
	id   string
	role domain.RoleKey
	seen *[]domain.EvalContext
}

func (c *contextRecorder) ID() string { return c.id }

func (c *contextRecorder) Role() domain.RoleKey { return c.role }

func (c *contextRecorder) CanExecute(context.Context, domain.EvalContext) bool { return true }

func (c *contextRecorder) Execute(_ context.Context, ec domain.EvalContext) (*domain.WorkerResult, error) {
	*c.seen = append(*c.seen, ec)
	return &domain.WorkerResult{
		Summary:   "recorded round observations carefully",
		Scorecard: domain.Scorecard{domain.MetricArchitecture: 6},
	}, nil
}

func TestEvaluateProgressSink(t *testing.T) {
	var updates []ProgressUpdate
	ctrl := NewController(domain.DefaultRegistry(), domain.DefaultWeightTable(),
		WithProgress(func(u ProgressUpdate) { updates = append(updates, u) }))

	w := scripted("a", domain.RoleArchitect,
		entry("steady assessment from the architect", domain.Scorecard{domain.MetricArchitecture: 8}))

	cfg := domain.DiscussionConfig{MaxRounds: 2, MinRounds: 1, ConvergenceThreshold: 0.85}

	report, err := ctrl.Evaluate(context.Background(), diffContext(), []domain.Worker{w}, cfg)
	require.NoError(t, err)

	require.Len(t, updates, report.RoundsRun, "one update per round")
	for i, u := range updates {
		assert.Equal(t, i, u.RoundIndex)
		assert.Equal(t, 2, u.MaxRounds)
		assert.Equal(t, 1, u.ResultsCount)
	}
	assert.Equal(t, report.History[len(report.History)-1].Convergence,
		updates[len(updates)-1].Convergence)

	assert.Empty(t, updates[0].OptedOut, "nobody can stabilize in round 0")
	assert.Equal(t, []string{"a"}, updates[1].OptedOut,
		"the repeating worker's opt-out is reported on its stable round")
}

func TestEvaluateContextCancellation(t *testing.T) {
	ctrl := testController(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := scripted("a", domain.RoleArchitect, entry("fine", nil))
	_, err := ctrl.Evaluate(ctx, diffContext(), []domain.Worker{w},
		domain.DefaultDiscussionConfig())
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, w.calls.Load(), "a cancelled context stops the discussion between rounds")
}

// A controller may be reused for back-to-back discussions. The second
// discussion reuses the first's worker IDs and round indexes, so it must be
// judged on its own texts rather than anything retained from the first run.
func TestEvaluateControllerReuse(t *testing.T) {
	ctrl := testController(t)
	cfg := domain.DiscussionConfig{MaxRounds: 2, MinRounds: 1, ConvergenceThreshold: 0.85}

	divergentRoster := func() []domain.Worker {
		return []domain.Worker{scripted("a", domain.RoleArchitect,
			entry("serious layering violations across the new handlers", domain.Scorecard{domain.MetricArchitecture: 2}),
			entry("unrelated worries about allocation churn instead", domain.Scorecard{domain.MetricArchitecture: 9}),
		)}
	}

	settled := scripted("a", domain.RoleArchitect,
		entry("stable opinion repeated verbatim", domain.Scorecard{domain.MetricArchitecture: 8}))
	first, err := ctrl.Evaluate(context.Background(), diffContext(), []domain.Worker{settled}, cfg)
	require.NoError(t, err)
	require.True(t, first.Converged)

	second, err := ctrl.Evaluate(context.Background(), diffContext(), divergentRoster(), cfg)
	require.NoError(t, err)

	baseline, err := testController(t).Evaluate(context.Background(), diffContext(), divergentRoster(), cfg)
	require.NoError(t, err)

	assert.False(t, second.Converged,
		"a diverging discussion must not look converged because an earlier one did")
	assert.Equal(t, baseline.History[1].Convergence, second.History[1].Convergence,
		"the same roster must score identically on a reused and a fresh controller")
}

func TestResume(t *testing.T) {
	t.Run("continues a checkpointed discussion", func(t *testing.T) {
		ctrl := testController(t)

		w := scripted("a", domain.RoleArchitect,
			entry("same considered opinion both rounds", domain.Scorecard{domain.MetricArchitecture: 8}))

		cfg := domain.DiscussionConfig{MaxRounds: 3, MinRounds: 1, ConvergenceThreshold: 0.85}

		// Fabricate the checkpoint a crashed run would have left after
		// round 0.
		round0 := domain.RoundRecord{
			RoundIndex: 0,
			Results: []domain.WorkerResult{{
				WorkerID:   "a",
				Role:       domain.RoleArchitect,
				RoundIndex: 0,
				Summary:    "same considered opinion both rounds",
				Scorecard:  domain.Scorecard{domain.MetricArchitecture: 8},
			}},
			Aggregated: domain.Scorecard{domain.MetricArchitecture: 8},
		}
		state := domain.NewDiscussionState(cfg)
		state.AppendHistory(round0)
		state.ReplaceCurrentRoundResults(round0.Results)
		state.ReplaceAggregate(round0.Aggregated)
		state.RoundIndex = 1

		report, err := ctrl.Resume(context.Background(), state, diffContext(), []domain.Worker{w})
		require.NoError(t, err)

		assert.True(t, report.Converged, "round 1 repeats round 0 and converges")
		assert.Len(t, report.History, 2, "resumed history includes the checkpointed round")
		assert.Equal(t, int64(1), w.calls.Load(), "completed rounds are never re-run")
	})

	t.Run("rejects missing diff", func(t *testing.T) {
		ctrl := testController(t)
		state := domain.NewDiscussionState(domain.DefaultDiscussionConfig())

		_, err := ctrl.Resume(context.Background(), state, domain.EvalContext{},
			[]domain.Worker{scripted("a", domain.RoleArchitect, entry("x", nil))})
		require.Error(t, err, "resume validates the evaluation context like a fresh run")
	})

	t.Run("rejects terminal state", func(t *testing.T) {
		ctrl := testController(t)
		state := domain.NewDiscussionState(domain.DefaultDiscussionConfig())
		state.Phase = domain.PhaseDone

		_, err := ctrl.Resume(context.Background(), state, diffContext(),
			[]domain.Worker{scripted("a", domain.RoleArchitect, entry("x", nil))})
		require.ErrorIs(t, err, domain.ErrDiscussionDone)
	})

	t.Run("rejects inconsistent state", func(t *testing.T) {
		ctrl := testController(t)
		state := domain.NewDiscussionState(domain.DefaultDiscussionConfig())
		state.RoundIndex = 2 // no history to back it

		_, err := ctrl.Resume(context.Background(), state, diffContext(),
			[]domain.Worker{scripted("a", domain.RoleArchitect, entry("x", nil))})
		require.ErrorIs(t, err, domain.ErrInvalidState)
	})
}

func TestEvaluateAllWorkersOptedOut(t *testing.T) {
	ctrl := testController(t)

	// Both workers freeze after round 0, opting out together in round 1.
	// With a threshold no round can meet, the discussion must still end
	// once nobody is left to invoke.
	a := scripted("a", domain.RoleArchitect,
		entry("assessment alpha variant one", domain.Scorecard{domain.MetricArchitecture: 8}))
	b := scripted("b", domain.RoleTestEngineer,
		entry("assessment beta variant two", domain.Scorecard{domain.MetricTestCoverage: 6}))

	cfg := domain.DiscussionConfig{MaxRounds: 5, MinRounds: 1, ConvergenceThreshold: 1.0}

	report, err := ctrl.Evaluate(context.Background(), diffContext(),
		[]domain.Worker{a, b}, cfg)
	require.NoError(t, err)

	require.Len(t, report.History, 2,
		"discussion ends once the whole roster opts out")
	assert.Equal(t, int64(2), a.calls.Load())
	assert.Equal(t, int64(2), b.calls.Load())
}

// History completeness: records equal rounds run, and summed results equal
// total valid invocations even with a flaky mid-roster worker.
func TestEvaluateHistoryCompleteness(t *testing.T) {
	ctrl := testController(t)

	flaky := &countingWorker{ScriptedWorker: &reviewer.ScriptedWorker{
		WorkerID:   "flaky",
		WorkerRole: domain.RoleSecurityAuditor,
		Err:        errors.New("intermittent"),
	}}
	a := scripted("a", domain.RoleArchitect,
		entry("commentary round one alpha", domain.Scorecard{domain.MetricArchitecture: 2}),
		entry("different commentary beta round", domain.Scorecard{domain.MetricArchitecture: 9}),
		entry("third completely novel gamma thoughts", domain.Scorecard{domain.MetricArchitecture: 5}),
	)

	cfg := domain.DiscussionConfig{MaxRounds: 3, MinRounds: 1, ConvergenceThreshold: 0.999}

	report, err := ctrl.Evaluate(context.Background(), diffContext(),
		[]domain.Worker{flaky, a}, cfg)
	require.NoError(t, err)

	assert.Equal(t, len(report.History), report.RoundsRun)
	assert.Equal(t, 3, report.History.TotalResults(),
		"one valid result per round from the healthy worker")
}
