package discussion

import "github.com/ahrav/go-quorum/internal/domain"

// DetectStable reports whether a worker's scorecard is bit-identical to the
// same worker's previous-round scorecard over every registry metric, where
// two nulls count as identical. A worker with no previous result is never
// stable: the first round never opts anyone out.
func DetectStable(current domain.WorkerResult, previous *domain.WorkerResult, registry *domain.MetricRegistry) bool {
	if previous == nil {
		return false
	}
	return current.Scorecard.IdenticalOver(previous.Scorecard, registry)
}

// StableWorkers returns the IDs of workers whose current result is stable
// against their own previous-round result, in current-result order. The
// controller unions these into the exclusion set; exclusion is permanent
// for the remainder of the discussion.
func StableWorkers(current, previous []domain.WorkerResult, registry *domain.MetricRegistry) []string {
	if len(previous) == 0 {
		return nil
	}

	prevByWorker := make(map[string]*domain.WorkerResult, len(previous))
	for i := range previous {
		prevByWorker[previous[i].WorkerID] = &previous[i]
	}

	var stable []string
	for i := range current {
		if DetectStable(current[i], prevByWorker[current[i].WorkerID], registry) {
			stable = append(stable, current[i].WorkerID)
		}
	}
	return stable
}
