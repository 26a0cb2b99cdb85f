package discussion

import (
	"fmt"

	"github.com/ahrav/go-quorum/internal/domain"
)

// AggregationWarning flags a primary-authority role that abstained from the
// metric it is primary for. Warnings are diagnostics only; they never block
// aggregation.
type AggregationWarning struct {
	Metric domain.Metric  `json:"metric"`
	Role   domain.RoleKey `json:"role"`
	Weight float64        `json:"weight"`
}

// String renders the warning for logs.
func (w AggregationWarning) String() string {
	return fmt.Sprintf("primary role %s (weight %.2f) returned null for %s", w.Role, w.Weight, w.Metric)
}

// Aggregate combines all workers' scorecards for a round into one aggregated
// scorecard using the weight table.
//
// For each registry metric, the aggregated value is the weighted mean over
// the roles that actually contributed a value:
//
//	sum(value_i * weight(role_i, M)) / sum(weight(role_i, M))
//
// Roles returning null for M are excluded from both numerator and
// denominator, so a metric's value is never diluted by abstentions. A metric
// with no contributors is absent from the output, never zero.
//
// Aggregate is a pure function: deterministic for identical inputs, with no
// ordering sensitivity beyond floating-point summation order (results are
// folded in registry-then-input order).
func Aggregate(
	results []domain.WorkerResult,
	weights *domain.WeightTable,
	registry *domain.MetricRegistry,
) (domain.Scorecard, []AggregationWarning) {
	card := make(domain.Scorecard, registry.Len())
	var warnings []AggregationWarning

	for _, metric := range registry.Metrics() {
		var weightedSum, weightSum float64
		for _, res := range results {
			value, ok := res.Scorecard.Value(metric)
			if !ok {
				if weights.IsPrimary(res.Role, metric) {
					warnings = append(warnings, AggregationWarning{
						Metric: metric,
						Role:   res.Role,
						Weight: weights.Weight(res.Role, metric),
					})
				}
				continue
			}
			w := weights.Weight(res.Role, metric)
			weightedSum += value * w
			weightSum += w
		}

		if weightSum > 0 {
			card[metric] = weightedSum / weightSum
		}
	}

	return card, warnings
}
