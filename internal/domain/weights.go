package domain

import (
	"errors"
	"fmt"
	"sort"
)

// RoleKey identifies a reviewer persona (e.g. "architect", "security_auditor").
// Weights are keyed by role rather than worker ID so that multiple workers
// sharing a persona contribute with the same expertise profile.
type RoleKey string

// Standard reviewer roles for the default weight table.
const (
	RoleArchitect          RoleKey = "architect"
	RoleSecurityAuditor    RoleKey = "security_auditor"
	RolePerformanceAnalyst RoleKey = "performance_analyst"
	RoleQualityReviewer    RoleKey = "quality_reviewer"
	RoleTestEngineer       RoleKey = "test_engineer"
)

const (
	// DefaultWeight applies when a (role, metric) pair has no explicit entry.
	// A neutral 0.5 keeps unlisted roles contributing without dominating.
	DefaultWeight = 0.5

	// PrimaryWeightThreshold marks a role as the primary authority for a
	// metric. A primary role abstaining from its metric triggers a
	// non-fatal aggregation warning.
	PrimaryWeightThreshold = 0.4
)

// ErrWeightOutOfRange indicates a configured weight outside [0,1].
var ErrWeightOutOfRange = errors.New("weight must be in [0,1]")

// WeightTable holds per-role, per-metric relative expertise weights in [0,1].
// It is static configuration: loaded once, read-only for the lifetime of the
// process, and injected into the aggregator rather than looked up ambiently.
type WeightTable struct {
	weights map[RoleKey]map[Metric]float64
}

// NewWeightTable builds a weight table from explicit entries, validating
// every weight against [0,1]. The input map is deep-copied so later caller
// mutations cannot alias into the table.
func NewWeightTable(entries map[RoleKey]map[Metric]float64) (*WeightTable, error) {
	copied := make(map[RoleKey]map[Metric]float64, len(entries))
	for role, metrics := range entries {
		row := make(map[Metric]float64, len(metrics))
		for metric, w := range metrics {
			if w < 0 || w > 1 {
				return nil, fmt.Errorf("%w: %s/%s = %v", ErrWeightOutOfRange, role, metric, w)
			}
			row[metric] = w
		}
		copied[role] = row
	}
	return &WeightTable{weights: copied}, nil
}

// DefaultWeightTable returns the stock expertise profile for the five
// standard reviewer roles over the default 8-pillar rubric.
func DefaultWeightTable() *WeightTable {
	table, err := NewWeightTable(map[RoleKey]map[Metric]float64{
		RoleArchitect: {
			MetricArchitecture:    0.9,
			MetricMaintainability: 0.7,
			MetricDebtReduction:   0.6,
			MetricCodeQuality:     0.4,
		},
		RoleSecurityAuditor: {
			MetricSecurity:    0.95,
			MetricCodeQuality: 0.3,
		},
		RolePerformanceAnalyst: {
			MetricPerformance:  0.9,
			MetricArchitecture: 0.3,
		},
		RoleQualityReviewer: {
			MetricCodeQuality:     0.85,
			MetricMaintainability: 0.6,
			MetricDocumentation:   0.55,
		},
		RoleTestEngineer: {
			MetricTestCoverage:  0.9,
			MetricCodeQuality:   0.4,
			MetricDocumentation: 0.35,
		},
	})
	if err != nil {
		// The default entries are statically valid.
		panic(err)
	}
	return table
}

// Weight returns the expertise weight for a (role, metric) pair, falling
// back to DefaultWeight when no explicit entry exists.
func (t *WeightTable) Weight(role RoleKey, metric Metric) float64 {
	if row, ok := t.weights[role]; ok {
		if w, ok := row[metric]; ok {
			return w
		}
	}
	return DefaultWeight
}

// IsPrimary reports whether the role is a primary authority for the metric:
// an explicitly configured weight at or above PrimaryWeightThreshold. The
// DefaultWeight fallback never makes a role primary; a pair nobody configured
// expresses no authority, and warning on its abstention would flag nearly
// every null in a round.
func (t *WeightTable) IsPrimary(role RoleKey, metric Metric) bool {
	row, ok := t.weights[role]
	if !ok {
		return false
	}
	w, ok := row[metric]
	return ok && w >= PrimaryWeightThreshold
}

// Roles returns the explicitly configured roles in sorted order.
func (t *WeightTable) Roles() []RoleKey {
	roles := make([]RoleKey, 0, len(t.weights))
	for role := range t.weights {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
