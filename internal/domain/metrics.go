// Package domain provides core types and business logic for multi-round
// diff-review discussions. It defines the metric registry, role weight table,
// worker result contracts, round records, and the serializable discussion
// state consumed by the discussion controller. The types are designed to
// support reproducible, auditable review sessions with resource tracking.
package domain

import (
	"errors"
	"fmt"
)

// Metric names one independently scored dimension of code-change quality.
// Using a typed string instead of raw strings provides compile-time safety
// and prevents typos from silently creating phantom pillars.
type Metric string

// Standard pillar constants for the default code-review rubric.
const (
	MetricArchitecture    Metric = "architecture"     // Structural soundness of the change
	MetricCodeQuality     Metric = "code_quality"     // Readability and idiomatic style
	MetricSecurity        Metric = "security"         // Absence of exploitable weaknesses
	MetricPerformance     Metric = "performance"      // Runtime and resource efficiency
	MetricMaintainability Metric = "maintainability"  // Ease of future modification
	MetricTestCoverage    Metric = "test_coverage"    // Adequacy of accompanying tests
	MetricDocumentation   Metric = "documentation"    // Quality of comments and docs
	MetricDebtReduction   Metric = "debt_reduction"   // Net effect on technical debt
)

// MetricScale is the nominal upper bound of a pillar value. Scores are
// expressed on a 0-10 scale; the convergence detector normalizes metric
// deltas against this constant.
const MetricScale = 10.0

// Registry-specific errors.
var (
	// ErrEmptyRegistry indicates a registry was constructed with no metrics.
	ErrEmptyRegistry = errors.New("metric registry must contain at least one metric")

	// ErrDuplicateMetric indicates the same metric name appeared twice.
	ErrDuplicateMetric = errors.New("duplicate metric in registry")

	// ErrUnknownMetric indicates a metric name not present in the registry.
	ErrUnknownMetric = errors.New("metric not in registry")
)

// MetricSpec describes a single pillar: its name and whether a worker may
// legitimately abstain from scoring it (nullable).
type MetricSpec struct {
	// Name is the pillar identifier used as the scorecard key.
	Name Metric `json:"name" yaml:"name" validate:"required,min=1"`

	// Nullable marks pillars a worker may skip. A valid result may omit a
	// nullable metric; omitting a required one invalidates the result.
	Nullable bool `json:"nullable" yaml:"nullable"`
}

// MetricRegistry is the fixed ordered set of pillars a scorecard may contain.
// It is constructed once, injected into the controller, and read-only for the
// lifetime of the process. The registry is deliberately configuration, not a
// hardcoded constant, so deployments can run reduced or extended rubrics.
type MetricRegistry struct {
	specs []MetricSpec
	index map[Metric]int
}

// NewMetricRegistry builds a registry from ordered specs.
// Returns ErrEmptyRegistry for empty input and ErrDuplicateMetric when the
// same pillar name appears more than once.
func NewMetricRegistry(specs []MetricSpec) (*MetricRegistry, error) {
	if len(specs) == 0 {
		return nil, ErrEmptyRegistry
	}

	index := make(map[Metric]int, len(specs))
	ordered := make([]MetricSpec, len(specs))
	for i, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: empty name at position %d", ErrUnknownMetric, i)
		}
		if _, exists := index[spec.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateMetric, spec.Name)
		}
		index[spec.Name] = i
		ordered[i] = spec
	}

	return &MetricRegistry{specs: ordered, index: index}, nil
}

// DefaultRegistry returns the standard 8-pillar rubric with every pillar
// nullable. Callers that need stricter rubrics construct their own registry.
func DefaultRegistry() *MetricRegistry {
	reg, err := NewMetricRegistry([]MetricSpec{
		{Name: MetricArchitecture, Nullable: true},
		{Name: MetricCodeQuality, Nullable: true},
		{Name: MetricSecurity, Nullable: true},
		{Name: MetricPerformance, Nullable: true},
		{Name: MetricMaintainability, Nullable: true},
		{Name: MetricTestCoverage, Nullable: true},
		{Name: MetricDocumentation, Nullable: true},
		{Name: MetricDebtReduction, Nullable: true},
	})
	if err != nil {
		// The default specs are statically valid.
		panic(err)
	}
	return reg
}

// Len returns the number of pillars in the registry.
func (r *MetricRegistry) Len() int { return len(r.specs) }

// Contains reports whether the metric is part of the registry.
func (r *MetricRegistry) Contains(m Metric) bool {
	_, ok := r.index[m]
	return ok
}

// Nullable reports whether a worker may omit the metric. Unknown metrics
// report false; callers should check Contains first.
func (r *MetricRegistry) Nullable(m Metric) bool {
	i, ok := r.index[m]
	if !ok {
		return false
	}
	return r.specs[i].Nullable
}

// Metrics returns the pillar names in registry order. The slice is a copy;
// mutating it does not affect the registry.
func (r *MetricRegistry) Metrics() []Metric {
	out := make([]Metric, len(r.specs))
	for i, spec := range r.specs {
		out[i] = spec.Name
	}
	return out
}

// Specs returns a copy of the ordered metric specs.
func (r *MetricRegistry) Specs() []MetricSpec {
	out := make([]MetricSpec, len(r.specs))
	copy(out, r.specs)
	return out
}
