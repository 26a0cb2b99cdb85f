package domain

// Scorecard maps pillar names to numeric values on the 0-10 scale.
// A metric absent from the map is null: the worker (or the aggregate)
// abstained from scoring it. Null is represented by absence, never by zero,
// so an aggregated value of 0 always means "scored zero", not "no data".
type Scorecard map[Metric]float64

// Value returns the metric's value and whether it is present (non-null).
func (s Scorecard) Value(m Metric) (float64, bool) {
	v, ok := s[m]
	return v, ok
}

// Clone returns an independent copy of the scorecard.
// Returns nil for a nil scorecard.
func (s Scorecard) Clone() Scorecard {
	if s == nil {
		return nil
	}
	out := make(Scorecard, len(s))
	for m, v := range s {
		out[m] = v
	}
	return out
}

// Sanitized returns a copy containing only metrics present in the registry.
// Keys outside the registry are stripped; values are untouched. This clamps
// worker output to the configured rubric before it enters aggregation.
func (s Scorecard) Sanitized(registry *MetricRegistry) Scorecard {
	out := make(Scorecard, len(s))
	for m, v := range s {
		if registry.Contains(m) {
			out[m] = v
		}
	}
	return out
}

// MissingRequired returns the non-nullable registry metrics that are null
// in this scorecard, in registry order. A non-empty return marks a worker
// result invalid.
func (s Scorecard) MissingRequired(registry *MetricRegistry) []Metric {
	var missing []Metric
	for _, spec := range registry.specs {
		if spec.Nullable {
			continue
		}
		if _, ok := s[spec.Name]; !ok {
			missing = append(missing, spec.Name)
		}
	}
	return missing
}

// IdenticalOver reports whether two scorecards carry identical values for
// every metric in the registry, where two nulls count as identical. Metrics
// outside the registry are ignored. This is the opt-out stability test: a
// worker whose card stops changing between rounds has nothing left to say.
func (s Scorecard) IdenticalOver(other Scorecard, registry *MetricRegistry) bool {
	for _, spec := range registry.specs {
		v1, ok1 := s[spec.Name]
		v2, ok2 := other[spec.Name]
		if ok1 != ok2 {
			return false
		}
		if ok1 && v1 != v2 {
			return false
		}
	}
	return true
}
