// Package config loads the metric registry and weight table from YAML so
// deployments can run custom rubrics. Configuration is loaded once at
// startup and injected into the controller; nothing reads it ambiently.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-quorum/internal/domain"
)

// Rubric is the on-disk shape of a review rubric: the ordered pillar list
// and the per-role expertise weights.
//
// Example:
//
//	metrics:
//	  - name: security
//	    nullable: true
//	weights:
//	  security_auditor:
//	    security: 0.95
type Rubric struct {
	Metrics []domain.MetricSpec                          `yaml:"metrics"`
	Weights map[domain.RoleKey]map[domain.Metric]float64 `yaml:"weights"`
}

// Load reads a rubric file and constructs the registry and weight table.
// Fails on unknown YAML fields so typos surface at startup, not as silently
// defaulted weights.
func Load(path string) (*domain.MetricRegistry, *domain.WeightTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read rubric %s: %w", path, err)
	}
	return Parse(data)
}

// Parse constructs the registry and weight table from raw YAML.
func Parse(data []byte) (*domain.MetricRegistry, *domain.WeightTable, error) {
	var rubric Rubric
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rubric); err != nil {
		return nil, nil, fmt.Errorf("parse rubric: %w", err)
	}

	registry, err := domain.NewMetricRegistry(rubric.Metrics)
	if err != nil {
		return nil, nil, fmt.Errorf("rubric metrics: %w", err)
	}

	// Reject weights that reference pillars outside the rubric.
	for role, row := range rubric.Weights {
		for metric := range row {
			if !registry.Contains(metric) {
				return nil, nil, fmt.Errorf("rubric weights: role %s references unknown metric %q", role, metric)
			}
		}
	}

	weights, err := domain.NewWeightTable(rubric.Weights)
	if err != nil {
		return nil, nil, fmt.Errorf("rubric weights: %w", err)
	}

	return registry, weights, nil
}
