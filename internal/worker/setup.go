package worker

import (
	"context"
	"fmt"
	"os"

	genai "google.golang.org/genai"

	"github.com/ahrav/go-quorum/internal/config"
	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/reviewer"
)

// LoadRubric loads the metric registry and weight table from the path in
// QUORUM_RUBRIC, falling back to the built-in defaults when unset. Returned
// for dependency injection rather than stored in global state.
func LoadRubric() (*domain.MetricRegistry, *domain.WeightTable, error) {
	path := os.Getenv("QUORUM_RUBRIC")
	if path == "" {
		return domain.DefaultRegistry(), domain.DefaultWeightTable(), nil
	}

	registry, weights, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load rubric: %w", err)
	}
	return registry, weights, nil
}

// personaFocus describes each stock persona's review lens for the prompt.
var personaFocus = map[domain.RoleKey]string{
	domain.RoleArchitect:          "structural soundness, module boundaries, and long-term design direction",
	domain.RoleSecurityAuditor:    "security vulnerabilities, unsafe input handling, and secret exposure",
	domain.RolePerformanceAnalyst: "algorithmic complexity, allocations, and hot-path efficiency",
	domain.RoleQualityReviewer:    "readability, idiomatic style, and maintainability",
	domain.RoleTestEngineer:       "test coverage, edge cases, and regression risk",
}

// InitializeRoster builds the stock five-persona Gemini roster over one
// shared API client. Model selection comes from QUORUM_MODEL; the Gemini
// API key comes from the environment, as the genai client expects.
func InitializeRoster(ctx context.Context, registry *domain.MetricRegistry) ([]domain.Worker, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	model := os.Getenv("QUORUM_MODEL")
	roles := []domain.RoleKey{
		domain.RoleArchitect,
		domain.RoleSecurityAuditor,
		domain.RolePerformanceAnalyst,
		domain.RoleQualityReviewer,
		domain.RoleTestEngineer,
	}

	roster := make([]domain.Worker, 0, len(roles))
	for _, role := range roles {
		roster = append(roster, reviewer.NewGeminiReviewer(
			client,
			model,
			string(role),
			role,
			personaFocus[role],
			registry,
		))
	}
	return roster, nil
}
