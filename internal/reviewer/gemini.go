package reviewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	genai "google.golang.org/genai"

	"github.com/ahrav/go-quorum/internal/domain"
)

// ErrEmptyResponse indicates the model returned no usable candidate text.
var ErrEmptyResponse = errors.New("reviewer: empty model response")

// DefaultGeminiModel is the model used when none is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiReviewer is a Worker backed by the Gemini API. Each instance embodies
// one reviewer persona: the role determines the lens the prompt asks the
// model to review through, and the weight table upstream determines how much
// its scores count per pillar.
type GeminiReviewer struct {
	client   *genai.Client
	model    string
	workerID string
	role     domain.RoleKey
	focus    string
	registry *domain.MetricRegistry
}

var _ domain.Worker = (*GeminiReviewer)(nil)

// NewGeminiReviewer creates a reviewer persona over a shared genai client.
// focus is a one-line description of the persona's review lens, embedded in
// the prompt (e.g. "security vulnerabilities and unsafe input handling").
func NewGeminiReviewer(
	client *genai.Client,
	model string,
	workerID string,
	role domain.RoleKey,
	focus string,
	registry *domain.MetricRegistry,
) *GeminiReviewer {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiReviewer{
		client:   client,
		model:    model,
		workerID: workerID,
		role:     role,
		focus:    focus,
		registry: registry,
	}
}

// ID implements domain.Worker.
func (g *GeminiReviewer) ID() string { return g.workerID }

// Role implements domain.Worker.
func (g *GeminiReviewer) Role() domain.RoleKey { return g.role }

// CanExecute accepts any round with a non-empty diff.
func (g *GeminiReviewer) CanExecute(_ context.Context, ec domain.EvalContext) bool {
	return strings.TrimSpace(ec.Diff) != ""
}

// Execute sends the round context to the model and parses its JSON reply
// into a WorkerResult. Transport errors and malformed replies surface as
// errors; the round executor converts them into per-round failures.
func (g *GeminiReviewer) Execute(ctx context.Context, ec domain.EvalContext) (*domain.WorkerResult, error) {
	prompt := g.buildPrompt(ec)

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return nil, fmt.Errorf("reviewer %s: %w", g.workerID, err)
	}
	if len(resp.Candidates) == 0 ||
		resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}

	result, err := parseReview(resp.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, fmt.Errorf("reviewer %s: %w", g.workerID, err)
	}

	if meta := resp.UsageMetadata; meta != nil {
		result.Usage = domain.ResourceUsage{
			InputUnits:  int64(meta.PromptTokenCount),
			OutputUnits: int64(meta.CandidatesTokenCount),
		}
	}
	return result, nil
}

// buildPrompt renders the persona prompt for one round: the diff, the
// pillars to score, and — after round 0 — peers' prior summaries and
// concerns so the model can revise its position.
func (g *GeminiReviewer) buildPrompt(ec domain.EvalContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s reviewing a code change. Focus on %s.\n\n", g.role, g.focus)

	b.WriteString("Score the change on a 0-10 scale for each applicable pillar, ")
	b.WriteString("omitting pillars outside your expertise. Pillars: ")
	for i, m := range g.registry.Metrics() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(m))
	}
	b.WriteString(".\n\n")

	b.WriteString(`Reply with JSON only: {"summary": string, "details": string, ` +
		`"scorecard": {pillar: number}, "concerns": [string], "confidence": 0-100}` + "\n\n")

	if len(ec.PriorResults) > 0 {
		fmt.Fprintf(&b, "This is discussion round %d. Peer assessments from the previous round:\n", ec.RoundIndex+1)
		for _, prior := range ec.PriorResults {
			fmt.Fprintf(&b, "- [%s] %s\n", prior.Role, prior.Summary)
		}
		b.WriteString("\n")
	}
	if len(ec.PeerConcerns) > 0 {
		b.WriteString("Open concerns raised by peers:\n")
		for _, concern := range ec.PeerConcerns {
			fmt.Fprintf(&b, "- %s\n", concern)
		}
		b.WriteString("\n")
	}
	if ec.IsFinalRound {
		b.WriteString("This is the final round: give your closing assessment rather than opening new threads.\n\n")
	}

	if len(ec.ChangedFiles) > 0 {
		fmt.Fprintf(&b, "Changed files: %s\n\n", strings.Join(ec.ChangedFiles, ", "))
	}
	b.WriteString("[DIFF]\n")
	b.WriteString(ec.Diff)
	return b.String()
}

// reviewPayload is the wire shape the prompt asks the model to produce.
type reviewPayload struct {
	Summary    string             `json:"summary"`
	Details    string             `json:"details"`
	Scorecard  map[string]float64 `json:"scorecard"`
	Concerns   []string           `json:"concerns"`
	Confidence int                `json:"confidence"`
}

// parseReview decodes a model reply into a WorkerResult. Identity fields
// (worker ID, role, round) are stamped by the round executor, not here.
func parseReview(raw string) (*domain.WorkerResult, error) {
	var payload reviewPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("invalid review JSON: %w", err)
	}

	card := make(domain.Scorecard, len(payload.Scorecard))
	for name, value := range payload.Scorecard {
		card[domain.Metric(name)] = value
	}

	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 100 {
		confidence = 100
	}

	return &domain.WorkerResult{
		Summary:         payload.Summary,
		Details:         payload.Details,
		Scorecard:       card,
		Concerns:        payload.Concerns,
		ConfidenceScore: confidence,
	}, nil
}
