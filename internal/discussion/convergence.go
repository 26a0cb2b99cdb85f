package discussion

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ahrav/go-quorum/internal/domain"
)

const (
	// contentWeight and stabilityWeight blend the two similarity signals
	// into the combined convergence score.
	contentWeight   = 0.7
	stabilityWeight = 0.3

	// minWordLength filters short words out of content similarity; only
	// words longer than this many characters are compared.
	minWordLength = 3

	// tokenCacheSize bounds the memoized token sets. Two rounds of a
	// large roster fit comfortably; older entries age out.
	tokenCacheSize = 256
)

// Detector produces a stability score and a converged/not-converged verdict
// by comparing one round's results against the previous round's.
//
// The score is an approximate, explainable heuristic, not a statistically
// rigorous measure: it blends all-pairs Jaccard similarity of result texts
// with the per-metric drift of average scores. A detector is owned by one
// discussion and must not be shared across discussions: its token cache
// memoizes word sets by (worker, round), so a result tokenized as "current"
// in round N is not re-tokenized as "previous" in round N+1, and a reused
// detector would serve a previous discussion's texts for the same keys.
type Detector struct {
	tokens *lru.Cache[string, map[string]struct{}]
}

// NewDetector creates a detector with a warm token cache.
func NewDetector() *Detector {
	cache, err := lru.New[string, map[string]struct{}](tokenCacheSize)
	if err != nil {
		// Size is a positive constant; New cannot fail.
		panic(err)
	}
	return &Detector{tokens: cache}
}

// Detect compares current and previous round results.
//
// With no previous round the verdict is {0, false}: there is nothing to be
// stable against. Otherwise the combined score is
//
//	0.7*contentSimilarity + 0.3*metricStability
//
// where contentSimilarity averages Jaccard word-set similarity over every
// (current, previous) result pair, and metricStability is one minus the
// average normalized drift of per-metric mean scores, over metrics that have
// data in both rounds. Converged iff the combined score meets the threshold.
func (d *Detector) Detect(current, previous []domain.WorkerResult, threshold float64) domain.Convergence {
	if len(previous) == 0 {
		return domain.Convergence{Score: 0, Converged: false}
	}

	similarity := d.contentSimilarity(current, previous)
	stability := metricStability(current, previous)
	score := contentWeight*similarity + stabilityWeight*stability

	return domain.Convergence{
		Score:     score,
		Converged: score >= threshold,
	}
}

// contentSimilarity averages Jaccard similarity over all (current, previous)
// pairs. All-pairs rather than role-matched: the question is whether the
// conversation as a whole has stopped moving, not whether each worker
// repeats itself. Zero pairs (an all-failed round) score 0.
func (d *Detector) contentSimilarity(current, previous []domain.WorkerResult) float64 {
	if len(current) == 0 || len(previous) == 0 {
		return 0
	}

	var sum float64
	for i := range current {
		cur := d.tokenSet(&current[i])
		for j := range previous {
			sum += jaccard(cur, d.tokenSet(&previous[j]))
		}
	}
	return sum / float64(len(current)*len(previous))
}

// tokenSet returns the memoized word set for a result's summary and details.
func (d *Detector) tokenSet(res *domain.WorkerResult) map[string]struct{} {
	key := fmt.Sprintf("%s#%d", res.WorkerID, res.RoundIndex)
	if set, ok := d.tokens.Get(key); ok {
		return set
	}
	set := tokenize(res.Summary + " " + res.Details)
	d.tokens.Add(key, set)
	return set
}

// tokenize lower-cases the text and collects words longer than
// minWordLength, splitting on any non-letter, non-digit rune.
func tokenize(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len(w) > minWordLength {
			set[w] = struct{}{}
		}
	}
	return set
}

// jaccard computes |a∩b| / |a∪b|. Two empty sets count as identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	var intersection int
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1
	}
	return float64(intersection) / float64(union)
}

// metricStability measures how far per-metric average scores drifted
// between rounds, normalized by the nominal metric scale. Only metrics with
// data in both rounds participate; if none do, stability is 1 (no observed
// movement). The result is clamped to [0,1].
func metricStability(current, previous []domain.WorkerResult) float64 {
	curAvg := metricAverages(current)
	prevAvg := metricAverages(previous)

	var totalDiff float64
	var compared int
	for metric, cur := range curAvg {
		prev, ok := prevAvg[metric]
		if !ok {
			continue
		}
		totalDiff += math.Abs(cur-prev) / domain.MetricScale
		compared++
	}

	if compared == 0 {
		return 1
	}
	return clamp01(1 - totalDiff/float64(compared))
}

// metricAverages computes the mean absolute value per metric over all
// non-null contributions in a result set.
func metricAverages(results []domain.WorkerResult) map[domain.Metric]float64 {
	sums := make(map[domain.Metric]float64)
	counts := make(map[domain.Metric]int)
	for _, res := range results {
		for metric, value := range res.Scorecard {
			sums[metric] += math.Abs(value)
			counts[metric]++
		}
	}
	avgs := make(map[domain.Metric]float64, len(sums))
	for metric, sum := range sums {
		avgs[metric] = sum / float64(counts[metric])
	}
	return avgs
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
