// Package scoring ranks eligible candidates by conservatism.
package scoring

import (
	"sort"

	"github.com/aristath/ditm/internal/domain"
)

// Scorer computes the weighted conservatism score. Lower scores are more
// conservative.
type Scorer struct {
	weights domain.ScoringWeights
}

// NewScorer creates a scorer with the given weights
func NewScorer(weights domain.ScoringWeights) *Scorer {
	return &Scorer{weights: weights}
}

// NewDefaultScorer creates a scorer with the canonical weights
func NewDefaultScorer() *Scorer {
	return NewScorer(domain.DefaultScoringWeights())
}

// Score computes the conservatism score for one eligible candidate. The
// active preset's MAX thresholds act as normalizers so each term lands
// roughly in [0, 1].
func (s *Scorer) Score(c domain.Candidate, t domain.Thresholds) float64 {
	iv := 0.0
	if c.IV != nil {
		iv = *c.IV
	}

	score := s.weights.ExtrinsicPct * (c.ExtrinsicPct / t.MaxExtrinsicPct)
	score += s.weights.Delta * (1 - c.Delta)
	score += s.weights.Leverage * (1 / c.LeverageFactor) * 10
	score += s.weights.IV * (iv / t.MaxIV)
	score += s.weights.SpreadPct * (c.SpreadPct / t.MaxSpreadPct)
	return score
}

// Rank scores every candidate in place and sorts ascending by score.
// Ties break by open interest descending, then strike ascending.
func (s *Scorer) Rank(candidates []domain.Candidate, t domain.Thresholds) {
	for i := range candidates {
		candidates[i].Score = s.Score(candidates[i], t)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		if a.OpenInterest != b.OpenInterest {
			return a.OpenInterest > b.OpenInterest
		}
		return a.Strike < b.Strike
	})
}
