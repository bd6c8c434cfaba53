package relate

import "github.com/jward/codeatlas/internal/model"

// confidenceByMatch is the complete scoring policy: a pure table from
// evidence strength to confidence. Identical inputs always score
// identically; reproducibility tests depend on this.
var confidenceByMatch = map[model.MatchKind]float64{
	model.MatchExactFQN: 1.0,
	model.MatchSameFile: 0.9,
	model.MatchSameDir:  0.7,
	model.MatchCrossDir: 0.5,
	model.MatchDocFuzzy: 0.4,
}

// Scorer assigns confidence to detected relationships.
type Scorer struct{}

// NewScorer returns a confidence scorer.
func NewScorer() *Scorer { return &Scorer{} }

// Score returns the relationship with its confidence populated from the
// evidence. Unknown evidence scores zero rather than guessing.
func (s *Scorer) Score(rel model.Relationship) model.Relationship {
	rel.Confidence = confidenceByMatch[rel.Evidence.Match]
	return rel
}

// ScoreAll scores every relationship in place-order.
func (s *Scorer) ScoreAll(rels []model.Relationship) []model.Relationship {
	scored := make([]model.Relationship, len(rels))
	for i, rel := range rels {
		scored[i] = s.Score(rel)
	}
	return scored
}
