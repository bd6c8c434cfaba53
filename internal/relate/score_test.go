package relate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/codeatlas/internal/model"
)

func TestScore_ValuesByEvidence(t *testing.T) {
	t.Parallel()
	s := NewScorer()

	cases := []struct {
		match model.MatchKind
		want  float64
	}{
		{model.MatchExactFQN, 1.0},
		{model.MatchSameFile, 0.9},
		{model.MatchSameDir, 0.7},
		{model.MatchCrossDir, 0.5},
		{model.MatchDocFuzzy, 0.4},
	}
	for _, tc := range cases {
		got := s.Score(model.Relationship{Evidence: model.Evidence{Match: tc.match}})
		assert.Equal(t, tc.want, got.Confidence, "match %s", tc.match)
	}
}

func TestScore_UnknownEvidenceScoresZero(t *testing.T) {
	t.Parallel()
	got := NewScorer().Score(model.Relationship{})
	assert.Zero(t, got.Confidence)
}

func TestScore_IsDeterministic(t *testing.T) {
	t.Parallel()
	s := NewScorer()
	rel := model.Relationship{
		Source:   model.ElementRef{Kind: model.ElemFunction, FQN: "a.f"},
		Target:   model.ElementRef{Kind: model.ElemFunction, FQN: "b.g"},
		Kind:     model.RelCall,
		Evidence: model.Evidence{Match: model.MatchSameDir, Text: "g"},
	}

	first := s.Score(rel)
	second := s.Score(rel)
	assert.Equal(t, first, second)
}

func TestScoreAll_BoundsAndOrder(t *testing.T) {
	t.Parallel()
	rels := []model.Relationship{
		{Evidence: model.Evidence{Match: model.MatchDocFuzzy}},
		{Evidence: model.Evidence{Match: model.MatchExactFQN}},
	}

	scored := NewScorer().ScoreAll(rels)
	require.Len(t, scored, 2)
	assert.Equal(t, 0.4, scored[0].Confidence)
	assert.Equal(t, 1.0, scored[1].Confidence)
	for _, r := range scored {
		assert.GreaterOrEqual(t, r.Confidence, 0.0)
		assert.LessOrEqual(t, r.Confidence, 1.0)
	}
	// Inputs are untouched.
	assert.Zero(t, rels[0].Confidence)
}
