package search

import (
	"context"
	"testing"

	"github.com/poiesic/donorfinder/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRanker(t *testing.T, alpha float64) (*Ranker, *Analyzer) {
	t.Helper()
	a, err := NewAnalyzer()
	require.NoError(t, err)
	r, err := NewRanker(a, alpha, nil)
	require.NoError(t, err)
	return r, a
}

func candidate(id core.ID, state, ntee, text string, vec []float32) *core.Organization {
	return &core.Organization{
		Id:             id,
		Name:           text,
		State:          state,
		NTEECode:       ntee,
		OrgType:        core.OrgTypeCharity,
		SearchableText: text,
		Embedding:      vec,
	}
}

func rankedIDs(scored []*core.ScoredCandidate) []core.ID {
	out := make([]core.ID, len(scored))
	for i, sc := range scored {
		out[i] = sc.Organization.Id
	}
	return out
}

func TestNewRanker_Validation(t *testing.T) {
	a, err := NewAnalyzer()
	require.NoError(t, err)

	_, err = NewRanker(nil, 0.5, nil)
	assert.ErrorIs(t, err, ErrAnalyzerRequired)
	_, err = NewRanker(a, 1.5, nil)
	assert.ErrorIs(t, err, ErrInvalidAlpha)
	_, err = NewRanker(a, -0.1, nil)
	assert.ErrorIs(t, err, ErrInvalidAlpha)
}

func TestRank_HybridFusion(t *testing.T) {
	r, a := newTestRanker(t, 0.7)

	candidates := []*core.Organization{
		candidate(1, "CA", "B21", "preschool education", []float32{1, 0}),
		candidate(2, "CA", "B21", "music lessons", []float32{0, 1}),
		candidate(3, "CA", "B21", "preschool", nil),
	}
	ranked, partial := r.Rank(context.Background(), RankInput{
		Mode:        core.SearchModeHybrid,
		QueryVector: []float32{1, 0},
		QueryTerms:  a.Terms("preschool education"),
	}, candidates)

	require.False(t, partial)
	require.Len(t, ranked, 3)
	assert.Equal(t, []core.ID{1, 3, 2}, rankedIDs(ranked))

	// 0.7 * 1.0 + 0.3 * 1.0
	assert.InDelta(t, 1.0, ranked[0].FinalScore, 1e-9)
	require.NotNil(t, ranked[0].SemanticScore)
	assert.InDelta(t, 1.0, *ranked[0].SemanticScore, 1e-9)

	// no embedding: final is the keyword score
	assert.Nil(t, ranked[1].SemanticScore)
	assert.InDelta(t, 0.5, ranked[1].FinalScore, 1e-9)

	// orthogonal: semantic 0.5, keyword 0
	assert.InDelta(t, 0.35, ranked[2].FinalScore, 1e-9)

	for _, sc := range ranked {
		assert.GreaterOrEqual(t, sc.FinalScore, 0.0)
		assert.LessOrEqual(t, sc.FinalScore, 1.0)
	}
}

func TestRank_SemanticMode(t *testing.T) {
	r, a := newTestRanker(t, 0.7)

	candidates := []*core.Organization{
		candidate(1, "CA", "", "alpha", []float32{0, 1}),
		candidate(2, "CA", "", "beta", nil),
		candidate(3, "CA", "", "gamma", []float32{1, 0}),
	}
	ranked, _ := r.Rank(context.Background(), RankInput{
		Mode:        core.SearchModeSemantic,
		QueryVector: []float32{1, 0},
		QueryTerms:  a.Terms("alpha"),
	}, candidates)

	assert.Equal(t, []core.ID{3, 1}, rankedIDs(ranked))
	for _, sc := range ranked {
		assert.Nil(t, sc.KeywordScore)
		require.NotNil(t, sc.SemanticScore)
		assert.Equal(t, *sc.SemanticScore, sc.FinalScore)
	}
}

func TestRank_KeywordMode(t *testing.T) {
	r, a := newTestRanker(t, 0.7)

	candidates := []*core.Organization{
		candidate(1, "CA", "", "food bank", []float32{1, 0}),
		candidate(2, "CA", "", "animal rescue", []float32{1, 0}),
		candidate(3, "CA", "", "food pantry and bank", nil),
	}
	ranked, _ := r.Rank(context.Background(), RankInput{
		Mode:        core.SearchModeKeyword,
		QueryVector: []float32{1, 0},
		QueryTerms:  a.Terms("food bank"),
	}, candidates)

	assert.Equal(t, []core.ID{1, 3}, rankedIDs(ranked))
	for _, sc := range ranked {
		assert.Nil(t, sc.SemanticScore)
		assert.InDelta(t, 1.0, sc.FinalScore, 1e-9)
	}
}

func TestRank_Constraints(t *testing.T) {
	r, a := newTestRanker(t, 0.7)

	foundation := candidate(5, "CA", "T20", "giving fund", []float32{1, 0})
	foundation.OrgType = core.OrgTypeFoundation
	candidates := []*core.Organization{
		candidate(1, "CA", "B21", "bright futures", []float32{1, 0}),
		candidate(2, "TX", "B21", "lone star preschool", []float32{1, 0}),
		candidate(3, "CA", "X20", "grace church", []float32{1, 0}),
		candidate(4, "CA", "", "kids learning center, early childhood education", []float32{1, 0}),
		foundation,
	}

	in := RankInput{
		Mode:        core.SearchModeHybrid,
		QueryVector: []float32{1, 0},
		QueryTerms:  a.Terms("early childhood"),
		Constraints: core.QueryConstraints{
			State: "CA",
			CauseArea: &core.CauseArea{
				Code:     "B21",
				Keywords: []string{"early childhood education", "preschool"},
			},
		},
	}

	ranked, _ := r.Rank(context.Background(), in, candidates)
	assert.ElementsMatch(t, []core.ID{1, 4}, rankedIDs(ranked))

	in.Constraints = core.QueryConstraints{OrgType: core.OrgTypeFoundation}
	ranked, _ = r.Rank(context.Background(), in, candidates)
	assert.Equal(t, []core.ID{5}, rankedIDs(ranked))

	in.Constraints = core.QueryConstraints{OrgType: core.OrgTypeNonprofit}
	ranked, _ = r.Rank(context.Background(), in, candidates)
	assert.Len(t, ranked, 5)
}

func TestRank_DimensionMismatchExcludesOnlyThatRecord(t *testing.T) {
	r, a := newTestRanker(t, 0.7)

	candidates := []*core.Organization{
		candidate(1, "CA", "", "harbor", []float32{1, 0}),
		candidate(2, "CA", "", "meadow", []float32{1, 0, 0}),
		candidate(3, "CA", "", "river", []float32{0, 1}),
	}
	ranked, partial := r.Rank(context.Background(), RankInput{
		Mode:        core.SearchModeHybrid,
		QueryVector: []float32{1, 0},
		QueryTerms:  a.Terms("harbor"),
	}, candidates)

	assert.False(t, partial)
	assert.Equal(t, []core.ID{1, 3}, rankedIDs(ranked))
}

func TestRank_TieBreaks(t *testing.T) {
	r, a := newTestRanker(t, 0.7)

	candidates := []*core.Organization{
		candidate(9, "CA", "", "shelter", nil),
		candidate(4, "CA", "", "shelter", nil),
		candidate(7, "CA", "", "shelter", nil),
	}
	ranked, _ := r.Rank(context.Background(), RankInput{
		Mode:       core.SearchModeHybrid,
		QueryTerms: a.Terms("shelter"),
	}, candidates)

	assert.Equal(t, []core.ID{4, 7, 9}, rankedIDs(ranked))
}

func TestRank_Keep(t *testing.T) {
	r, a := newTestRanker(t, 0.7)

	var candidates []*core.Organization
	for i := 1; i <= 10; i++ {
		candidates = append(candidates, candidate(core.ID(i), "CA", "", "shelter", nil))
	}
	ranked, _ := r.Rank(context.Background(), RankInput{
		Mode:       core.SearchModeKeyword,
		QueryTerms: a.Terms("shelter"),
		Keep:       3,
	}, candidates)

	assert.Equal(t, []core.ID{1, 2, 3}, rankedIDs(ranked))
}

func TestRank_Cancelled(t *testing.T) {
	r, a := newTestRanker(t, 0.7)

	candidates := []*core.Organization{
		candidate(1, "CA", "", "shelter", []float32{1, 0}),
		candidate(2, "CA", "", "animal shelter", []float32{0, 1}),
		candidate(3, "TX", "", "shelter", []float32{1, 0}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := RankInput{
		Constraints: core.QueryConstraints{State: "CA"},
		QueryVector: []float32{1, 0},
		QueryTerms:  a.Terms("shelter"),
	}

	t.Run("hybrid keeps keyword scores", func(t *testing.T) {
		in := in
		in.Mode = core.SearchModeHybrid
		ranked, partial := r.Rank(ctx, in, candidates)

		assert.True(t, partial)
		assert.Equal(t, []core.ID{1, 2}, rankedIDs(ranked))
		for _, sc := range ranked {
			assert.Nil(t, sc.SemanticScore)
			require.NotNil(t, sc.KeywordScore)
			assert.Equal(t, *sc.KeywordScore, sc.FinalScore)
		}
	})

	t.Run("semantic has nothing to rank", func(t *testing.T) {
		in := in
		in.Mode = core.SearchModeSemantic
		ranked, partial := r.Rank(ctx, in, candidates)

		assert.True(t, partial)
		assert.Empty(t, ranked)
	})

	t.Run("keyword is unaffected", func(t *testing.T) {
		in := in
		in.Mode = core.SearchModeKeyword
		ranked, partial := r.Rank(ctx, in, candidates)

		assert.False(t, partial)
		assert.Equal(t, []core.ID{1, 2}, rankedIDs(ranked))
	})
}

func TestRank_MinSemantic(t *testing.T) {
	r, a := newTestRanker(t, 0.7)

	candidates := []*core.Organization{
		candidate(1, "CA", "", "alpha", []float32{0, 1}),
		candidate(2, "CA", "", "beta", []float32{1, 0}),
		candidate(3, "CA", "", "gamma", []float32{-1, 0}),
	}
	in := RankInput{
		Mode:        core.SearchModeSemantic,
		QueryVector: []float32{1, 0},
		QueryTerms:  a.Terms("alpha"),
	}

	ranked, _ := r.Rank(context.Background(), in, candidates)
	assert.Equal(t, []core.ID{2, 1, 3}, rankedIDs(ranked))

	in.MinSemantic = 0.5
	ranked, _ = r.Rank(context.Background(), in, candidates)
	assert.Equal(t, []core.ID{2, 1}, rankedIDs(ranked))

	t.Run("hybrid ignores the threshold", func(t *testing.T) {
		in := in
		in.Mode = core.SearchModeHybrid
		ranked, _ := r.Rank(context.Background(), in, candidates)
		assert.Len(t, ranked, 3)
	})
}

func TestAdmission_Accepts(t *testing.T) {
	r, a := newTestRanker(t, 0.7)
	cause := &core.CauseArea{Code: "K31", Keywords: []string{"food bank", "hunger"}}

	tests := []struct {
		name string
		in   RankInput
		org  *core.Organization
		want bool
	}{
		{"taxonomy prefix", RankInput{Mode: core.SearchModeHybrid, Constraints: core.QueryConstraints{CauseArea: cause}}, candidate(1, "CA", "K31", "pantry", nil), true},
		{"cause keyword", RankInput{Mode: core.SearchModeHybrid, Constraints: core.QueryConstraints{CauseArea: cause}}, candidate(2, "CA", "P20", "hunger relief", nil), true},
		{"unrelated", RankInput{Mode: core.SearchModeHybrid, Constraints: core.QueryConstraints{CauseArea: cause}}, candidate(3, "CA", "X20", "chapel", nil), false},
		{"wrong state", RankInput{Mode: core.SearchModeHybrid, Constraints: core.QueryConstraints{State: "TX"}}, candidate(4, "CA", "", "chapel", nil), false},
		{"keyword needs overlap", RankInput{Mode: core.SearchModeKeyword, QueryTerms: a.Terms("shelter")}, candidate(5, "CA", "", "chapel", nil), false},
		{"hybrid needs no overlap", RankInput{Mode: core.SearchModeHybrid, QueryTerms: a.Terms("shelter")}, candidate(6, "CA", "", "chapel", nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Admit(tt.in).Accepts(tt.org))
		})
	}
}

func TestAssemble(t *testing.T) {
	var scored []*core.ScoredCandidate
	for i := 1; i <= 5; i++ {
		scored = append(scored, &core.ScoredCandidate{
			Organization: &core.Organization{Id: core.ID(i)},
			FinalScore:   1 - float64(i)/10,
		})
	}

	page := Assemble(scored, 0, 2)
	require.Len(t, page, 2)
	assert.Equal(t, 1, page[0].Rank)
	assert.Equal(t, core.ID(1), page[0].Organization.Id)
	assert.InDelta(t, 0.9, page[0].FinalScore, 1e-9)

	page = Assemble(scored, 3, 10)
	require.Len(t, page, 2)
	assert.Equal(t, 4, page[0].Rank)
	assert.Equal(t, core.ID(5), page[1].Organization.Id)

	assert.Empty(t, Assemble(scored, 5, 10))
	assert.Empty(t, Assemble(scored, 0, 0))
	assert.Empty(t, Assemble(nil, 0, 10))
	assert.Len(t, Assemble(scored, -1, 1), 1)
}
