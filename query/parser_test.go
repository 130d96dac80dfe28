package query

import (
	"testing"

	"github.com/poiesic/donorfinder/core"
	"github.com/poiesic/donorfinder/lexicon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser(t *testing.T, opts ...Option) *Parser {
	t.Helper()
	p, err := NewParser(lexicon.MustLoad(), opts...)
	require.NoError(t, err)
	return p
}

func TestNewParser_RequiresLexicon(t *testing.T) {
	_, err := NewParser(nil)
	assert.ErrorIs(t, err, ErrLexiconRequired)

	_, err = NewParser(&lexicon.Lexicon{})
	assert.ErrorIs(t, err, ErrLexiconRequired)
}

func TestParse_EarlyChildhoodInCalifornia(t *testing.T) {
	p := newTestParser(t)

	qc := p.Parse("early childhood education in California", FieldAll)

	assert.Equal(t, "CA", qc.State)
	require.NotNil(t, qc.CauseArea)
	assert.Equal(t, "B21", qc.CauseArea.Code)
	assert.Equal(t, "early childhood", qc.CauseArea.Term)
	assert.Contains(t, qc.CauseArea.Keywords, "early childhood education")
	assert.Empty(t, qc.OrgType)
	assert.Equal(t, "early childhood education", qc.Residual)
}

func TestParse_CauseTermRemoval(t *testing.T) {
	p := newTestParser(t, WithCauseTermRemoval())

	qc := p.Parse("early childhood education in California", FieldAll)

	assert.Equal(t, "CA", qc.State)
	require.NotNil(t, qc.CauseArea)
	assert.Equal(t, "B21", qc.CauseArea.Code)
	assert.Equal(t, "education", qc.Residual)
}

func TestParse_StateAliasesAgree(t *testing.T) {
	p := newTestParser(t)

	for _, q := range []string{"NY", "ny", "New York", "new york", "NEW YORK", "museums in New York.", "Big Apple museums"} {
		t.Run(q, func(t *testing.T) {
			assert.Equal(t, "NY", p.Parse(q, FieldAll).State)
		})
	}
}

func TestParse_LongestPlaceWins(t *testing.T) {
	p := newTestParser(t)

	qc := p.Parse("museums in washington dc", FieldAll)
	assert.Equal(t, "DC", qc.State)
	assert.Equal(t, "museums", qc.Residual)
}

func TestParse_FirstPlaceWins(t *testing.T) {
	p := newTestParser(t)

	qc := p.Parse("Texas and California", FieldState)
	assert.Equal(t, "TX", qc.State)
	assert.Equal(t, "and California", qc.Residual)
}

func TestParse_AmbiguousAbbreviations(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		query    string
		state    string
		residual string
	}{
		{"mentoring programs in IN", "IN", "mentoring programs"},
		{"mentoring programs in indiana", "IN", "mentoring programs"},
		{"help for me", "", "help for me"},
		{"OK food banks", "OK", "food banks"},
		{"ok food banks", "", "ok food banks"},
		{"OR's food banks", "OR", "food banks"},
		{"or's food banks", "", "or's food banks"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			qc := p.Parse(tt.query, FieldState)
			assert.Equal(t, tt.state, qc.State)
			assert.Equal(t, tt.residual, qc.Residual)
		})
	}
}

func TestParse_OrgType(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		query    string
		orgType  core.OrgType
		residual string
	}{
		{"animal foundations in Texas", core.OrgTypeFoundation, "animal"},
		{"charities helping veterans", core.OrgTypeCharity, "helping veterans"},
		{"non-profit theater", core.OrgTypeNonprofit, "theater"},
		{"501(c)(3) food pantry", core.OrgTypeCharity, "food pantry"},
		{"private foundations for science", core.OrgTypeFoundation, "for science"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			qc := p.Parse(tt.query, FieldAll)
			assert.Equal(t, tt.orgType, qc.OrgType)
			assert.Equal(t, tt.residual, qc.Residual)
		})
	}
}

func TestParse_CauseArea(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		query string
		code  string
		term  string
	}{
		{"food bank in Ohio", "K31", "food bank"},
		{"animal shelter", "D20", "animal shelter"},
		{"Preschools", "B21", "Preschools"},
		{"literacy tutoring", "B", "literacy"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			qc := p.Parse(tt.query, FieldCauseArea)
			require.NotNil(t, qc.CauseArea)
			assert.Equal(t, tt.code, qc.CauseArea.Code)
			assert.Equal(t, tt.term, qc.CauseArea.Term)
			assert.NotEmpty(t, qc.CauseArea.Keywords)
		})
	}
}

func TestParse_Fields(t *testing.T) {
	p := newTestParser(t)
	q := "education foundations in California"

	qc := p.Parse(q, FieldState)
	assert.Equal(t, "CA", qc.State)
	assert.Nil(t, qc.CauseArea)
	assert.Empty(t, qc.OrgType)
	assert.Equal(t, "education foundations", qc.Residual)

	qc = p.Parse(q, FieldNone)
	assert.True(t, qc.IsEmpty())
	assert.Equal(t, q, qc.Residual)

	qc = p.Parse(q, FieldCauseArea|FieldOrgType)
	assert.Empty(t, qc.State)
	require.NotNil(t, qc.CauseArea)
	assert.Equal(t, "B", qc.CauseArea.Code)
	assert.Equal(t, core.OrgTypeFoundation, qc.OrgType)
	assert.Equal(t, "education in California", qc.Residual)
}

func TestParse_NoMatches(t *testing.T) {
	p := newTestParser(t)

	qc := p.Parse("  xyzzy   plugh ", FieldAll)
	assert.True(t, qc.IsEmpty())
	assert.Equal(t, "xyzzy plugh", qc.Residual)

	qc = p.Parse("", FieldAll)
	assert.True(t, qc.IsEmpty())
	assert.Empty(t, qc.Residual)
}

func TestParse_Deterministic(t *testing.T) {
	p := newTestParser(t)
	q := "youth sports charities in new york city"

	first := p.Parse(q, FieldAll)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, p.Parse(q, FieldAll))
	}
}

func TestParse_Possessives(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		query string
		state string
		cause string
	}{
		{"Texas's food pantries", "TX", "K31"},
		{"Texas\u2019s food pantries", "TX", "K31"},
		{"food banks in Texas'", "TX", "K31"},
		{"New York's food banks", "NY", "K31"},
		{"Ohio's preschools", "OH", "B21"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			qc := p.Parse(tt.query, FieldAll)
			assert.Equal(t, tt.state, qc.State)
			require.NotNil(t, qc.CauseArea)
			assert.Equal(t, tt.cause, qc.CauseArea.Code)
		})
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Pre-K, in  D.C. --")
	require.Len(t, tokens, 4)
	assert.Equal(t, Token{Text: "Pre-K,", Key: "pre-k"}, tokens[0])
	assert.Equal(t, Token{Text: "in", Key: "in"}, tokens[1])
	assert.Equal(t, Token{Text: "D.C.", Key: "dc"}, tokens[2])
	assert.Equal(t, "", tokens[3].Key)

	t.Run("possessives", func(t *testing.T) {
		tokens := Tokenize("Texas's Illinois' it\u2019s")
		require.Len(t, tokens, 3)
		assert.Equal(t, "texas", tokens[0].Key)
		assert.Equal(t, "illinois", tokens[1].Key)
		assert.Equal(t, "it", tokens[2].Key)
		assert.Equal(t, "Texas's", tokens[0].Text)
	})
}

func TestResolveOverrides(t *testing.T) {
	p := newTestParser(t)

	state, ok := p.ResolveState("california")
	assert.True(t, ok)
	assert.Equal(t, "CA", state)
	_, ok = p.ResolveState("atlantis")
	assert.False(t, ok)

	cause, ok := p.ResolveCauseArea("b21")
	require.True(t, ok)
	assert.Equal(t, "B21", cause.Code)
	assert.Empty(t, cause.Term)

	cause, ok = p.ResolveCauseArea("B99")
	require.True(t, ok)
	assert.Equal(t, "B", cause.Code)

	cause, ok = p.ResolveCauseArea("food banks")
	require.True(t, ok)
	assert.Equal(t, "K31", cause.Code)

	_, ok = p.ResolveCauseArea("quantum knitting")
	assert.False(t, ok)
}
