package filter

import (
	"sync/atomic"
	"testing"

	"github.com/poiesic/donorfinder/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Invalid(t *testing.T) {
	for _, expr := range []string{"", "state ==", "unknown_var == 1", "subsection + 1"} {
		t.Run(expr, func(t *testing.T) {
			_, err := Compile(expr)
			assert.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}

func TestMatches(t *testing.T) {
	org := &core.Organization{
		Id:         941156365,
		Name:       "Bright Futures Preschool",
		City:       "Oakland",
		State:      "CA",
		NTEECode:   "B21",
		Subsection: 3,
		OrgType:    core.OrgTypeCharity,
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`state == "CA" && subsection == 3`, true},
		{`state == "TX"`, false},
		{`ntee_code.startsWith("B")`, true},
		{`name.contains("Preschool") && org_type == "charity"`, true},
		{`ein == 941156365`, true},
		{`has_embedding`, false},
		{`city in ["Oakland", "Berkeley"]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := Compile(tt.expr)
			require.NoError(t, err)
			got, err := p.Matches(org)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPredicate(t *testing.T) {
	orgs := []*core.Organization{
		{Id: 1, Name: "A", State: "CA", Subsection: 3},
		{Id: 2, Name: "B", State: "CA", Subsection: 4},
		{Id: 3, Name: "C", State: "TX", Subsection: 3},
	}

	p, err := Compile(`subsection == 3`)
	require.NoError(t, err)

	var failed atomic.Int64
	match := p.Predicate(&failed)
	var kept []core.ID
	for _, org := range orgs {
		if match(org) {
			kept = append(kept, org.Id)
		}
	}
	assert.Equal(t, []core.ID{1, 3}, kept)
	assert.Zero(t, failed.Load())
}

func TestPredicate_EvaluationErrorsRejected(t *testing.T) {
	p, err := Compile(`10 / subsection > 1`)
	require.NoError(t, err)

	t.Run("counted", func(t *testing.T) {
		var failed atomic.Int64
		match := p.Predicate(&failed)
		assert.False(t, match(&core.Organization{Id: 1, Name: "A", Subsection: 0}))
		assert.True(t, match(&core.Organization{Id: 2, Name: "B", Subsection: 2}))
		assert.Equal(t, int64(1), failed.Load())
	})

	t.Run("nil counter", func(t *testing.T) {
		match := p.Predicate(nil)
		assert.False(t, match(&core.Organization{Id: 1, Name: "A", Subsection: 0}))
	})
}
