package searchtext

import (
	"testing"

	"github.com/poiesic/donorfinder/core"
	"github.com/poiesic/donorfinder/lexicon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder(lexicon.MustLoad())
	require.NoError(t, err)
	return b
}

func TestNewBuilder_RequiresLexicon(t *testing.T) {
	_, err := NewBuilder(nil)
	assert.Equal(t, ErrLexiconRequired, err)
}

func TestBuilder_Build(t *testing.T) {
	b := newTestBuilder(t)

	tests := []struct {
		name string
		org  *core.Organization
		want string
	}{
		{
			name: "all fields",
			org: &core.Organization{
				Name:     "Bright  Futures\tPreschool",
				OrgType:  core.OrgTypeCharity,
				State:    "CA",
				NTEECode: "B21",
			},
			want: "Bright Futures Preschool. charity. California (CA). " +
				"early childhood education, preschool, kindergarten, nursery school, early learning, education",
		},
		{
			name: "unknown code contributes nothing",
			org:  &core.Organization{Name: "Acme Club", State: "NY", NTEECode: "9ZZ"},
			want: "Acme Club. New York (NY)",
		},
		{
			name: "unknown state token kept verbatim",
			org:  &core.Organization{Name: "Overseas Aid", State: "AE"},
			want: "Overseas Aid. AE",
		},
		{
			name: "name only",
			org:  &core.Organization{Name: "Solo"},
			want: "Solo",
		},
		{
			name: "nil organization",
			org:  nil,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Build(tt.org))
		})
	}
}

func TestBuilder_Deterministic(t *testing.T) {
	b := newTestBuilder(t)
	org := &core.Organization{Name: "Green Valley Land Trust", OrgType: core.OrgTypeNonprofit, State: "VT", NTEECode: "C34"}

	first := b.Build(org)
	second := b.Build(org)
	assert.Equal(t, first, second)
	assert.Equal(t, first, newTestBuilder(t).Build(org))
}

func TestBuilder_Refresh(t *testing.T) {
	b := newTestBuilder(t)
	org := &core.Organization{Name: "Bright Futures", State: "CA", NTEECode: "B21"}

	assert.True(t, b.Refresh(org))
	assert.NotEmpty(t, org.SearchableText)
	assert.False(t, b.Refresh(org), "refresh on unchanged fields must be a no-op")

	org.State = "NV"
	assert.True(t, b.Refresh(org))
	assert.Contains(t, org.SearchableText, "Nevada (NV)")
}
