package ingestion

import (
	"strings"
	"testing"

	"github.com/poiesic/donorfinder/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecords(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []core.ID
	}{
		{
			name:  "array",
			input: `[{"ein": 1, "name": "One"}, {"ein": "00-0000002", "name": "Two"}]`,
			want:  []core.ID{1, 2},
		},
		{
			name:  "json lines",
			input: "{\"ein\": 1, \"name\": \"One\"}\n{\"ein\": 2, \"name\": \"Two\"}\n\n{\"ein\": 3, \"name\": \"Three\"}\n",
			want:  []core.ID{1, 2, 3},
		},
		{
			name:  "lookup response",
			input: `{"organization": {"ein": 7, "name": "Seven"}}`,
			want:  []core.ID{7},
		},
		{
			name:  "search page",
			input: `{"total_results": 2, "organizations": [{"ein": 8, "name": "Eight"}, {"ein": 9, "name": "Nine"}]}`,
			want:  []core.ID{8, 9},
		},
		{
			name:  "leading whitespace",
			input: "\n\t  [{\"ein\": 4, \"name\": \"Four\"}]",
			want:  []core.ID{4},
		},
		{
			name:  "empty",
			input: "   ",
			want:  []core.ID{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orgs, err := DecodeRecords(strings.NewReader(tt.input))
			require.NoError(t, err)
			ids := make([]core.ID, 0, len(orgs))
			for _, org := range orgs {
				ids = append(ids, org.Id)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestDecodeRecords_Fields(t *testing.T) {
	input := `{"ein": 941234567, "strein": "94-1234567", "name": "Bright Futures Preschool",
		"sub_name": "Oakland Campus", "address": "1 Main St", "city": "Oakland", "state": "CA",
		"zipcode": "94601", "ntee_code": "B21", "subseccd": 3, "guidestar_url": "https://example.org/g",
		"nccs_url": null}`

	orgs, err := DecodeRecords(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, orgs, 1)

	org := orgs[0]
	assert.Equal(t, core.ID(941234567), org.Id)
	assert.Equal(t, "94-1234567", org.StrEIN)
	assert.Equal(t, "Oakland Campus", org.SubName)
	assert.Equal(t, "94601", org.Zipcode)
	assert.Equal(t, "B21", org.NTEECode)
	assert.Equal(t, 3, org.Subsection)
	assert.Equal(t, core.OrgTypeCharity, org.OrgType)
	assert.Empty(t, org.NCCSURL)
}

func TestDecodeRecords_Invalid(t *testing.T) {
	for _, input := range []string{
		`[{"ein": 1, "name": "One"}`,
		`{"ein": 1} {"ein": "abc"}`,
		`42`,
	} {
		_, err := DecodeRecords(strings.NewReader(input))
		assert.ErrorIs(t, err, ErrInvalidRecord, input)
	}
}
