package storage

import (
	"testing"
	"time"

	"github.com/poiesic/donorfinder/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"small ID", core.ID(42)},
		{"nine digit EIN", core.ID(941156365)},
		{"large ID", core.ID(18446744073709551615)}, // max uint64
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalID(tt.id)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalID(data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}
}

func TestUnmarshalID_Invalid(t *testing.T) {
	_, err := UnmarshalID([]byte{})
	assert.Error(t, err)
}

func TestMarshalUnmarshalOrganization(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	tests := []struct {
		name string
		org  *core.Organization
	}{
		{
			name: "minimal organization",
			org: &core.Organization{
				Id:   core.ID(1),
				Name: "Bright Futures",
			},
		},
		{
			name: "full organization",
			org: &core.Organization{
				Id:                  core.ID(941156365),
				StrEIN:              "94-1156365",
				Name:                "Bright Futures Preschool",
				SubName:             "Oakland Campus",
				Address:             "1 Main St",
				City:                "Oakland",
				State:               "CA",
				Zipcode:             "94612",
				NTEECode:            "B21",
				Subsection:          3,
				OrgType:             core.OrgTypeCharity,
				GuidestarURL:        "https://www.guidestar.org/profile/94-1156365",
				NCCSURL:             "https://nccs.urban.org/941156365",
				SearchableText:      "Bright Futures Preschool. charity. California (CA). early childhood education",
				Embedding:           []float32{0.1, -0.2, 0.3, 0.0},
				EmbeddedFingerprint: core.Fingerprint("Bright Futures Preschool"),
				InsertedAt:          now,
				UpdatedAt:           now.Add(time.Minute),
				EmbeddedAt:          now.Add(2 * time.Minute),
			},
		},
		{
			name: "unicode text",
			org: &core.Organization{
				Id:             core.ID(7),
				Name:           "Fundación Niños Felices",
				SearchableText: "Fundación Niños Felices. foundation",
				OrgType:        core.OrgTypeFoundation,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalOrganization(tt.org)
			require.NotEmpty(t, data)
			assert.Equal(t, organizationVersion, data[0])

			decoded, err := UnmarshalOrganization(data)
			require.NoError(t, err)
			assert.Equal(t, tt.org, decoded)
		})
	}
}

func TestUnmarshalOrganization_Invalid(t *testing.T) {
	valid := MarshalOrganization(&core.Organization{Id: 5, Name: "Helping Hands", Embedding: []float32{1, 2}})

	t.Run("empty data", func(t *testing.T) {
		_, err := UnmarshalOrganization(nil)
		assert.ErrorIs(t, err, ErrTruncatedData)
	})

	t.Run("unknown version", func(t *testing.T) {
		data := append([]byte{}, valid...)
		data[0] = 99
		_, err := UnmarshalOrganization(data)
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := UnmarshalOrganization(valid[:len(valid)/2])
		assert.ErrorIs(t, err, ErrSerializationFailed)
	})
}

func TestMarshalUnmarshalVector(t *testing.T) {
	v := []float32{0.25, -1, 3.5}
	decoded, err := UnmarshalVector(MarshalVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, decoded)

	empty, err := UnmarshalVector(MarshalVector(nil))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = UnmarshalVector(MarshalVector(v)[:5])
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
