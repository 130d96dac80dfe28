package mock

import (
	"context"
	"testing"

	"github.com/poiesic/donorfinder/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	m := NewMockEmbedder()

	a, err := m.EmbedText(ctx, "early childhood education")
	require.NoError(t, err)
	b, err := m.EmbedText(ctx, "early childhood education")
	require.NoError(t, err)

	assert.Len(t, a, ai.DefaultDimensions)
	assert.Equal(t, a, b)

	batch, err := m.EmbedTexts(ctx, []string{"early childhood education", "food bank"})
	require.NoError(t, err)
	assert.Equal(t, a, batch[0], "batch must equal single embedding element-wise")
	assert.NotEqual(t, batch[0], batch[1])
	assert.Equal(t, 3, m.CallCount())
}

func TestMockEmbedder_UnitLength(t *testing.T) {
	v := GenerateDeterministicVector("anything", 16)
	c, err := ai.Cosine(v, v)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, c, 1e-6)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.True(t, ai.IsZero(GenerateDeterministicVector("   ", 16)))
}

func TestMockEmbedder_Injection(t *testing.T) {
	ctx := context.Background()

	m := NewMockEmbedder().WithError(ai.ErrModelUnavailable)
	_, err := m.EmbedText(ctx, "x")
	assert.ErrorIs(t, err, ai.ErrModelUnavailable)
	_, err = m.EmbedTexts(ctx, []string{"x"})
	assert.ErrorIs(t, err, ai.ErrModelUnavailable)

	m.Reset()
	assert.Equal(t, 0, m.CallCount())
	m.WithEmbedTextFunc(func(context.Context, string) ([]float32, error) {
		return []float32{1, 2, 3}, nil
	}).WithDimensions(3)

	v, err := m.EmbedText(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, v)
	assert.Equal(t, 3, m.Dimensions())
}
