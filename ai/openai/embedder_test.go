package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/poiesic/donorfinder/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type datum struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Object string  `json:"object"`
			Data   []datum `json:"data"`
			Model  string  `json:"model"`
		}{Object: "list", Model: "all-minilm"}
		for i, text := range req.Input {
			resp.Data = append(resp.Data, datum{
				Object:    "embedding",
				Embedding: []float32{float32(len(text)), 1, 0},
				Index:     i,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestNewEmbedder_InvalidConfig(t *testing.T) {
	_, err := NewEmbedder(ai.NewConfig(ai.WithEmbeddingModel("")))
	require.Error(t, err)
}

func TestEmbedder_EmbedTexts(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	embedder, err := NewEmbedder(ai.NewConfig(
		ai.WithEmbeddingHost(server.URL),
		ai.WithDimensions(3),
	))
	require.NoError(t, err)
	assert.Equal(t, 3, embedder.Dimensions())

	ctx := context.Background()
	vectors, err := embedder.EmbedTexts(ctx, []string{"ab", "", "abcd"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{2, 1, 0}, vectors[0])
	assert.Equal(t, []float32{0, 0, 0}, vectors[1])
	assert.Equal(t, []float32{4, 1, 0}, vectors[2])

	single, err := embedder.EmbedText(ctx, "abcd")
	require.NoError(t, err)
	assert.Equal(t, vectors[2], single)
}

func TestEmbedder_ModelUnavailable(t *testing.T) {
	server := newTestServer(t)
	url := server.URL
	server.Close()

	embedder, err := NewEmbedder(ai.NewConfig(ai.WithEmbeddingHost(url), ai.WithDimensions(3)))
	require.NoError(t, err)

	_, err = embedder.EmbedText(context.Background(), "early childhood education")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestEmbedder_DimensionMismatch(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	embedder, err := NewEmbedder(ai.NewConfig(ai.WithEmbeddingHost(server.URL), ai.WithDimensions(384)))
	require.NoError(t, err)

	_, err = embedder.EmbedText(context.Background(), "text")
	assert.ErrorIs(t, err, ai.ErrDimensionMismatch)
}
