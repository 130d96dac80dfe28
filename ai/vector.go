// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Vectors of different length yield ErrDimensionMismatch; a zero vector
// has similarity 0 with everything.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	c := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, c)), nil
}

// RescaleCosine maps a cosine similarity from [-1, 1] linearly onto [0, 1].
func RescaleCosine(c float64) float64 {
	return math.Max(0, math.Min(1, (c+1)/2))
}

// NormalizeVector normalizes a vector to unit length (L2 normalization).
// This ensures that cosine similarity can be computed as a simple dot product.
// Returns a zero vector if the input has zero magnitude.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var magnitude float64
	for _, val := range v {
		magnitude += float64(val) * float64(val)
	}
	magnitude = math.Sqrt(magnitude)

	result := make([]float32, len(v))
	if magnitude == 0 {
		return result
	}
	for i, val := range v {
		result[i] = float32(float64(val) / magnitude)
	}
	return result
}

// IsZero reports whether every component of v is zero.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// EmbedNonBlank embeds texts with fn, substituting zero vectors for blank
// texts so the model is never asked to embed nothing. Every vector returned
// by fn must have dims components.
func EmbedNonBlank(ctx context.Context, texts []string, dims int, fn func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(texts))
	pending := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = make([]float32, dims)
			continue
		}
		pending = append(pending, text)
		positions = append(positions, i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	vectors, err := fn(ctx, pending)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(pending) {
		return nil, fmt.Errorf("embedding result mismatch. expected %d, received %d", len(pending), len(vectors))
	}
	for j, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: expected %d, received %d", ErrDimensionMismatch, dims, len(v))
		}
		out[positions[j]] = v
	}
	return out, nil
}
