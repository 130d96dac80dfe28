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
)

// Embedder generates vector embeddings from text.
// Implementations must be thread-safe for concurrent use and deterministic:
// the same text embedded twice with the same model yields the same vector.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Blank text embeds to a zero vector without consulting the model.
	// Returns an error wrapping ErrModelUnavailable if the model cannot be reached.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts
	// and is element-wise equal to calling EmbedText on each text.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the length of every vector the embedder produces.
	Dimensions() int
}
