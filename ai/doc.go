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

// Package ai provides the embedding abstraction used by indexing and querying.
//
// Both sides share one Embedder so that stored organization vectors and
// query vectors live in the same space. The package also holds the vector
// math used for ranking (Cosine, RescaleCosine, NormalizeVector).
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible HTTP APIs (Ollama, vLLM, OpenAI) via langchaingo
//   - ai/onnx: a local sentence-transformer model run through onnxruntime
//   - ai/cache: a Redis-backed caching decorator for any Embedder
//   - ai/mock: deterministic test doubles
//
// # Failure Modes
//
// Providers wrap connection and loading failures in ErrModelUnavailable.
// Query callers treat it as a signal to fall back to keyword-only scoring;
// the indexer skips the affected organizations and continues.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithEmbeddingModel("all-minilm"))
//	embedder, err := openai.NewEmbedder(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vector, err := embedder.EmbedText(ctx, "early childhood education")
package ai
