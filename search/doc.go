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

// Package search implements hybrid search over organizations.
//
// A query is parsed into structured constraints and residual text. The
// residual is embedded while candidates are fetched from storage; the
// candidates are then filtered by the constraints, scored by vector
// similarity and keyword overlap, fused and paginated.
//
// Use Searcher.Search for the full pipeline, or Ranker and Assemble directly
// when candidates and query vector are already at hand.
package search
