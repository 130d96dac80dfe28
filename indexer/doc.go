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

// Package indexer keeps the searchable text and embeddings of stored
// organizations current.
//
// An organization is stale when it has no embedding or when the fingerprint
// of its rebuilt searchable text differs from the one recorded with its
// embedding. The indexer finds stale organizations, embeds them in chunks on
// a bounded worker pool and writes text, vector and fingerprint back in one
// update per organization. Organizations that are already current are never
// re-embedded, so indexing is idempotent.
package indexer
