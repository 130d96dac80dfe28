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

// Package storage provides the storage abstraction layer for donorfinder.
//
// This package defines repository interfaces that decouple storage implementation
// from business logic. The search path only needs CandidateReader, the indexer
// only needs CandidateReader and EmbeddingWriter; OrganizationRepository is the
// full surface used by ingestion and the HTTP API.
//
// # Backends
//
//   - storage/badger: embedded BadgerDB store (default)
//   - storage/postgres: PostgreSQL with a pgvector column
//
// Use in tests with in-memory storage:
//
//	repo, err := badger.NewMemoryRepository()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines. Readers never block on
// embedding updates; a reader may observe a mix of old and new embeddings
// while indexing is in progress.
package storage
