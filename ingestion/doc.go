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

// Package ingestion loads organization records into storage.
//
// The Pipeline validates incoming organizations, derives their type and
// searchable text, and upserts them. Organizations whose searchable text
// changed are handed to the indexer on a worker pool so that ingestion never
// waits for the embedding model. Errors during async indexing are logged but
// do not fail the ingestion; affected organizations stay stale until the
// next indexing pass.
package ingestion
