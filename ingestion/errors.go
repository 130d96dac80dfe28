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

package ingestion

import "errors"

var (
	// ErrRepositoryRequired is returned when an organization repository is not provided.
	ErrRepositoryRequired = errors.New("organization repository required")

	// ErrBuilderRequired is returned when a searchable-text builder is not provided.
	ErrBuilderRequired = errors.New("searchable text builder required")

	// ErrIndexerRequired is returned when an indexer is not provided.
	ErrIndexerRequired = errors.New("indexer required")

	// ErrInvalidRecord is returned when an input record cannot be decoded.
	ErrInvalidRecord = errors.New("invalid organization record")
)
