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

package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidOrganization indicates an Organization failed validation.
	ErrInvalidOrganization = errors.New("invalid organization")

	// ErrMissingID indicates the organization has no registry identifier.
	ErrMissingID = errors.New("organization id cannot be zero")

	// ErrEmptyName indicates the Name field is empty.
	ErrEmptyName = errors.New("organization name cannot be empty")

	// ErrInvalidState indicates the State field is not a two letter token.
	ErrInvalidState = errors.New("state must be a two letter code")

	// ErrInvalidOrgType indicates an unknown organization type token.
	ErrInvalidOrgType = errors.New("invalid organization type")

	// ErrInvalidSearchMode indicates an unknown search mode selector.
	ErrInvalidSearchMode = errors.New("invalid search mode")

	// ErrEmbeddingDimensionMismatch indicates a stored embedding and a query
	// embedding have different lengths.
	ErrEmbeddingDimensionMismatch = errors.New("embedding dimension mismatch")
)
