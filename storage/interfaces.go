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

package storage

import (
	"context"
	"strings"
	"time"

	"github.com/poiesic/donorfinder/core"
)

// DefaultCandidateLimit bounds a candidate fetch when the filter sets no limit.
const DefaultCandidateLimit = 1000

// CandidateFilter narrows a candidate fetch. Zero values mean "no constraint".
type CandidateFilter struct {
	// State restricts candidates to one canonical state token.
	State string
	// OrgType restricts candidates per core.OrgType.Matches.
	OrgType core.OrgType
	// NTEEPrefix restricts candidates to taxonomy codes starting with it.
	NTEEPrefix string
	// Match, when set, is applied after the fields above. Rejected
	// organizations do not count toward Limit, so stores keep scanning
	// until Limit organizations are accepted or none are left.
	Match func(*core.Organization) bool
	// Limit caps the number of accepted candidates. Zero means DefaultCandidateLimit.
	Limit int
}

// EffectiveLimit returns Limit or DefaultCandidateLimit when unset.
func (f CandidateFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultCandidateLimit
	}
	return f.Limit
}

// Accepts reports whether org satisfies the filter.
func (f CandidateFilter) Accepts(org *core.Organization) bool {
	if f.State != "" && org.State != f.State {
		return false
	}
	if !f.OrgType.Matches(org.OrgType) {
		return false
	}
	if f.NTEEPrefix != "" && !strings.HasPrefix(org.NTEECode, strings.ToUpper(f.NTEEPrefix)) {
		return false
	}
	return f.Match == nil || f.Match(org)
}

// EmbeddingUpdate is the derived state written by the indexer for one organization.
type EmbeddingUpdate struct {
	SearchableText string
	Embedding      []float32
	// Fingerprint identifies SearchableText; see core.Fingerprint.
	Fingerprint uint64
	// SourceUpdatedAt is the UpdatedAt of the record the text was built
	// from. When set, the write fails with ErrStale if the stored record
	// has changed since.
	SourceUpdatedAt time.Time
}

// CandidateReader fetches organizations for ranking.
type CandidateReader interface {
	// FindCandidates returns organizations accepted by filter in ascending ID
	// order, up to filter.EffectiveLimit().
	FindCandidates(ctx context.Context, filter CandidateFilter) ([]*core.Organization, error)
}

// EmbeddingWriter persists indexer output.
type EmbeddingWriter interface {
	// UpdateEmbedding atomically replaces the searchable text, embedding and
	// fingerprint of one organization. Other fields are left untouched.
	// Returns ErrNotFound if the organization doesn't exist.
	UpdateEmbedding(ctx context.Context, id core.ID, update EmbeddingUpdate) error
}

// OrganizationRepository provides operations for managing organizations.
type OrganizationRepository interface {
	CandidateReader
	EmbeddingWriter

	// UpsertOrganizations inserts or replaces organizations.
	// Sets InsertedAt on first write and UpdatedAt on every write. When the
	// incoming record has no embedding, the stored embedding and its
	// fingerprint are preserved so the indexer can decide whether it is stale.
	UpsertOrganizations(ctx context.Context, orgs ...*core.Organization) ([]*core.Organization, error)

	// GetOrganization retrieves a single organization by ID.
	// Returns ErrNotFound if the organization doesn't exist.
	GetOrganization(ctx context.Context, id core.ID) (*core.Organization, error)

	// GetOrganizations retrieves multiple organizations by their IDs.
	// Returns only the organizations that exist (no error for missing ones).
	GetOrganizations(ctx context.Context, ids ...core.ID) ([]*core.Organization, error)

	// ListOrganizations pages through organizations in ascending ID order,
	// starting after the given ID. Pass 0 to start from the beginning.
	ListOrganizations(ctx context.Context, after core.ID, limit int) ([]*core.Organization, error)

	// DeleteOrganizations removes organizations by their IDs.
	// Returns ErrNotFound if any organization doesn't exist.
	DeleteOrganizations(ctx context.Context, ids ...core.ID) error

	// CountOrganizations returns the number of stored organizations.
	CountOrganizations(ctx context.Context) (int, error)

	// Close closes the storage backend and releases resources.
	Close() error
}
