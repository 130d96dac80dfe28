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

// Package postgres stores organizations in PostgreSQL with the pgvector
// extension. Embeddings live in a vector column; ranking still happens in
// the search package, so the store only has to fetch filtered candidates.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/poiesic/donorfinder/core"
	"github.com/poiesic/donorfinder/storage"
)

//go:embed schema.sql
var schemaTemplate string

const orgColumns = `ein, str_ein, name, sub_name, address, city, state, zipcode, ntee_code,
  subsection, org_type, guidestar_url, nccs_url, searchable_text, embedding::text,
  embedded_fingerprint, inserted_at, updated_at, embedded_at`

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements storage.OrganizationRepository on PostgreSQL.
type Store struct {
	pool       pgBeginner
	dimensions int
	closer     func()
}

var _ storage.OrganizationRepository = (*Store)(nil)

// NewStore wraps an existing pool or connection.
func NewStore(pool pgBeginner, dimensions int) *Store {
	return &Store{pool: pool, dimensions: dimensions}
}

// Open connects to dsn and returns a Store that closes the pool on Close.
func Open(ctx context.Context, dsn string, dimensions int) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s := NewStore(pool, dimensions)
	s.closer = pool.Close
	return s, nil
}

// Close releases the pool when the store opened it.
func (s *Store) Close() error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}

// Schema returns the DDL for the configured vector dimensions.
func Schema(dimensions int) string {
	return strings.ReplaceAll(schemaTemplate, "{{dimensions}}", strconv.Itoa(dimensions))
}

// Migrate creates the organizations table and its indexes if missing.
func (s *Store) Migrate(ctx context.Context) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, Schema(s.dimensions))
		return err
	})
}

// UpsertOrganizations inserts or replaces organizations, preserving stored
// embeddings when the incoming record has none.
func (s *Store) UpsertOrganizations(ctx context.Context, orgs ...*core.Organization) ([]*core.Organization, error) {
	for _, org := range orgs {
		if err := core.ValidateOrganization(org); err != nil {
			return nil, err
		}
	}

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for _, org := range orgs {
			var embedding *string
			if org.HasEmbedding() {
				lit := FormatVector(org.Embedding)
				embedding = &lit
			}
			if err := tx.QueryRow(ctx, `
INSERT INTO organizations (ein, str_ein, name, sub_name, address, city, state, zipcode, ntee_code,
  subsection, org_type, guidestar_url, nccs_url, searchable_text, embedding, embedded_fingerprint, embedded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::vector, $16,
  CASE WHEN $15::vector IS NULL THEN NULL ELSE now() END)
ON CONFLICT (ein) DO UPDATE SET
  str_ein = EXCLUDED.str_ein,
  name = EXCLUDED.name,
  sub_name = EXCLUDED.sub_name,
  address = EXCLUDED.address,
  city = EXCLUDED.city,
  state = EXCLUDED.state,
  zipcode = EXCLUDED.zipcode,
  ntee_code = EXCLUDED.ntee_code,
  subsection = EXCLUDED.subsection,
  org_type = EXCLUDED.org_type,
  guidestar_url = EXCLUDED.guidestar_url,
  nccs_url = EXCLUDED.nccs_url,
  searchable_text = EXCLUDED.searchable_text,
  embedding = COALESCE(EXCLUDED.embedding, organizations.embedding),
  embedded_fingerprint = CASE WHEN EXCLUDED.embedding IS NULL
    THEN organizations.embedded_fingerprint ELSE EXCLUDED.embedded_fingerprint END,
  embedded_at = COALESCE(EXCLUDED.embedded_at, organizations.embedded_at),
  updated_at = now()
RETURNING inserted_at, updated_at
`, int64(org.Id), org.StrEIN, org.Name, org.SubName, org.Address, org.City, org.State, org.Zipcode,
				org.NTEECode, org.Subsection, string(org.OrgType), org.GuidestarURL, org.NCCSURL,
				org.SearchableText, embedding, int64(org.EmbeddedFingerprint),
			).Scan(&org.InsertedAt, &org.UpdatedAt); err != nil {
				return fmt.Errorf("upsert %s: %w", org.Id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orgs, nil
}

// UpdateEmbedding replaces the derived search state of one organization in a
// single statement, so concurrent writers never interleave text and vector.
func (s *Store) UpdateEmbedding(ctx context.Context, id core.ID, update storage.EmbeddingUpdate) error {
	if len(update.Embedding) != s.dimensions {
		return fmt.Errorf("%w: expected %d, received %d", core.ErrEmbeddingDimensionMismatch, s.dimensions, len(update.Embedding))
	}
	var source *time.Time
	if !update.SourceUpdatedAt.IsZero() {
		source = &update.SourceUpdatedAt
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE organizations
SET searchable_text = $2, embedding = $3::vector, embedded_fingerprint = $4, embedded_at = now()
WHERE ein = $1 AND ($5::timestamptz IS NULL OR updated_at = $5)
`, int64(id), update.SearchableText, FormatVector(update.Embedding), int64(update.Fingerprint), source)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM organizations WHERE ein = $1)`, int64(id)).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return storage.ErrStale
		}
		return storage.ErrNotFound
	})
}

// GetOrganization retrieves a single organization by ID.
func (s *Store) GetOrganization(ctx context.Context, id core.ID) (*core.Organization, error) {
	orgs, err := s.query(ctx, `SELECT `+orgColumns+` FROM organizations WHERE ein = $1`, int64(id))
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, storage.ErrNotFound
	}
	return orgs[0], nil
}

// GetOrganizations retrieves multiple organizations by their IDs.
func (s *Store) GetOrganizations(ctx context.Context, ids ...core.ID) ([]*core.Organization, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.query(ctx, `SELECT `+orgColumns+` FROM organizations WHERE ein = ANY($1) ORDER BY ein`, toInt64s(ids))
}

// ListOrganizations pages through organizations in ascending ID order.
func (s *Store) ListOrganizations(ctx context.Context, after core.ID, limit int) ([]*core.Organization, error) {
	if limit < 0 {
		return nil, storage.ErrInvalidQuery
	}
	if limit == 0 {
		return s.query(ctx, `SELECT `+orgColumns+` FROM organizations WHERE ein > $1 ORDER BY ein`, int64(after))
	}
	return s.query(ctx, `SELECT `+orgColumns+` FROM organizations WHERE ein > $1 ORDER BY ein LIMIT $2`, int64(after), limit)
}

// FindCandidates returns organizations accepted by filter in ascending ID order.
func (s *Store) FindCandidates(ctx context.Context, filter storage.CandidateFilter) ([]*core.Organization, error) {
	limit := filter.EffectiveLimit()
	if filter.Match == nil {
		sql, args := candidateQuery(filter, 0, limit)
		return s.query(ctx, sql, args...)
	}

	// Match runs in process, so page by EIN until enough rows pass it.
	page := max(limit, candidatePageSize)
	var results []*core.Organization
	var after core.ID
	for len(results) < limit {
		sql, args := candidateQuery(filter, after, page)
		batch, err := s.query(ctx, sql, args...)
		if err != nil {
			return nil, err
		}
		for _, org := range batch {
			if filter.Match(org) {
				results = append(results, org)
				if len(results) == limit {
					break
				}
			}
		}
		if len(batch) < page {
			break
		}
		after = batch[len(batch)-1].Id
	}
	return results, nil
}

// candidatePageSize is the smallest page read while applying a Match filter.
const candidatePageSize = 500

// candidateQuery builds the column-level part of a candidate fetch.
// Rows are read in EIN order starting after the given EIN.
func candidateQuery(filter storage.CandidateFilter, after core.ID, limit int) (string, []any) {
	var where []string
	var args []any
	if filter.State != "" {
		args = append(args, filter.State)
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}
	if filter.OrgType != "" && filter.OrgType != core.OrgTypeNonprofit {
		args = append(args, string(filter.OrgType))
		where = append(where, fmt.Sprintf("org_type = $%d", len(args)))
	}
	if filter.NTEEPrefix != "" {
		args = append(args, strings.ToUpper(filter.NTEEPrefix)+"%")
		where = append(where, fmt.Sprintf("ntee_code LIKE $%d", len(args)))
	}
	if after > 0 {
		args = append(args, int64(after))
		where = append(where, fmt.Sprintf("ein > $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT " + orgColumns + " FROM organizations")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	args = append(args, limit)
	fmt.Fprintf(&b, " ORDER BY ein LIMIT $%d", len(args))
	return b.String(), args
}

// DeleteOrganizations removes organizations by their IDs.
func (s *Store) DeleteOrganizations(ctx context.Context, ids ...core.ID) error {
	unique := make(map[core.ID]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM organizations WHERE ein = ANY($1)`, toInt64s(ids))
		if err != nil {
			return err
		}
		if tag.RowsAffected() != int64(len(unique)) {
			return storage.ErrNotFound
		}
		return nil
	})
}

// CountOrganizations returns the number of stored organizations.
func (s *Store) CountOrganizations(ctx context.Context) (int, error) {
	var count int
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT count(*) FROM organizations`).Scan(&count)
	})
	return count, err
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]*core.Organization, error) {
	var orgs []*core.Organization
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		orgs, err = pgx.CollectRows(rows, scanOrganization)
		return err
	})
	return orgs, err
}

// inTx runs fn in a transaction that is committed when fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanOrganization(row pgx.CollectableRow) (*core.Organization, error) {
	var (
		org         core.Organization
		ein         int64
		orgType     string
		embedding   *string
		fingerprint int64
		embeddedAt  *time.Time
	)
	if err := row.Scan(&ein, &org.StrEIN, &org.Name, &org.SubName, &org.Address, &org.City,
		&org.State, &org.Zipcode, &org.NTEECode, &org.Subsection, &orgType, &org.GuidestarURL,
		&org.NCCSURL, &org.SearchableText, &embedding, &fingerprint, &org.InsertedAt,
		&org.UpdatedAt, &embeddedAt); err != nil {
		return nil, err
	}
	org.Id = core.ID(ein)
	org.OrgType = core.OrgType(orgType)
	org.EmbeddedFingerprint = uint64(fingerprint)
	if embeddedAt != nil {
		org.EmbeddedAt = *embeddedAt
	}
	if embedding != nil {
		v, err := ParseVector(*embedding)
		if err != nil {
			return nil, err
		}
		org.Embedding = v
	}
	return &org, nil
}

func toInt64s(ids []core.ID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

// ErrInvalidVector indicates a pgvector literal could not be parsed.
var ErrInvalidVector = errors.New("invalid vector literal")

// FormatVector renders v as a pgvector literal such as "[0.1,-0.2]".
func FormatVector(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// ParseVector parses a pgvector literal.
func ParseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVector, s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return nil, nil
	}
	parts := strings.Split(body, ",")
	v := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidVector, err)
		}
		v[i] = float32(f)
	}
	return v, nil
}
