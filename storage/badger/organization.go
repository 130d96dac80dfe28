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

package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/donorfinder/core"
	"github.com/poiesic/donorfinder/storage"
)

// upsertChunkSize bounds the number of organizations written per transaction.
const upsertChunkSize = 256

// OrganizationRepository implements storage.OrganizationRepository for BadgerDB.
type OrganizationRepository struct {
	backend     *Backend
	ownsBackend bool
}

var _ storage.OrganizationRepository = (*OrganizationRepository)(nil)

// NewOrganizationRepository creates a repository on an already open backend.
// Closing the repository leaves the backend open.
func NewOrganizationRepository(backend *Backend) *OrganizationRepository {
	return &OrganizationRepository{backend: backend}
}

// NewRepository opens a BadgerDB database at path and returns a repository
// that closes it on Close.
func NewRepository(path string) (storage.OrganizationRepository, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return &OrganizationRepository{backend: backend, ownsBackend: true}, nil
}

// Close closes the backend when the repository opened it.
func (r *OrganizationRepository) Close() error {
	if r.ownsBackend {
		return r.backend.Close()
	}
	return nil
}

// UpsertOrganizations inserts or replaces organizations.
func (r *OrganizationRepository) UpsertOrganizations(ctx context.Context, orgs ...*core.Organization) ([]*core.Organization, error) {
	for _, org := range orgs {
		if err := core.ValidateOrganization(org); err != nil {
			return nil, err
		}
	}

	for start := 0; start < len(orgs); start += upsertChunkSize {
		end := min(start+upsertChunkSize, len(orgs))
		chunk := orgs[start:end]
		err := r.backend.Update(ctx, func(tx *badger.Txn) error {
			now := time.Now().UTC().Truncate(time.Microsecond)
			for _, org := range chunk {
				if err := r.upsert(tx, org, now); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return orgs, nil
}

func (r *OrganizationRepository) upsert(tx *badger.Txn, org *core.Organization, now time.Time) error {
	key := makeOrgKey(org.Id)
	old, err := readOrganization(tx, key)
	if err != nil {
		return err
	}

	if old != nil {
		org.InsertedAt = old.InsertedAt
		if !org.HasEmbedding() {
			org.Embedding = old.Embedding
			org.EmbeddedFingerprint = old.EmbeddedFingerprint
			org.EmbeddedAt = old.EmbeddedAt
		}
		if old.State != "" && old.State != org.State {
			if err := tx.Delete(makeOrgStateKey(old.State, old.Id)); err != nil {
				return err
			}
		}
	}
	if org.InsertedAt.IsZero() {
		org.InsertedAt = now
	}
	org.UpdatedAt = now

	if err := tx.Set(key, storage.MarshalOrganization(org)); err != nil {
		return err
	}
	if org.State != "" {
		return tx.Set(makeOrgStateKey(org.State, org.Id), storage.MarshalID(org.Id))
	}
	return nil
}

// UpdateEmbedding replaces the derived search state of one organization.
// It returns storage.ErrStale when the record changed after update was built.
func (r *OrganizationRepository) UpdateEmbedding(ctx context.Context, id core.ID, update storage.EmbeddingUpdate) error {
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		key := makeOrgKey(id)
		org, err := readOrganization(tx, key)
		if err != nil {
			return err
		}
		if org == nil {
			return storage.ErrNotFound
		}
		if !update.SourceUpdatedAt.IsZero() && !org.UpdatedAt.Equal(update.SourceUpdatedAt) {
			return storage.ErrStale
		}

		org.SearchableText = update.SearchableText
		org.Embedding = update.Embedding
		org.EmbeddedFingerprint = update.Fingerprint
		org.EmbeddedAt = time.Now().UTC()
		return tx.Set(key, storage.MarshalOrganization(org))
	})
}

// GetOrganization retrieves a single organization by ID.
func (r *OrganizationRepository) GetOrganization(ctx context.Context, id core.ID) (*core.Organization, error) {
	var result *core.Organization
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readOrganization(tx, makeOrgKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetOrganizations retrieves multiple organizations by their IDs.
func (r *OrganizationRepository) GetOrganizations(ctx context.Context, ids ...core.ID) ([]*core.Organization, error) {
	var result []*core.Organization
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			org, err := readOrganization(tx, makeOrgKey(id))
			if err != nil {
				return err
			}
			if org != nil {
				result = append(result, org)
			}
		}
		return nil
	}, false)
	return result, err
}

// ListOrganizations pages through organizations in ascending ID order.
func (r *OrganizationRepository) ListOrganizations(ctx context.Context, after core.ID, limit int) ([]*core.Organization, error) {
	if limit < 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.Organization
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = orgKeyPrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()

		seek := opts.Prefix
		if after > 0 {
			seek = makeOrgKey(after + 1)
		}
		for iter.Seek(seek); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			org, err := decodeItem(iter.Item())
			if err != nil {
				return err
			}
			results = append(results, org)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
		return nil
	}, false)
	return results, err
}

// FindCandidates returns organizations accepted by filter in ascending ID order.
// A state constraint walks the state index instead of the whole table.
func (r *OrganizationRepository) FindCandidates(ctx context.Context, filter storage.CandidateFilter) ([]*core.Organization, error) {
	limit := filter.EffectiveLimit()

	var results []*core.Organization
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if filter.State == "" {
			return r.scanAll(ctx, tx, func(org *core.Organization) bool {
				if filter.Accepts(org) {
					results = append(results, org)
				}
				return len(results) < limit
			})
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialOrgStateKey(filter.State)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid() && len(results) < limit; iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := iter.Item().Key()
			if len(key) < len(opts.Prefix)+8 {
				continue
			}
			id := core.ID(binary.BigEndian.Uint64(key[len(opts.Prefix):]))
			org, err := readOrganization(tx, makeOrgKey(id))
			if err != nil {
				return err
			}
			if org != nil && filter.Accepts(org) {
				results = append(results, org)
			}
		}
		return nil
	}, false)
	return results, err
}

// DeleteOrganizations removes organizations by their IDs.
func (r *OrganizationRepository) DeleteOrganizations(ctx context.Context, ids ...core.ID) error {
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		for _, id := range ids {
			key := makeOrgKey(id)
			org, err := readOrganization(tx, key)
			if err != nil {
				return err
			}
			if org == nil {
				return storage.ErrNotFound
			}
			if org.State != "" {
				if err := tx.Delete(makeOrgStateKey(org.State, id)); err != nil {
					return err
				}
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// CountOrganizations returns the number of stored organizations.
func (r *OrganizationRepository) CountOrganizations(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = orgKeyPrefix()
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return ctx.Err()
	}, false)
	return count, err
}

// Helper methods

// scanAll visits every organization in ID order until visit returns false.
func (r *OrganizationRepository) scanAll(ctx context.Context, tx *badger.Txn, visit func(*core.Organization) bool) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = orgKeyPrefix()
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		org, err := decodeItem(iter.Item())
		if err != nil {
			return err
		}
		if !visit(org) {
			return nil
		}
	}
	return nil
}

// readOrganization reads an organization from the transaction.
// Returns nil, nil when the key doesn't exist.
func readOrganization(tx *badger.Txn, key []byte) (*core.Organization, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeItem(item)
}

func decodeItem(item *badger.Item) (*core.Organization, error) {
	var org *core.Organization
	err := item.Value(func(val []byte) error {
		var unmarshalErr error
		org, unmarshalErr = storage.UnmarshalOrganization(val)
		return unmarshalErr
	})
	return org, err
}
