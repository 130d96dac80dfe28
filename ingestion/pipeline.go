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

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/donorfinder/core"
	"github.com/poiesic/donorfinder/indexer"
	"github.com/poiesic/donorfinder/searchtext"
	"github.com/poiesic/donorfinder/storage"
)

// indexChunkSize is the number of organizations handed to the indexer per task.
const indexChunkSize = 100

// Indexer embeds stored organizations on demand.
type Indexer interface {
	IndexIDs(ctx context.Context, ids ...core.ID) (indexer.Stats, error)
}

// Result counts the outcome of one Ingest call.
type Result struct {
	// Received is the number of records passed in.
	Received int
	// Stored is the number of organizations upserted. Records repeating an
	// EIN are merged, last one wins.
	Stored int
	// Rejected is the number of records that failed validation.
	Rejected int
	// Queued is the number of organizations submitted for indexing.
	Queued int
}

// Pipeline orchestrates the ingestion of organizations.
type Pipeline struct {
	repo     storage.OrganizationRepository
	builder  *searchtext.Builder
	indexer  Indexer
	pool     *ants.Pool
	pending  sync.WaitGroup
	logger   *slog.Logger
	poolSize int
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of concurrent indexing tasks.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		p.poolSize = max(size, 1)
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline. Release must be called when done.
func NewPipeline(
	repo storage.OrganizationRepository,
	builder *searchtext.Builder,
	idx Indexer,
	opts ...Option,
) (*Pipeline, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if builder == nil {
		return nil, ErrBuilderRequired
	}
	if idx == nil {
		return nil, ErrIndexerRequired
	}

	p := &Pipeline{
		repo:     repo,
		builder:  builder,
		indexer:  idx,
		logger:   slog.Default(),
		poolSize: max(runtime.NumCPU()/2, 1),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	pool, err := ants.NewPool(p.poolSize)
	if err != nil {
		return nil, err
	}
	p.pool = pool

	return p, nil
}

// Ingest stores orgs and queues the ones whose searchable text changed for
// indexing. Invalid records are logged, counted and skipped. Stored
// embeddings are kept until the indexer replaces them.
func (p *Pipeline) Ingest(ctx context.Context, orgs []*core.Organization) (Result, error) {
	res := Result{Received: len(orgs)}

	byID := make(map[core.ID]*core.Organization, len(orgs))
	ids := make([]core.ID, 0, len(orgs))
	for _, org := range orgs {
		if org == nil {
			res.Rejected++
			continue
		}
		normalize(org)
		if err := core.ValidateOrganization(org); err != nil {
			p.logger.Warn("rejecting organization", "ein", org.Id, "err", err)
			res.Rejected++
			continue
		}
		if _, dup := byID[org.Id]; !dup {
			ids = append(ids, org.Id)
		}
		byID[org.Id] = org
	}
	if len(ids) == 0 {
		return res, nil
	}

	existing, err := p.repo.GetOrganizations(ctx, ids...)
	if err != nil {
		p.logger.Error("error retrieving existing organizations", "err", err)
		return res, err
	}
	previous := make(map[core.ID]*core.Organization, len(existing))
	for _, org := range existing {
		previous[org.Id] = org
	}

	batch := make([]*core.Organization, 0, len(ids))
	changed := make([]core.ID, 0, len(ids))
	for _, id := range ids {
		org := byID[id]
		p.builder.Refresh(org)
		if prev, ok := previous[id]; !ok || prev.NeedsEmbedding(org.SearchableText) {
			changed = append(changed, id)
		}
		batch = append(batch, org)
	}

	if _, err := p.repo.UpsertOrganizations(ctx, batch...); err != nil {
		p.logger.Error("error storing organizations", "err", err)
		return res, err
	}
	res.Stored = len(batch)

	for start := 0; start < len(changed); start += indexChunkSize {
		chunk := changed[start:min(start+indexChunkSize, len(changed))]
		if p.submit(chunk) {
			res.Queued += len(chunk)
		}
	}

	p.logger.Info("ingested organizations", "stored", res.Stored, "rejected", res.Rejected, "queued", res.Queued)
	return res, nil
}

// submit hands ids to the indexer asynchronously.
func (p *Pipeline) submit(ids []core.ID) bool {
	p.pending.Add(1)
	err := p.pool.Submit(func() {
		defer p.pending.Done()
		stats, err := p.indexer.IndexIDs(context.Background(), ids...)
		if err != nil {
			p.logger.Error("error indexing organizations", "err", err)
			return
		}
		if stats.Failed > 0 {
			p.logger.Warn("some organizations could not be indexed", "failed", stats.Failed)
		}
	})
	if err != nil {
		p.pending.Done()
		p.logger.Error("error submitting organizations for indexing", "count", len(ids), "err", err)
		return false
	}
	return true
}

// Wait blocks until all queued indexing work has finished.
func (p *Pipeline) Wait() {
	p.pending.Wait()
}

// Release waits for queued indexing work and releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	p.Wait()
	if p.pool != nil {
		p.pool.Release()
	}
}

// normalize tidies registry fields in place and derives a missing org type.
func normalize(org *core.Organization) {
	org.Name = strings.TrimSpace(org.Name)
	org.City = strings.TrimSpace(org.City)
	org.State = strings.ToUpper(strings.TrimSpace(org.State))
	org.NTEECode = strings.ToUpper(strings.TrimSpace(org.NTEECode))
	if org.OrgType == "" {
		org.OrgType = core.DeriveOrgType(org.Subsection, org.NTEECode, org.Name)
	}
}
