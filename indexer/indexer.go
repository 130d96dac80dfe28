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

package indexer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/donorfinder/ai"
	"github.com/poiesic/donorfinder/core"
	"github.com/poiesic/donorfinder/searchtext"
	"github.com/poiesic/donorfinder/storage"
)

// listPageSize is how many organizations are read per scan page.
const listPageSize = 500

// Config holds configuration for indexing.
type Config struct {
	// BatchSize is the number of stale organizations Run collects per batch.
	BatchSize int

	// ChunkSize is the number of texts sent to the embedder in one call.
	ChunkSize int

	// PoolSize is the number of chunks embedded concurrently.
	PoolSize int

	// MaxRetries is the number of retries of a failed chunk before falling
	// back to embedding its organizations one at a time.
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff.
	RetryDelay time.Duration

	// ReportInterval is how often Run reports progress (number of organizations).
	ReportInterval int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ChunkSize:      32,
		PoolSize:       max(runtime.NumCPU()/2, 1),
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		ReportInterval: 100,
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return ErrInvalidBatchSize
	case c.ChunkSize <= 0:
		return fmt.Errorf("chunk size must be greater than 0, got %d", c.ChunkSize)
	case c.PoolSize <= 0:
		return fmt.Errorf("pool size must be greater than 0, got %d", c.PoolSize)
	case c.MaxRetries < 0:
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	case c.RetryDelay <= 0:
		return fmt.Errorf("retry delay must be positive, got %v", c.RetryDelay)
	}
	return nil
}

// Stats counts the outcome of an indexing pass.
type Stats struct {
	// Scanned is the number of organizations examined.
	Scanned int
	// Updated is the number of organizations whose embedding was written.
	Updated int
	// Skipped is the number of organizations that were already current or
	// disappeared before their embedding was written.
	Skipped int
	// Failed is the number of stale organizations that could not be embedded
	// or stored. They stay stale and are picked up again by a later pass.
	Failed int
}

func (s *Stats) add(o Stats) {
	s.Scanned += o.Scanned
	s.Updated += o.Updated
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

// Indexer computes missing and stale embeddings of stored organizations.
// It is safe for concurrent use; concurrent writes to the same organization
// are serialized by the repository.
type Indexer struct {
	repo     storage.OrganizationRepository
	embedder ai.Embedder
	builder  *searchtext.Builder
	pool     *ants.Pool
	config   *Config
	progress io.Writer
	logger   *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer) error

// WithConfig replaces the default configuration.
func WithConfig(config *Config) Option {
	return func(ix *Indexer) error {
		if config == nil {
			return nil
		}
		if err := config.Validate(); err != nil {
			return err
		}
		ix.config = config
		return nil
	}
}

// WithProgress sets where Run reports progress.
// Default is io.Discard.
func WithProgress(w io.Writer) Option {
	return func(ix *Indexer) error {
		if w == nil {
			w = io.Discard
		}
		ix.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) error {
		if logger == nil {
			logger = slog.Default()
		}
		ix.logger = logger
		return nil
	}
}

// NewIndexer creates a new indexer. Release must be called when done.
func NewIndexer(
	repo storage.OrganizationRepository,
	embedder ai.Embedder,
	builder *searchtext.Builder,
	opts ...Option,
) (*Indexer, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if builder == nil {
		return nil, ErrBuilderRequired
	}

	ix := &Indexer{
		repo:     repo,
		embedder: embedder,
		builder:  builder,
		config:   DefaultConfig(),
		progress: io.Discard,
		logger:   slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(ix); err != nil {
			return nil, err
		}
	}
	ix.logger = ix.logger.With("component", "indexer")

	pool, err := ants.NewPool(ix.config.PoolSize)
	if err != nil {
		return nil, err
	}
	ix.pool = pool

	return ix, nil
}

// Release releases the worker pool.
// The indexer should not be used after calling Release.
func (ix *Indexer) Release() {
	if ix.pool != nil {
		ix.pool.Release()
	}
}

// IndexBatch embeds up to batchSize stale organizations, lowest EIN first.
// Organizations that fail are counted and left stale; the batch continues.
func (ix *Indexer) IndexBatch(ctx context.Context, batchSize int) (Stats, error) {
	if batchSize <= 0 {
		return Stats{}, ErrInvalidBatchSize
	}

	stale, stats, _, _, err := ix.scan(ctx, 0, batchSize)
	if err != nil {
		return stats, err
	}
	stats.add(ix.process(ctx, stale))

	ix.logger.Info("indexed batch", "scanned", stats.Scanned, "updated", stats.Updated,
		"skipped", stats.Skipped, "failed", stats.Failed)
	return stats, ctx.Err()
}

// IndexIDs embeds the given organizations if they are stale.
// Unknown IDs are ignored.
func (ix *Indexer) IndexIDs(ctx context.Context, ids ...core.ID) (Stats, error) {
	var stats Stats
	if len(ids) == 0 {
		return stats, nil
	}

	orgs, err := ix.repo.GetOrganizations(ctx, ids...)
	if err != nil {
		ix.logger.Error("error retrieving organizations", "err", err)
		return stats, err
	}

	stale := make([]pending, 0, len(orgs))
	for _, org := range orgs {
		stats.Scanned++
		if p, ok := ix.stale(org); ok {
			stale = append(stale, p)
		} else {
			stats.Skipped++
		}
	}
	stats.add(ix.process(ctx, stale))

	ix.logger.Debug("indexed organizations", "requested", len(ids), "updated", stats.Updated, "failed", stats.Failed)
	return stats, ctx.Err()
}

// Pending counts the stale organizations.
func (ix *Indexer) Pending(ctx context.Context) (int, error) {
	count := 0
	var after core.ID
	for {
		orgs, err := ix.repo.ListOrganizations(ctx, after, listPageSize)
		if err != nil {
			return 0, err
		}
		for _, org := range orgs {
			if _, ok := ix.stale(org); ok {
				count++
			}
			after = org.Id
		}
		if len(orgs) < listPageSize {
			return count, nil
		}
	}
}

// Run makes one pass over every organization, embedding stale ones in
// batches of Config.BatchSize, and reports progress to the configured writer.
func (ix *Indexer) Run(ctx context.Context) (Stats, error) {
	var total Stats

	count, err := ix.Pending(ctx)
	if err != nil {
		return total, fmt.Errorf("failed to count stale organizations: %w", err)
	}
	if count == 0 {
		fmt.Fprintf(ix.progress, "All organizations are indexed\n")
		return total, nil
	}

	fmt.Fprintf(ix.progress, "Indexing %d organizations (batch size: %d)\n", count, ix.config.BatchSize)

	tracker := NewProgressTracker(ix.progress, count, ix.config.ReportInterval)
	tracker.Start()

	var after core.ID
	for {
		stale, stats, next, done, err := ix.scan(ctx, after, ix.config.BatchSize)
		total.add(stats)
		if err != nil {
			return total, err
		}

		processed := ix.process(ctx, stale)
		total.add(processed)
		tracker.Add(processed)

		if err := ctx.Err(); err != nil {
			return total, err
		}
		if done {
			break
		}
		after = next
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(ix.progress, "Indexing complete. Updated %d organizations in %v (%d failed)\n",
		total.Updated, elapsed.Round(time.Millisecond), total.Failed)

	return total, nil
}

// scan walks organizations after the given EIN and collects up to limit
// stale ones. It returns the EIN to resume from and whether the walk reached
// the end.
func (ix *Indexer) scan(ctx context.Context, after core.ID, limit int) ([]pending, Stats, core.ID, bool, error) {
	var stats Stats
	stale := make([]pending, 0, limit)

	for {
		orgs, err := ix.repo.ListOrganizations(ctx, after, listPageSize)
		if err != nil {
			ix.logger.Error("error listing organizations", "err", err)
			return nil, stats, after, false, err
		}
		for _, org := range orgs {
			after = org.Id
			stats.Scanned++
			p, ok := ix.stale(org)
			if !ok {
				stats.Skipped++
				continue
			}
			stale = append(stale, p)
			if len(stale) == limit {
				return stale, stats, after, false, nil
			}
		}
		if len(orgs) < listPageSize {
			return stale, stats, after, true, nil
		}
	}
}

// stale rebuilds the searchable text of org and reports whether the stored
// text or embedding no longer matches it.
func (ix *Indexer) stale(org *core.Organization) (pending, bool) {
	text := ix.builder.Build(org)
	if !org.NeedsEmbedding(text) && org.SearchableText == text {
		return pending{}, false
	}
	return pending{org: org, text: text}, true
}

// process embeds stale organizations chunk by chunk on the worker pool and
// waits for every chunk to finish.
func (ix *Indexer) process(ctx context.Context, stale []pending) Stats {
	var (
		total Stats
		mu    sync.Mutex
		wg    sync.WaitGroup
	)
	for start := 0; start < len(stale); start += ix.config.ChunkSize {
		chunk := stale[start:min(start+ix.config.ChunkSize, len(stale))]

		wg.Add(1)
		err := ix.pool.Submit(func() {
			defer wg.Done()
			stats := ix.processChunk(ctx, chunk)
			mu.Lock()
			total.add(stats)
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			ix.logger.Error("error submitting chunk", "size", len(chunk), "err", err)
			mu.Lock()
			total.Failed += len(chunk)
			mu.Unlock()
		}
	}
	wg.Wait()
	return total
}
