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

// Package donorfinder wires the storage, embedding, indexing and search
// components of the nonprofit search engine into a single Database.
package donorfinder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/donorfinder/ai"
	"github.com/poiesic/donorfinder/ai/cache"
	"github.com/poiesic/donorfinder/ai/mock"
	"github.com/poiesic/donorfinder/ai/onnx"
	"github.com/poiesic/donorfinder/ai/openai"
	"github.com/poiesic/donorfinder/api"
	"github.com/poiesic/donorfinder/indexer"
	"github.com/poiesic/donorfinder/ingestion"
	"github.com/poiesic/donorfinder/lexicon"
	"github.com/poiesic/donorfinder/query"
	"github.com/poiesic/donorfinder/search"
	"github.com/poiesic/donorfinder/searchtext"
	"github.com/poiesic/donorfinder/storage"
	"github.com/poiesic/donorfinder/storage/badger"
	"github.com/poiesic/donorfinder/storage/postgres"
)

// ErrConfigRequired is returned by NewDatabase when called without a Config.
var ErrConfigRequired = errors.New("config is required")

// Database owns the store and embedder of a deployment and builds the
// components that share them.
type Database struct {
	config   *Config
	repo     storage.OrganizationRepository
	embedder ai.Embedder
	lexicon  *lexicon.Lexicon
	builder  *searchtext.Builder
	parser   *query.Parser
	closers  []io.Closer
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	logger   *slog.Logger
	repo     storage.OrganizationRepository
	embedder ai.Embedder
}

// WithLogger sets the logger handed to every component.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// WithRepository uses an already open repository instead of the one named
// by the storage section. The Database closes it on Close.
func WithRepository(repo storage.OrganizationRepository) DatabaseOption {
	return func(o *databaseOptions) {
		o.repo = repo
	}
}

// WithEmbedder uses embedder instead of the provider named by the embedding
// section. The cache section still applies.
func WithEmbedder(embedder ai.Embedder) DatabaseOption {
	return func(o *databaseOptions) {
		o.embedder = embedder
	}
}

// NewDatabase validates cfg, opens the store and builds the embedder.
func NewDatabase(ctx context.Context, cfg *Config, opts ...DatabaseOption) (*Database, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &databaseOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	db := &Database{
		config: cfg,
		logger: options.logger.With("component", "database"),
	}

	lex, err := lexicon.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load lexicon: %w", err)
	}
	db.lexicon = lex

	if db.builder, err = searchtext.NewBuilder(lex); err != nil {
		return nil, err
	}

	var parserOpts []query.Option
	if cfg.Search.RemoveCauseTerms {
		parserOpts = append(parserOpts, query.WithCauseTermRemoval())
	}
	if db.parser, err = query.NewParser(lex, parserOpts...); err != nil {
		return nil, err
	}

	db.repo = options.repo
	if db.repo == nil {
		if db.repo, err = openRepository(ctx, &cfg.Storage, cfg.Embedding.Dimensions); err != nil {
			return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Driver, err)
		}
	}
	db.closers = append(db.closers, db.repo)

	db.embedder = options.embedder
	if db.embedder == nil {
		if db.embedder, err = db.openEmbedder(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
	}
	if db.embedder.Dimensions() != cfg.Embedding.Dimensions {
		db.Close()
		return nil, fmt.Errorf("%w: embedder produces %d dimensions, config expects %d",
			ai.ErrDimensionMismatch, db.embedder.Dimensions(), cfg.Embedding.Dimensions)
	}

	if cfg.Cache.Enabled {
		client := cache.NewClient(cache.Options{
			Address:  cfg.Cache.Address,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		db.closers = append(db.closers, client)
		cached, err := cache.New(db.embedder, client, cacheNamespace(cfg),
			cache.WithTTL(cfg.Cache.TTL),
			cache.WithLogger(options.logger),
		)
		if err != nil {
			db.Close()
			return nil, err
		}
		db.embedder = cached
	}

	return db, nil
}

func openRepository(ctx context.Context, cfg *StorageConfig, dims int) (storage.OrganizationRepository, error) {
	switch cfg.Driver {
	case DriverPostgres:
		store, err := postgres.Open(ctx, cfg.DSN, dims)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := store.Migrate(ctx); err != nil {
				store.Close()
				return nil, fmt.Errorf("migration failed: %w", err)
			}
		}
		return store, nil
	default:
		if cfg.InMemory {
			return badger.NewMemoryRepository()
		}
		return badger.NewRepository(cfg.Path)
	}
}

func (db *Database) openEmbedder() (ai.Embedder, error) {
	aiConfig := db.config.AIConfig()
	if err := aiConfig.Validate(); err != nil {
		return nil, err
	}
	switch aiConfig.Provider {
	case ai.ProviderONNX:
		e, err := onnx.NewEmbedder(aiConfig)
		if errors.Is(err, ai.ErrModelUnavailable) {
			db.logger.Warn("embedding model unavailable, searches will use keyword scoring",
				"model", aiConfig.ModelPath, "err", err)
			return ai.NewUnavailable(aiConfig.Dimensions, err), nil
		}
		if err != nil {
			return nil, err
		}
		db.closers = append(db.closers, e)
		return e, nil
	case ai.ProviderMock:
		return mock.NewMockEmbedder().WithDimensions(aiConfig.Dimensions), nil
	default:
		return openai.NewEmbedder(aiConfig)
	}
}

func cacheNamespace(cfg *Config) string {
	if cfg.Embedding.Provider == ai.ProviderONNX {
		return fmt.Sprintf("%s:%s", ai.ProviderONNX, cfg.Embedding.ModelPath)
	}
	return fmt.Sprintf("%s:%s", cfg.Embedding.Provider, cfg.Embedding.Model)
}

// Close releases the embedder, the cache connection and the store, in
// reverse order of acquisition.
func (db *Database) Close() error {
	var errs []error
	for i := len(db.closers) - 1; i >= 0; i-- {
		if err := db.closers[i].Close(); err != nil {
			db.logger.Error("error closing resource", "err", err)
			errs = append(errs, err)
		}
	}
	db.closers = nil
	return errors.Join(errs...)
}

// Config returns the configuration the database was opened with.
func (db *Database) Config() *Config {
	return db.config
}

// Repository returns the organization store.
func (db *Database) Repository() storage.OrganizationRepository {
	return db.repo
}

// Embedder returns the embedder, including the cache when enabled.
func (db *Database) Embedder() ai.Embedder {
	return db.embedder
}

// Lexicon returns the lookup tables shared by the parser and builder.
func (db *Database) Lexicon() *lexicon.Lexicon {
	return db.lexicon
}

// Builder returns the searchable-text builder.
func (db *Database) Builder() *searchtext.Builder {
	return db.builder
}

// NewSearcher creates a searcher tuned by the search section. opts are
// applied after the configured values.
func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	base := []search.Option{
		search.WithLogger(db.logger),
		search.WithAlpha(db.config.Search.Alpha),
		search.WithMinSemantic(db.config.Search.MinSemantic),
		search.WithCandidateLimit(db.config.Search.CandidateLimit),
	}
	return search.NewSearcher(db.repo, db.embedder, db.parser, append(base, opts...)...)
}

// NewIndexer creates an indexer tuned by the indexing section. Release must
// be called when done.
func (db *Database) NewIndexer(opts ...indexer.Option) (*indexer.Indexer, error) {
	base := []indexer.Option{
		indexer.WithLogger(db.logger),
		indexer.WithConfig(db.config.IndexerConfig()),
	}
	return indexer.NewIndexer(db.repo, db.embedder, db.builder, append(base, opts...)...)
}

// NewIngestionPipeline creates a pipeline that stores records and hands
// the changed ones to idx. Release must be called when done.
func (db *Database) NewIngestionPipeline(idx ingestion.Indexer, opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	base := []ingestion.Option{ingestion.WithLogger(db.logger)}
	return ingestion.NewPipeline(db.repo, db.builder, idx, append(base, opts...)...)
}

// NewServer creates the HTTP API over searcher and idx, reading single
// organizations from the database's store.
func (db *Database) NewServer(searcher api.Searcher, idx api.BatchIndexer, opts ...api.Option) (*api.Server, error) {
	base := []api.Option{
		api.WithLogger(db.logger),
		api.WithVersion(db.config.Server.Version),
		api.WithSearchTimeout(db.config.Search.Timeout),
	}
	return api.NewServer(searcher, idx, db.repo, append(base, opts...)...)
}
