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

package donorfinder

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/poiesic/donorfinder/ai"
	"github.com/poiesic/donorfinder/ai/cache"
	"github.com/poiesic/donorfinder/indexer"
	"github.com/poiesic/donorfinder/search"
	"github.com/poiesic/donorfinder/storage"
)

// Storage drivers.
const (
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
)

// ErrInvalidConfig wraps every validation failure of a Config.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the configuration of a donorfinder deployment, usually loaded
// from a TOML file.
type Config struct {
	Storage   StorageConfig   `toml:"storage"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Cache     CacheConfig     `toml:"cache"`
	Search    SearchConfig    `toml:"search"`
	Indexing  IndexingConfig  `toml:"indexing"`
	Server    ServerConfig    `toml:"server"`
}

// StorageConfig selects and locates the organization store.
type StorageConfig struct {
	Driver   string `toml:"driver"` // "badger" or "postgres"
	Path     string `toml:"path"`
	InMemory bool   `toml:"in_memory"`
	DSN      string `toml:"dsn"` // supports ${ENV_VAR} expansion
	Migrate  bool   `toml:"migrate"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider          string `toml:"provider"` // "openai", "onnx" or "mock"
	Host              string `toml:"host"`
	Model             string `toml:"model"`
	APIKey            string `toml:"api_key"` // supports ${ENV_VAR} expansion
	Dimensions        int    `toml:"dimensions"`
	ModelPath         string `toml:"model_path"`
	TokenizerPath     string `toml:"tokenizer_path"`
	LibraryPath       string `toml:"library_path"`
	MaxSequenceLength int    `toml:"max_sequence_length"`
}

// CacheConfig configures the Redis cache in front of the embedder.
type CacheConfig struct {
	Enabled  bool          `toml:"enabled"`
	Address  string        `toml:"address"`
	Password string        `toml:"password"` // supports ${ENV_VAR} expansion
	DB       int           `toml:"db"`
	TTL      time.Duration `toml:"ttl"`
}

// SearchConfig tunes ranking.
type SearchConfig struct {
	Alpha            float64       `toml:"alpha"`
	MinSemantic      float64       `toml:"min_semantic"`
	CandidateLimit   int           `toml:"candidate_limit"`
	Timeout          time.Duration `toml:"timeout"`
	RemoveCauseTerms bool          `toml:"remove_cause_terms"`
}

// IndexingConfig tunes the embedding indexer.
type IndexingConfig struct {
	BatchSize      int           `toml:"batch_size"`
	ChunkSize      int           `toml:"chunk_size"`
	PoolSize       int           `toml:"pool_size"`
	MaxRetries     int           `toml:"max_retries"`
	RetryDelay     time.Duration `toml:"retry_delay"`
	ReportInterval int           `toml:"report_interval"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address string `toml:"address"`
	Version string `toml:"version"`
}

// DefaultConfig returns a Config that runs against a local BadgerDB
// database and an OpenAI-compatible embedding server on localhost.
func DefaultConfig() *Config {
	aiDefaults := ai.DefaultConfig()
	idx := indexer.DefaultConfig()
	return &Config{
		Storage: StorageConfig{
			Driver: DriverBadger,
			Path:   "donorfinder.db",
		},
		Embedding: EmbeddingConfig{
			Provider:          aiDefaults.Provider,
			Host:              aiDefaults.EmbeddingHost,
			Model:             aiDefaults.EmbeddingModel,
			Dimensions:        aiDefaults.Dimensions,
			MaxSequenceLength: aiDefaults.MaxSequenceLength,
		},
		Cache: CacheConfig{
			Address: "localhost:6379",
			TTL:     cache.DefaultTTL,
		},
		Search: SearchConfig{
			Alpha:          search.DefaultAlpha,
			CandidateLimit: storage.DefaultCandidateLimit,
			Timeout:        10 * time.Second,
		},
		Indexing: IndexingConfig{
			BatchSize:      idx.BatchSize,
			ChunkSize:      idx.ChunkSize,
			PoolSize:       idx.PoolSize,
			MaxRetries:     idx.MaxRetries,
			RetryDelay:     idx.RetryDelay,
			ReportInterval: idx.ReportInterval,
		},
		Server: ServerConfig{
			Address: ":8080",
			Version: "dev",
		},
	}
}

// LoadConfig reads a TOML file at path on top of DefaultConfig.
// Keys missing from the file keep their default; unknown keys are an error.
// ${VAR_NAME} references in secrets and connection strings are expanded
// from the environment.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseConfig(string(data))
}

// ParseConfig is like LoadConfig but reads the TOML document from data.
func ParseConfig(data string) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		slices.Sort(keys)
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}
	cfg.expandEnv()
	return cfg, nil
}

func (c *Config) expandEnv() {
	for _, field := range []*string{
		&c.Storage.Path,
		&c.Storage.DSN,
		&c.Embedding.Host,
		&c.Embedding.APIKey,
		&c.Cache.Address,
		&c.Cache.Password,
	} {
		*field = expandEnvVars(*field)
	}
}

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

// Validate checks the configuration for missing or out of range values.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverBadger:
		if c.Storage.Path == "" && !c.Storage.InMemory {
			return fmt.Errorf("%w: storage.path is required", ErrInvalidConfig)
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("%w: storage.dsn is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}

	if err := c.AIConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.Cache.Enabled {
		if c.Cache.Address == "" {
			return fmt.Errorf("%w: cache.address is required", ErrInvalidConfig)
		}
		if c.Cache.TTL < 0 {
			return fmt.Errorf("%w: cache.ttl must not be negative", ErrInvalidConfig)
		}
	}

	switch {
	case c.Search.Alpha < 0 || c.Search.Alpha > 1:
		return fmt.Errorf("%w: search.alpha must be within [0, 1], got %v", ErrInvalidConfig, c.Search.Alpha)
	case c.Search.MinSemantic < 0 || c.Search.MinSemantic > 1:
		return fmt.Errorf("%w: search.min_semantic must be within [0, 1], got %v", ErrInvalidConfig, c.Search.MinSemantic)
	case c.Search.CandidateLimit <= 0:
		return fmt.Errorf("%w: search.candidate_limit must be positive", ErrInvalidConfig)
	case c.Search.Timeout < 0:
		return fmt.Errorf("%w: search.timeout must not be negative", ErrInvalidConfig)
	}

	idx := c.IndexerConfig()
	if err := idx.Validate(); err != nil {
		return fmt.Errorf("%w: indexing: %w", ErrInvalidConfig, err)
	}
	if idx.ReportInterval <= 0 {
		return fmt.Errorf("%w: indexing.report_interval must be positive", ErrInvalidConfig)
	}

	if c.Server.Address == "" {
		return fmt.Errorf("%w: server.address is required", ErrInvalidConfig)
	}
	return nil
}

// AIConfig converts the embedding section to an ai.Config.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(c.Embedding.Provider),
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithAPIKey(c.Embedding.APIKey),
		ai.WithDimensions(c.Embedding.Dimensions),
		ai.WithONNXModel(c.Embedding.ModelPath, c.Embedding.TokenizerPath, c.Embedding.LibraryPath),
		func(cfg *ai.Config) {
			cfg.MaxSequenceLength = c.Embedding.MaxSequenceLength
		},
	)
}

// IndexerConfig converts the indexing section to an indexer.Config.
func (c *Config) IndexerConfig() *indexer.Config {
	return &indexer.Config{
		BatchSize:      c.Indexing.BatchSize,
		ChunkSize:      c.Indexing.ChunkSize,
		PoolSize:       c.Indexing.PoolSize,
		MaxRetries:     c.Indexing.MaxRetries,
		RetryDelay:     c.Indexing.RetryDelay,
		ReportInterval: c.Indexing.ReportInterval,
	}
}
