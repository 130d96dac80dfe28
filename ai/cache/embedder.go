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

// Package cache decorates an ai.Embedder with a Redis-backed vector cache.
//
// Embeddings are deterministic for a given model and text, so a cached
// vector is always valid. Keys combine the model name with the text
// fingerprint. Cache failures are logged and fall through to the wrapped
// embedder; they never fail an embedding request.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/donorfinder/ai"
	"github.com/poiesic/donorfinder/core"
	"github.com/poiesic/donorfinder/storage"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a cached vector lives.
const DefaultTTL = 30 * 24 * time.Hour

// Client is the subset of the go-redis client used by the cache.
type Client interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Options configures a connection to Redis.
type Options struct {
	Address  string
	Password string
	DB       int
}

// NewClient opens a go-redis client for opts.
func NewClient(opts Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// Embedder caches the vectors produced by another embedder.
type Embedder struct {
	next   ai.Embedder
	client Client
	model  string
	ttl    time.Duration
	logger *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// Option configures an Embedder.
type Option func(*Embedder)

// WithTTL sets the expiration of cached vectors.
func WithTTL(ttl time.Duration) Option {
	return func(e *Embedder) {
		e.ttl = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Embedder) {
		e.logger = logger
	}
}

// New wraps next with a cache stored in client. model namespaces the keys
// so vectors from different models never mix.
func New(next ai.Embedder, client Client, model string, opts ...Option) (*Embedder, error) {
	if next == nil {
		return nil, errors.New("cache: embedder is required")
	}
	if client == nil {
		return nil, errors.New("cache: redis client is required")
	}
	e := &Embedder{
		next:   next,
		client: client,
		model:  model,
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "embedding-cache")
	return e, nil
}

// Key returns the cache key of text.
func (e *Embedder) Key(text string) string {
	return fmt.Sprintf("emb:%s:%016x", e.model, core.Fingerprint(text))
}

// Dimensions returns the dimensions of the wrapped embedder.
func (e *Embedder) Dimensions() int {
	return e.next.Dimensions()
}

// EmbedText returns a cached vector or computes and caches a new one.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts serves what it can from one cache read and embeds the rest in
// one call.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := e.lookup(ctx, texts)
	var missing []string
	var positions []int
	for i, text := range texts {
		if out[i] == nil {
			missing = append(missing, text)
			positions = append(positions, i)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := e.next.EmbedTexts(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embedding result mismatch. expected %d, received %d", len(missing), len(vectors))
	}
	for j, v := range vectors {
		out[positions[j]] = v
		e.store(ctx, missing[j], v)
	}
	return out, nil
}

// lookup reads every text's vector with a single MGET. Misses are nil.
func (e *Embedder) lookup(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out
	}
	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = e.Key(text)
	}
	values, err := e.client.MGet(ctx, keys...).Result()
	if err != nil {
		e.logger.Warn("cache read failed", "err", err)
		return out
	}
	for i, value := range values {
		if i >= len(out) {
			break
		}
		var data []byte
		switch v := value.(type) {
		case nil:
			continue
		case string:
			data = []byte(v)
		case []byte:
			data = v
		default:
			continue
		}
		vector, err := storage.UnmarshalVector(data)
		if err != nil || len(vector) != e.next.Dimensions() {
			e.logger.Warn("discarding corrupt cache entry", "key", keys[i])
			continue
		}
		out[i] = vector
	}
	return out
}

func (e *Embedder) store(ctx context.Context, text string, v []float32) {
	if ai.IsZero(v) {
		return
	}
	if err := e.client.Set(ctx, e.Key(text), storage.MarshalVector(v), e.ttl).Err(); err != nil {
		e.logger.Warn("cache write failed", "err", err)
	}
}
