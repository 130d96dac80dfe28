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
	"errors"
	"fmt"

	"github.com/poiesic/donorfinder/ai"
	"github.com/poiesic/donorfinder/core"
	"github.com/poiesic/donorfinder/storage"
)

// pending is a stale organization with the searchable text it should be
// embedded from.
type pending struct {
	org  *core.Organization
	text string
}

// embedChunk embeds texts as one request and, if that keeps failing, one
// text at a time. The result has one entry per text; entries that could not
// be embedded are nil.
func (ix *Indexer) embedChunk(ctx context.Context, texts []string) [][]float32 {
	var vectors [][]float32
	err := withRetry(ctx, ix.logger, ix.config.MaxRetries, ix.config.RetryDelay, func(ctx context.Context) error {
		v, err := ix.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(v) != len(texts) {
			return fmt.Errorf("embedding result mismatch. expected %d, received %d", len(texts), len(v))
		}
		vectors = v
		return nil
	})
	if err == nil {
		return vectors
	}

	vectors = make([][]float32, len(texts))
	if ctx.Err() != nil {
		return vectors
	}

	ix.logger.Warn("chunk embedding failed, embedding organizations individually", "size", len(texts), "err", err)
	for i, text := range texts {
		if ctx.Err() != nil {
			break
		}
		v, err := ix.embedder.EmbedText(ctx, text)
		if err != nil {
			ix.logger.Debug("error embedding text", "err", err)
			continue
		}
		vectors[i] = v
	}
	return vectors
}

// processChunk embeds one chunk and persists every usable vector.
func (ix *Indexer) processChunk(ctx context.Context, chunk []pending) Stats {
	var stats Stats

	texts := make([]string, len(chunk))
	for i, p := range chunk {
		texts[i] = p.text
	}
	vectors := ix.embedChunk(ctx, texts)

	dims := ix.embedder.Dimensions()
	for i, p := range chunk {
		vector := vectors[i]
		if len(vector) != dims || ai.IsZero(vector) {
			ix.logger.Warn("skipping organization without usable embedding",
				"ein", p.org.Id, "dimensions", len(vector))
			stats.Failed++
			continue
		}

		err := ix.repo.UpdateEmbedding(ctx, p.org.Id, storage.EmbeddingUpdate{
			SearchableText:  p.text,
			Embedding:       ai.NormalizeVector(vector),
			Fingerprint:     core.Fingerprint(p.text),
			SourceUpdatedAt: p.org.UpdatedAt,
		})
		switch {
		case err == nil:
			stats.Updated++
		case errors.Is(err, storage.ErrNotFound):
			// Deleted while it was being embedded.
			stats.Skipped++
		case errors.Is(err, storage.ErrStale):
			// Re-ingested while it was being embedded; the next pass picks it up.
			ix.logger.Debug("organization changed during embedding", "ein", p.org.Id)
			stats.Skipped++
		default:
			ix.logger.Error("error storing embedding", "ein", p.org.Id, "err", err)
			stats.Failed++
		}
	}
	return stats
}
