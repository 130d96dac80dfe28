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

// Package onnx runs a sentence-transformer model (all-MiniLM-L6-v2 by
// default) locally through onnxruntime.
//
// Text is tokenized with a HuggingFace tokenizer.json, run through the model
// one sequence at a time, mean-pooled over the attention mask and L2
// normalized. Running sequences individually keeps batch output identical
// to single output. A missing model file, tokenizer or runtime library makes
// NewEmbedder fail with ai.ErrModelUnavailable.
package onnx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/poiesic/donorfinder/ai"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	inputNames  = []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames = []string{"last_hidden_state"}
)

// The onnxruntime environment is process wide.
var (
	runtimeOnce sync.Once
	runtimeErr  error
)

func initRuntime(libraryPath string) error {
	runtimeOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if !ort.IsInitialized() {
			runtimeErr = ort.InitializeEnvironment()
		}
	})
	return runtimeErr
}

// Embedder implements ai.Embedder with a local ONNX model.
type Embedder struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizer.Tokenizer
	dims      int
	maxLen    int
	mu        sync.Mutex
	logger    *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder loads the model and tokenizer named by config.
func NewEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	for _, path := range []string{config.ModelPath, config.TokenizerPath} {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %w", ai.ErrModelUnavailable, err)
		}
	}

	if err := initRuntime(config.LibraryPath); err != nil {
		return nil, fmt.Errorf("%w: onnxruntime: %w", ai.ErrModelUnavailable, err)
	}

	tk, err := pretrained.FromFile(config.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("%w: tokenizer: %w", ai.ErrModelUnavailable, err)
	}

	session, err := ort.NewDynamicAdvancedSession(config.ModelPath, inputNames, outputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: session: %w", ai.ErrModelUnavailable, err)
	}

	return &Embedder{
		session:   session,
		tokenizer: tk,
		dims:      config.Dimensions,
		maxLen:    config.MaxSequenceLength,
		logger:    slog.Default().With("component", "onnx-embedder", "model", config.ModelPath),
	}, nil
}

// Dimensions returns the configured vector length.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// Close releases the inference session.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	return ai.EmbedNonBlank(ctx, texts, e.dims, func(ctx context.Context, batch []string) ([][]float32, error) {
		out := make([][]float32, len(batch))
		for i, text := range batch {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			v, err := e.embedOne(text)
			if err != nil {
				e.logger.Error("failed to generate embedding", "err", err)
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	})
}

func (e *Embedder) embedOne(text string) ([]float32, error) {
	enc, err := e.tokenizer.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	ids := truncate(toInt64(enc.Ids), e.maxLen)
	mask := truncate(toInt64(enc.AttentionMask), e.maxLen)
	types := truncate(toInt64(enc.TypeIds), e.maxLen)
	seqLen := int64(len(ids))

	shape := ort.NewShape(1, seqLen)
	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, err
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, err
	}
	defer maskTensor.Destroy()
	typesTensor, err := ort.NewTensor(shape, types)
	if err != nil {
		return nil, err
	}
	defer typesTensor.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, seqLen, int64(e.dims)))
	if err != nil {
		return nil, err
	}
	defer output.Destroy()

	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: session closed", ai.ErrModelUnavailable)
	}
	err = e.session.Run([]ort.Value{idsTensor, maskTensor, typesTensor}, []ort.Value{output})
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: inference: %w", ai.ErrModelUnavailable, err)
	}

	return ai.NormalizeVector(MeanPool(output.GetData(), mask, e.dims)), nil
}
