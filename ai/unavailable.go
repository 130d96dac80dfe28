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

package ai

import (
	"context"
	"errors"
	"fmt"
)

// Unavailable is an Embedder standing in for a model that could not be
// loaded. Every call fails with an error wrapping ErrModelUnavailable, so
// searches degrade to keyword scoring and indexing records failures.
type Unavailable struct {
	dims  int
	cause error
}

var _ Embedder = (*Unavailable)(nil)

// NewUnavailable returns an embedder reporting dims dimensions whose calls
// fail with cause.
func NewUnavailable(dims int, cause error) *Unavailable {
	return &Unavailable{dims: dims, cause: cause}
}

func (u *Unavailable) err() error {
	switch {
	case u.cause == nil:
		return ErrModelUnavailable
	case errors.Is(u.cause, ErrModelUnavailable):
		return u.cause
	}
	return fmt.Errorf("%w: %w", ErrModelUnavailable, u.cause)
}

// EmbedText always fails.
func (u *Unavailable) EmbedText(_ context.Context, _ string) ([]float32, error) {
	return nil, u.err()
}

// EmbedTexts always fails.
func (u *Unavailable) EmbedTexts(_ context.Context, _ []string) ([][]float32, error) {
	return nil, u.err()
}

// Dimensions returns the configured dimensions.
func (u *Unavailable) Dimensions() int {
	return u.dims
}
