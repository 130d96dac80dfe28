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
	"errors"
	"strings"
)

// Supported embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
	ProviderMock   = "mock"
)

// DefaultDimensions is the vector length of all-MiniLM-L6-v2.
const DefaultDimensions = 384

// Config holds configuration for the embedding provider.
type Config struct {
	// Provider selects the implementation: "openai" (any OpenAI-compatible
	// endpoint, including Ollama), "onnx" (local model) or "mock".
	Provider string

	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "all-minilm", "text-embedding-3-small"
	EmbeddingModel string

	// APIKey authenticates against hosted services. Local servers ignore it.
	APIKey string

	// Dimensions is the vector length every embedding must have.
	// Default: 384
	Dimensions int

	// ModelPath is the ONNX model file for the onnx provider.
	ModelPath string

	// TokenizerPath is the tokenizer.json file for the onnx provider.
	TokenizerPath string

	// LibraryPath is the onnxruntime shared library. Empty uses the system default.
	LibraryPath string

	// MaxSequenceLength truncates tokenized input for the onnx provider.
	// Default: 256
	MaxSequenceLength int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithProvider sets the embedding provider.
func WithProvider(provider string) ConfigOption {
	return func(c *Config) {
		c.Provider = provider
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithAPIKey sets the API key for hosted services.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithDimensions sets the expected vector length.
func WithDimensions(dims int) ConfigOption {
	return func(c *Config) {
		c.Dimensions = dims
	}
}

// WithONNXModel sets the model, tokenizer and runtime library paths for the onnx provider.
func WithONNXModel(modelPath, tokenizerPath, libraryPath string) ConfigOption {
	return func(c *Config) {
		c.ModelPath = modelPath
		c.TokenizerPath = tokenizerPath
		c.LibraryPath = libraryPath
	}
}

// DefaultConfig returns a Config with sensible defaults for a local
// OpenAI-compatible server serving all-MiniLM-L6-v2.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderOpenAI,
		EmbeddingHost:     "http://localhost:11434/v1",
		EmbeddingModel:    "all-minilm",
		Dimensions:        DefaultDimensions,
		MaxSequenceLength: 256,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithEmbeddingHost("http://localhost:11434"),
//	    WithEmbeddingModel("all-minilm"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It automatically adds the /v1 suffix to the host if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Provider == ProviderOpenAI && c.EmbeddingHost != "" && !strings.HasSuffix(c.EmbeddingHost, "/v1") {
		c.EmbeddingHost = strings.TrimSuffix(c.EmbeddingHost, "/")
		c.EmbeddingHost = c.EmbeddingHost + "/v1"
	}
	if c.MaxSequenceLength <= 0 {
		c.MaxSequenceLength = 256
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.Dimensions <= 0 {
		return errors.New("ai config: Dimensions must be positive")
	}

	switch c.Provider {
	case ProviderOpenAI:
		if c.EmbeddingHost == "" {
			return errors.New("ai config: EmbeddingHost is required")
		}
		if c.EmbeddingModel == "" {
			return errors.New("ai config: EmbeddingModel is required")
		}
	case ProviderONNX:
		if c.ModelPath == "" {
			return errors.New("ai config: ModelPath is required")
		}
		if c.TokenizerPath == "" {
			return errors.New("ai config: TokenizerPath is required")
		}
	case ProviderMock:
	default:
		return ErrUnknownProvider
	}
	return nil
}
