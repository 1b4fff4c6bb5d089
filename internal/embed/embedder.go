// Package embed computes fixed-dimension vectors for item gloss text
// through a pretrained sentence-embedding model, with a persistent
// on-disk cache keyed by text hash and batched inference on miss.
package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"
)

// ErrEmbedFailed marks fatal inference failures. The cache stays intact
// so a retry reuses prior progress.
var ErrEmbedFailed = errors.New("embedding inference failed")

// DefaultBatchSize bounds one forward pass; model memory is the binding
// constraint, so it is configurable.
const DefaultBatchSize = 800

// Embedder converts a batch of texts to vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Options selects and configures an embedding provider.
type Options struct {
	Provider  string
	APIKey    string
	Model     string
	Dimension int
	BaseURL   string
}

// New builds the configured provider. The default is a local ollama
// endpoint, which needs no credentials.
func New(ctx context.Context, opts Options) (Embedder, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = "ollama"
	}

	switch provider {
	case "ollama":
		return NewOllamaEmbedder(opts.Model, opts.Dimension, opts.BaseURL), nil
	case "openai":
		return NewOpenAIEmbedder(opts.APIKey, opts.Model, opts.Dimension, opts.BaseURL), nil
	case "gemini":
		return NewGeminiEmbedder(ctx, opts.APIKey, opts.Model, opts.Dimension)
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", opts.Provider)
	}
}

// TextKey is the cache key for a canonical text: xxh3-64 over its UTF-8
// bytes. Keys are model-independent; the cache is invalidated wholesale
// on model change.
func TextKey(text string) uint64 {
	return xxh3.HashString(text)
}
