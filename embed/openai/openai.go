// Package openai implements embed.Embedder on the OpenAI embeddings API.
package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Options configures the embedder.
type Options struct {
	// Model is the embedding model name.
	Model string

	// Dimensions requests a specific output dimensionality from models
	// that support shortening. 0 uses the model default.
	Dimensions int

	// BaseURL overrides the API endpoint, for proxies and compatible
	// services.
	BaseURL string
}

// DefaultOptions are the options used when none are given.
var DefaultOptions = Options{
	Model:      "text-embedding-3-small",
	Dimensions: 768,
}

// Embedder calls the OpenAI embeddings API.
type Embedder struct {
	client *openai.Client
	model  string
	dims   int
}

// New creates an Embedder authenticated with apiKey.
func New(apiKey string, optFns ...func(o *Options)) *Embedder {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &Embedder{
		client: openai.NewClientWithConfig(cfg),
		model:  opts.Model,
		dims:   opts.Dimensions,
	}
}

// EmbedTexts embeds a batch of texts, one vector per input in input order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dims,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(resp.Data), len(texts))
	}

	// The API reports an index per vector; place by index rather than
	// trusting response order.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}

	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
		if e.dims > 0 && len(v) != e.dims {
			return nil, fmt.Errorf("embedding for input %d has %d dimensions, want %d", i, len(v), e.dims)
		}
	}

	return out, nil
}

// Dimensions returns the configured output dimensionality.
func (e *Embedder) Dimensions() int {
	return e.dims
}
