// Package openai embeds text through an OpenAI-compatible /embeddings endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
)

// knownDimensions lets a fresh index record its dimension before the first request.
var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config configures the embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	// APIKey overrides the environment lookup when set.
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Embedder calls the embeddings API.
type Embedder struct {
	client *goopenai.Client
	model  string

	mu        sync.RWMutex
	dimension int
}

// New builds an Embedder, resolving the API key from the environment.
func New(cfg Config) (*Embedder, error) {
	key := cfg.APIKey
	if key == "" && cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	clientCfg := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Embedder{
		client:    goopenai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		dimension: knownDimensions[cfg.Model],
	}, nil
}

// Name returns the model identifier.
func (e *Embedder) Name() string { return "openai:" + e.model }

// Dimension returns the vector size, learned from the first response for unknown models.
func (e *Embedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimension
}

// Embed returns one vector per input, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: texts,
		Model: goopenai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, item := range resp.Data {
		idx := item.Index
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			idx = i
		}
		out[idx] = item.Embedding
	}
	if err := e.checkDimension(out); err != nil {
		return nil, err
	}
	return out, nil
}

var errEmptyVector = errors.New("openai embeddings: empty vector")

func (e *Embedder) checkDimension(vectors [][]float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, v := range vectors {
		if len(v) == 0 {
			return errEmptyVector
		}
		if e.dimension == 0 {
			e.dimension = len(v)
		}
		if len(v) != e.dimension {
			return fmt.Errorf("openai embeddings: expected dimension %d, got %d", e.dimension, len(v))
		}
	}
	return nil
}
