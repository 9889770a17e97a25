// Package embed wraps the external embedding service behind a small
// interface. The service is best-effort: callers must treat ErrUnavailable
// as a degrade signal, never as a fatal failure.
package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrUnavailable signals that the embedding service could not be reached or
// returned an unusable response. Search degrades to lexical + structural.
var ErrUnavailable = errors.New("embedding service unavailable")

// DefaultTimeout bounds a single embedding request.
const DefaultTimeout = 10 * time.Second

// Embedder converts text into fixed-dimension vectors.
type Embedder interface {
	// Embed returns one vector per input text, all of the same dimension.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the vector dimension the service produces.
	Dimension() int
}

// Config configures the OpenAI-compatible embedding client.
type Config struct {
	BaseURL   string // e.g. "http://localhost:8000/v1"
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// Client is an Embedder backed by any OpenAI-compatible /embeddings endpoint.
type Client struct {
	api       *openai.Client
	model     string
	dimension int
	timeout   time.Duration
}

// NewClient creates an embedding client. A zero Timeout uses DefaultTimeout.
func NewClient(cfg Config) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		api:       openai.NewClientWithConfig(apiCfg),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		timeout:   timeout,
	}
}

// Embed implements Embedder.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrUnavailable, len(resp.Data), len(texts))
	}
	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		if c.dimension > 0 && len(d.Embedding) != c.dimension {
			return nil, fmt.Errorf("%w: vector dimension %d, expected %d", ErrUnavailable, len(d.Embedding), c.dimension)
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// Dimension implements Embedder.
func (c *Client) Dimension() int {
	return c.dimension
}

// Cosine computes cosine similarity between two vectors. Mismatched
// dimensions or zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
