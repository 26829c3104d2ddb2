// Package semantic implements the embedding-based routing matcher: it
// pre-embeds each agent's example utterances, scores incoming messages
// against them by cosine similarity, and backs topic-drift detection with
// an on-demand similarity computation.
package semantic

import (
	"context"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder turns text into a fixed-dimension, L2-normalized vector. The
// router treats the concrete embedding backend as an external collaborator
// (spec leaves "embedding library" out of scope); Embedder is the seam.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIEmbedder implements Embedder against an OpenAI-compatible
// embeddings endpoint via go-openai, normalizing every returned vector to
// unit length so downstream cosine similarity reduces to a dot product.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder builds an embedder using apiKey against the given
// model name (e.g. "text-embedding-3-small"). baseURL may be empty to use
// the default OpenAI endpoint, or set to point at a self-hosted
// OpenAI-compatible embedding server.
func NewOpenAIEmbedder(apiKey, baseURL, model string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.EmbeddingModel(model),
	}
}

// Embed returns one L2-normalized vector per input text, in order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response length mismatch: got %d, want %d", len(resp.Data), len(texts))
	}
	vectors := make([][]float32, len(texts))
	for i, d := range resp.Data {
		vectors[i] = normalize(d.Embedding)
	}
	return vectors, nil
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
