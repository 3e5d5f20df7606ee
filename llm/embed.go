package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var ErrEmptyEmbedding = errors.New("empty embeddings")

type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Embed returns the unit-length embedding of text, ready for cosine
// distance queries.
func Embed(ctx context.Context, e Embedder, text string) ([]float32, error) {
	embeds, err := e.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(embeds) == 0 || len(embeds[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return Normalize(embeds[0]), nil
}

func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}

	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}

	return vec
}
