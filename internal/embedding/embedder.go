// Package embedding defines how text is turned into vectors for the index.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrDimensionMismatch is returned when an embedder produces vectors of an unexpected size.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder converts text into fixed-size vectors.
type Embedder interface {
	// Name identifies the model; an index built with one name is only searched with the same name.
	Name() string
	// Dimension is the vector size, or zero until the first call when not known up front.
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Batched embeds texts batchSize at a time, invoking onBatch with the running total.
func Batched(ctx context.Context, e Embedder, texts []string, batchSize int, onBatch func(done int)) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("embed batches: %w", err)
		}
		end := min(start+batchSize, len(texts))
		vectors, err := e.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(vectors))
		}
		out = append(out, vectors...)
		if onBatch != nil {
			onBatch(len(out))
		}
	}
	return out, nil
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}
	return vectors[0], nil
}
