// Package embedding maps text into the vector space shared by document
// chunks and questions.
package embedding

import (
	"context"
	"errors"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder is deterministic: the same text always yields the same vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}
