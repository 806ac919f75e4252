// Package chunker splits extracted document text into overlapping windows
// sized for embedding.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// Window defaults used when no chunking is configured.
const (
	DefaultChunkSize = 512
	DefaultOverlap   = 50
)

// ErrInvalidParameter reports a chunk size or overlap that cannot produce
// a forward-moving window.
var ErrInvalidParameter = errors.New("invalid chunk parameter")

func validate(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidParameter, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidParameter, overlap, chunkSize)
	}
	return nil
}

// Chunk splits text into windows of chunkSize characters, each sharing
// overlap characters with the next. Sizes count runes, not bytes.
//
// The last chunk is whatever remains once the tail fits in one window, so
// it may be shorter than chunkSize. Empty or whitespace-only text yields no
// chunks.
func Chunk(text string, chunkSize, overlap int) ([]string, error) {
	if err := validate(chunkSize, overlap); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	total := len(runes)
	step := chunkSize - overlap

	chunks := make([]string, 0, total/step+1)
	for left := 0; left < total; left += step {
		right := left + chunkSize
		if right >= total {
			chunks = append(chunks, string(runes[left:]))
			break
		}
		chunks = append(chunks, string(runes[left:right]))
	}
	return chunks, nil
}

// Chunker binds a fixed window configuration.
type Chunker struct {
	size    int
	overlap int
}

// New validates the window once so Split cannot fail on parameters.
func New(size, overlap int) (*Chunker, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split chunks text with the bound window. See Chunk.
func (c *Chunker) Split(text string) ([]string, error) {
	return Chunk(text, c.size, c.overlap)
}
