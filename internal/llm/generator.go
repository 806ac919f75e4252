// Package llm produces grounded answers from retrieved context chunks.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrGeneration wraps every failure of an answer generator.
var ErrGeneration = errors.New("answer generation failed")

type Generator interface {
	Generate(ctx context.Context, chunks []string, question string) (string, error)
}

const instructions = "Instructions: Answer based only on the context above. Include citation numbers like [1], [2] to reference sources."

// BuildPrompt numbers chunks from [1] in the given order so the answer can
// cite them.
func BuildPrompt(chunks []string, question string) string {
	lines := make([]string, 0, len(chunks)+5)
	lines = append(lines, "Context:")
	for i, c := range chunks {
		lines = append(lines, fmt.Sprintf("[%d] %s", i+1, c))
	}
	lines = append(lines, "\n", "Question: "+question, "\n", instructions)
	return strings.Join(lines, "\n")
}

func generationError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrGeneration, provider, err)
}
