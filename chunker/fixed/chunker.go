package fixed

import (
	"fmt"
	"strings"

	"github.com/w-h-a/spinach/chunker"
	"github.com/w-h-a/spinach/fault"
)

// Chunker splits text into fixed-size spans of runes where each span repeats
// the trailing overlap of the one before it.
type Chunker struct {
	size    int
	overlap int
}

func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d: %w", size, fault.ErrConfiguration)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must satisfy 0 <= overlap < size, got %d: %w", overlap, fault.ErrConfiguration)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) Chunk(text string) ([]chunker.Chunk, error) {
	if len(strings.TrimSpace(text)) == 0 {
		return nil, fault.ErrEmptyInput
	}

	runes := []rune(text)
	step := c.size - c.overlap

	var chunks []chunker.Chunk
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, chunker.Chunk{
			Text:      string(runes[start:end]),
			Index:     len(chunks),
			CharCount: end - start,
		})
		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}
