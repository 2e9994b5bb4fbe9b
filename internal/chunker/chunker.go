// Package chunker splits document text into fixed-size, overlapping chunks.
//
// Sizes are counted in runes, not bytes, so a chunk boundary never falls in
// the middle of a multi-byte character. Consecutive chunks share exactly
// Overlap runes; the final chunk may be shorter than Size. The output is a
// pure function of the input text and configuration, which the index cache
// relies on.
package chunker

import (
	"fmt"

	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// DefaultSize is the chunk size used when none is configured.
	DefaultSize = 1000
	// DefaultOverlap is the chunk overlap used when none is configured.
	DefaultOverlap = 200
)

// Chunker cuts text into overlapping windows. The zero value is not usable;
// construct with New.
type Chunker struct {
	// size is the maximum number of runes per chunk.
	size int
	// overlap is the number of runes shared by consecutive chunks.
	overlap int
}

// New validates the configuration and returns a Chunker. It fails with
// rag.ErrConfiguration unless 0 <= overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunker: size must be positive, got %d: %w", size, rag.ErrConfiguration)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunker: overlap must not be negative, got %d: %w", overlap, rag.ErrConfiguration)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunker: overlap %d must be smaller than size %d: %w", overlap, size, rag.ErrConfiguration)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the configured chunk size in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into chunks labelled with source. Empty text yields no
// chunks. Text is not trimmed, so joining the non-overlapping parts of the
// result reproduces it exactly.
func (c *Chunker) Split(source, text string) []rag.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.size - c.overlap
	chunks := make([]rag.Chunk, 0, len(runes)/step+1)

	for start := 0; start < len(runes); start += step {
		end := min(start+c.size, len(runes))
		chunks = append(chunks, rag.Chunk{
			Source:  source,
			Ordinal: len(chunks),
			Text:    string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}

	return chunks
}

// Join reassembles text from chunks produced with the given overlap by
// dropping the leading overlap of every chunk after the first.
func Join(chunks []rag.Chunk, overlap int) string {
	var out []rune
	for i, ch := range chunks {
		r := []rune(ch.Text)
		if i > 0 {
			r = r[min(overlap, len(r)):]
		}
		out = append(out, r...)
	}
	return string(out)
}
