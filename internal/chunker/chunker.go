package chunker

import "strings"

// Chunker splits text into overlapping token windows. Tokens are
// whitespace-separated words; the window is not sentence-aware.
type Chunker struct {
	size    int
	overlap int
}

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// New returns a Chunker with the given window size and overlap in
// tokens. Invalid values fall back to defaults; overlap is clamped
// below size so the window always advances.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = defaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits text into windows of up to size tokens, each overlapping
// the previous by overlap tokens. Blank input yields nil, never an
// error.
func (c *Chunker) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	step := c.size - c.overlap
	for start := 0; start < len(words); start += step {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// Size returns the configured window size in tokens.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured window overlap in tokens.
func (c *Chunker) Overlap() int { return c.overlap }
