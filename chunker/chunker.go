package chunker

// Chunk is one span of a document, ordered by Index within its source.
type Chunk struct {
	Text      string
	Index     int
	CharCount int
}

type Chunker interface {
	Chunk(text string) ([]Chunk, error)
}
