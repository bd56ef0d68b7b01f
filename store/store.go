package store

import "context"

// Record is one persisted chunk with its embedding and grouping metadata.
// Metadata is used for filtering only, never for similarity.
type Record struct {
	Id        string
	Content   string
	Metadata  map[string]any
	Embedding []float32
}

// Match is a record returned from a similarity query.
type Match struct {
	Record
	Score float64
}

type Store interface {
	// Add inserts records all-or-nothing. A duplicate id overwrites the prior
	// record atomically.
	Add(ctx context.Context, records []Record) error
	// Query returns records scoring at least minScore by cosine similarity,
	// in descending score order, truncated to topK. Ties go to the earlier
	// insert. An empty result is not an error. Returned records are detached
	// copies, so callers may mutate them.
	Query(ctx context.Context, vector []float32, topK int, minScore float64) ([]Match, error)
	// DeleteByFilter removes every record whose metadata key equals value and
	// reports how many were removed. Zero matches is not an error.
	DeleteByFilter(ctx context.Context, key string, value string) (int, error)
	Reset(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]Record, error)
}
