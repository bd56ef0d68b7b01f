package embedder

import "context"

// Role selects encoding behavior for the two sides of retrieval. Both roles
// must produce vectors of the same dimensionality.
type Role string

const (
	RoleDocument Role = "document"
	RoleQuery    Role = "query"
)

type Embedder interface {
	// Embed returns one vector per input text, in input order. The first call
	// loads the underlying model; concurrent first calls share a single load.
	Embed(ctx context.Context, texts []string, role Role) ([][]float32, error)
	// Status reports the model state without triggering a load.
	Status() Status
	// Dimension is the vector size once the model is ready, 0 before that.
	Dimension() int
}
