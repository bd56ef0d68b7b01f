package fault

import "errors"

// Sentinel error kinds. Components wrap these with fmt.Errorf("...: %w", ...)
// and callers match with errors.Is at the boundary.
var (
	ErrConfiguration    = errors.New("invalid configuration")
	ErrEmptyInput       = errors.New("no extractable text")
	ErrModelUnavailable = errors.New("embedding model unavailable")
	ErrUpstream         = errors.New("completion backend failure")
	ErrNotFound         = errors.New("not found")
	ErrStore            = errors.New("vector store failure")
)
