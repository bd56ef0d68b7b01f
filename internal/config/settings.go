package config

import (
	"fmt"
	"sync"

	"github.com/w-h-a/spinach/fault"
)

// Snapshot is a point-in-time copy of the runtime-adjustable settings.
// Callers take one snapshot per request; later updates never affect a
// request already in flight.
type Snapshot struct {
	CompletionURL string  `json:"llm_base_url"`
	TopK          int     `json:"top_k"`
	Threshold     float64 `json:"similarity_threshold"`
}

// Patch carries a partial settings update. Nil fields are left unchanged.
type Patch struct {
	CompletionURL *string  `json:"llm_base_url"`
	TopK          *int     `json:"top_k"`
	Threshold     *float64 `json:"similarity_threshold"`
}

type Settings struct {
	mu      sync.RWMutex
	current Snapshot
}

func (s *Settings) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Settings) CompletionURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.CompletionURL
}

// Update applies a patch atomically. A rejected patch leaves all fields
// untouched, even when some of its values were valid.
func (s *Settings) Update(patch Patch) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current

	if patch.CompletionURL != nil {
		if len(*patch.CompletionURL) == 0 {
			return Snapshot{}, fmt.Errorf("%w: llm_base_url must not be empty", fault.ErrConfiguration)
		}
		next.CompletionURL = *patch.CompletionURL
	}

	if patch.TopK != nil {
		if *patch.TopK < 1 {
			return Snapshot{}, fmt.Errorf("%w: top_k must be at least 1", fault.ErrConfiguration)
		}
		next.TopK = *patch.TopK
	}

	if patch.Threshold != nil {
		if *patch.Threshold < 0 || *patch.Threshold > 1 {
			return Snapshot{}, fmt.Errorf("%w: similarity_threshold must be between 0 and 1", fault.ErrConfiguration)
		}
		next.Threshold = *patch.Threshold
	}

	s.current = next

	return s.current, nil
}

func NewSettings(completionURL string, topK int, threshold float64) *Settings {
	return &Settings{
		current: Snapshot{
			CompletionURL: completionURL,
			TopK:          topK,
			Threshold:     threshold,
		},
	}
}
