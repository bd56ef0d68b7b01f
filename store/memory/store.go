package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/w-h-a/spinach/fault"
	"github.com/w-h-a/spinach/store"
)

type memoryStore struct {
	options store.Options
	records []store.Record
	byId    map[string]int
	mtx     sync.RWMutex
}

func (s *memoryStore) Add(ctx context.Context, records []store.Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	dim := s.dimensionLocked()
	for _, rec := range records {
		if dim == 0 {
			dim = len(rec.Embedding)
		}
		if len(rec.Embedding) != dim {
			return fmt.Errorf("%w: expected %d dimensions, got %d for id %s", fault.ErrStore, dim, len(rec.Embedding), rec.Id)
		}
	}

	for _, rec := range records {
		cpy := cloneRecord(rec)

		// overwrite keeps the original insertion position
		if idx, exists := s.byId[rec.Id]; exists {
			s.records[idx] = cpy
			continue
		}

		s.byId[rec.Id] = len(s.records)
		s.records = append(s.records, cpy)
	}

	return nil
}

func (s *memoryStore) Query(ctx context.Context, vector []float32, topK int, minScore float64) ([]store.Match, error) {
	if topK < 1 {
		return []store.Match{}, nil
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	matches := make([]store.Match, 0, len(s.records))
	for _, rec := range s.records {
		score := store.CosineSimilarity(vector, rec.Embedding)
		if score < minScore {
			continue
		}
		matches = append(matches, store.Match{Record: cloneRecord(rec), Score: score})
	}

	// stable keeps insertion order for equal scores
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}

	return matches, nil
}

func (s *memoryStore) DeleteByFilter(ctx context.Context, key string, value string) (int, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	kept := make([]store.Record, 0, len(s.records))
	removed := 0
	for _, rec := range s.records {
		if v, ok := rec.Metadata[key]; ok && fmt.Sprintf("%v", v) == value {
			removed++
			continue
		}
		kept = append(kept, rec)
	}

	if removed == 0 {
		return 0, nil
	}

	s.records = kept
	s.byId = make(map[string]int, len(kept))
	for i, rec := range kept {
		s.byId[rec.Id] = i
	}

	return removed, nil
}

func (s *memoryStore) Reset(ctx context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.records = nil
	s.byId = map[string]int{}

	return nil
}

func (s *memoryStore) Count(ctx context.Context) (int, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return len(s.records), nil
}

func (s *memoryStore) List(ctx context.Context) ([]store.Record, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	copied := make([]store.Record, 0, len(s.records))
	for _, rec := range s.records {
		copied = append(copied, cloneRecord(rec))
	}

	return copied, nil
}

// cloneRecord detaches maps and slices so callers cannot mutate stored state.
func cloneRecord(rec store.Record) store.Record {
	return store.Record{
		Id:        rec.Id,
		Content:   rec.Content,
		Metadata:  maps.Clone(rec.Metadata),
		Embedding: append([]float32(nil), rec.Embedding...),
	}
}

func (s *memoryStore) dimensionLocked() int {
	if len(s.records) == 0 {
		return 0
	}
	return len(s.records[0].Embedding)
}

func NewStore(opts ...store.Option) store.Store {
	options := store.NewOptions(opts...)

	s := &memoryStore{
		options: options,
		byId:    map[string]int{},
		mtx:     sync.RWMutex{},
	}

	return s
}
