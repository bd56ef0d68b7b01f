package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/w-h-a/spinach/embedder"
	"github.com/w-h-a/spinach/fault"
	"github.com/w-h-a/spinach/store"
	getsafe "github.com/w-h-a/spinach/util/get_safe"
)

type Source struct {
	Filename   string  `json:"filename"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	ChunkIndex int     `json:"chunk_index"`
}

type Service struct {
	embedder embedder.Embedder
	store    store.Store
}

// Retrieve embeds the question and returns the stored chunks at or above the
// similarity threshold, best first. No matches is a valid outcome.
func (s *Service) Retrieve(ctx context.Context, question string, topK int, threshold float64) ([]Source, error) {
	if len(strings.TrimSpace(question)) == 0 {
		return nil, fmt.Errorf("%w: question must not be empty", fault.ErrEmptyInput)
	}

	vectors, err := s.embedder.Embed(ctx, []string{question}, embedder.RoleQuery)
	if err != nil {
		return nil, err
	}

	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedded %d vectors for one question", fault.ErrUpstream, len(vectors))
	}

	matches, err := s.store.Query(ctx, vectors[0], topK, threshold)
	if err != nil {
		return nil, err
	}

	sources := make([]Source, 0, len(matches))
	for _, match := range matches {
		sources = append(sources, Source{
			Filename:   getsafe.String(match.Metadata, "filename"),
			Content:    match.Content,
			Score:      match.Score,
			ChunkIndex: getsafe.Int(match.Metadata, "chunk_index"),
		})
	}

	return sources, nil
}

// BuildPrompt appends the retrieved chunks to the question as numbered
// reference blocks. With no sources the question passes through untouched.
func (s *Service) BuildPrompt(question string, sources []Source) string {
	if len(sources) == 0 {
		return question
	}

	var b strings.Builder
	b.WriteString(question)
	b.WriteString("\n\nReferences:\n")

	for i, source := range sources {
		b.WriteString(fmt.Sprintf("\n[Reference %d: %s]\n%s\n", i+1, source.Filename, source.Content))
	}

	return b.String()
}

func New(e embedder.Embedder, s store.Store) *Service {
	if e == nil {
		panic("embedder is required")
	}

	if s == nil {
		panic("store is required")
	}

	return &Service{
		embedder: e,
		store:    s,
	}
}
