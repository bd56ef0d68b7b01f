package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/w-h-a/spinach/embedder"
	"github.com/w-h-a/spinach/fault"
	"github.com/w-h-a/spinach/store"
	"github.com/w-h-a/spinach/store/memory"
)

type fakeEmbedder struct {
	lastRole embedder.Role
	vector   []float32
	err      error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string, role embedder.Role) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastRole = role
	vectors := make([][]float32, 0, len(texts))
	for range texts {
		vectors = append(vectors, f.vector)
	}
	return vectors, nil
}

func (f *fakeEmbedder) Status() embedder.Status { return embedder.StatusReady }

func (f *fakeEmbedder) Dimension() int { return len(f.vector) }

func seedStore(t *testing.T) store.Store {
	t.Helper()

	s := memory.NewStore()

	records := []store.Record{
		{
			Id:        "a.txt-0",
			Content:   "about go routines",
			Metadata:  map[string]any{"filename": "a.txt", "chunk_index": 0},
			Embedding: []float32{1, 0, 0},
		},
		{
			Id:        "b.txt-0",
			Content:   "about databases",
			Metadata:  map[string]any{"filename": "b.txt", "chunk_index": 0},
			Embedding: []float32{0, 1, 0},
		},
	}

	if err := s.Add(t.Context(), records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return s
}

func TestRetrieveUsesQueryRole(t *testing.T) {
	fake := &fakeEmbedder{vector: []float32{1, 0, 0}}
	svc := New(fake, seedStore(t))

	sources, err := svc.Retrieve(t.Context(), "how do goroutines work", 3, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fake.lastRole != embedder.RoleQuery {
		t.Fatalf("expected query role, got %s", fake.lastRole)
	}

	if len(sources) != 1 || sources[0].Filename != "a.txt" {
		t.Fatalf("unexpected sources: %+v", sources)
	}

	if sources[0].Score < 0.99 {
		t.Fatalf("expected near-perfect score, got %v", sources[0].Score)
	}
}

func TestRetrieveEmptyQuestionFails(t *testing.T) {
	svc := New(&fakeEmbedder{vector: []float32{1, 0, 0}}, seedStore(t))

	if _, err := svc.Retrieve(t.Context(), "  \n ", 3, 0.5); !errors.Is(err, fault.ErrEmptyInput) {
		t.Fatalf("expected empty input error, got %v", err)
	}
}

func TestRetrieveNoMatchesIsSuccess(t *testing.T) {
	svc := New(&fakeEmbedder{vector: []float32{0, 0, 1}}, seedStore(t))

	sources, err := svc.Retrieve(t.Context(), "unrelated question", 3, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sources) != 0 {
		t.Fatalf("expected no sources, got %+v", sources)
	}
}

func TestRetrievePropagatesEmbedderFailure(t *testing.T) {
	boom := errors.New("model gone")
	svc := New(&fakeEmbedder{err: boom}, seedStore(t))

	if _, err := svc.Retrieve(t.Context(), "anything", 3, 0.5); !errors.Is(err, boom) {
		t.Fatalf("expected embedder failure, got %v", err)
	}
}

func TestBuildPromptEmptyContextIdentity(t *testing.T) {
	svc := New(&fakeEmbedder{vector: []float32{1}}, memory.NewStore())

	question := "what is a channel?"
	if got := svc.BuildPrompt(question, nil); got != question {
		t.Fatalf("expected question unchanged, got %q", got)
	}
}

func TestBuildPromptNumbersReferences(t *testing.T) {
	svc := New(&fakeEmbedder{vector: []float32{1}}, memory.NewStore())

	sources := []Source{
		{Filename: "a.txt", Content: "first"},
		{Filename: "b.txt", Content: "second"},
	}

	prompt := svc.BuildPrompt("question", sources)

	if !strings.HasPrefix(prompt, "question\n\nReferences:\n") {
		t.Fatalf("unexpected prompt prefix: %q", prompt)
	}

	if !strings.Contains(prompt, "[Reference 1: a.txt]\nfirst") {
		t.Fatalf("missing first reference: %q", prompt)
	}

	if !strings.Contains(prompt, "[Reference 2: b.txt]\nsecond") {
		t.Fatalf("missing second reference: %q", prompt)
	}

	again := svc.BuildPrompt("question", sources)
	if prompt != again {
		t.Fatal("expected deterministic prompt assembly")
	}
}
