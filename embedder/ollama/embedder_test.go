package ollama

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/w-h-a/spinach/embedder"
	"github.com/w-h-a/spinach/fault"
)

func fakeOllama(t *testing.T, requests *atomic.Int32, prompts *sync.Map) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		requests.Add(1)

		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		prompts.Store(req.Prompt, struct{}{})

		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2, 0.3}})
	}))
}

func TestEmbedLoadsLazilyAndOnce(t *testing.T) {
	var requests atomic.Int32
	var prompts sync.Map
	srv := fakeOllama(t, &requests, &prompts)
	defer srv.Close()

	e := NewEmbedder(
		embedder.WithLocation(srv.URL),
		embedder.WithModel("nomic-embed-text"),
	)

	if got := e.Status(); got != embedder.StatusUninitialized {
		t.Fatalf("expected uninitialized before first embed, got %s", got)
	}
	if requests.Load() != 0 {
		t.Fatalf("constructor must not touch the backend")
	}

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Embed(t.Context(), []string{"hello"}, embedder.RoleDocument); err != nil {
				t.Errorf("embed failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// one probe request plus one request per caller text
	if got := requests.Load(); got != callers+1 {
		t.Fatalf("expected %d requests, got %d", callers+1, got)
	}
	if got := e.Status(); got != embedder.StatusReady {
		t.Fatalf("expected ready, got %s", got)
	}
	if got := e.Dimension(); got != 3 {
		t.Fatalf("expected dimension 3, got %d", got)
	}
}

func TestEmbedAppliesRolePrefixes(t *testing.T) {
	var requests atomic.Int32
	var prompts sync.Map
	srv := fakeOllama(t, &requests, &prompts)
	defer srv.Close()

	e := NewEmbedder(
		embedder.WithLocation(srv.URL),
		embedder.WithModel("intfloat/multilingual-e5-base"),
		embedder.WithRolePrefixes("passage: ", "query: "),
	)

	if _, err := e.Embed(t.Context(), []string{"doc text"}, embedder.RoleDocument); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.Embed(t.Context(), []string{"question"}, embedder.RoleQuery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := prompts.Load("passage: doc text"); !ok {
		t.Fatalf("document prefix was not applied")
	}
	if _, ok := prompts.Load("query: question"); !ok {
		t.Fatalf("query prefix was not applied")
	}
}

func TestEmbedFailedLoadRetries(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			http.Error(w, "model not found", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{1, 0}})
	}))
	defer srv.Close()

	e := NewEmbedder(
		embedder.WithLocation(srv.URL),
		embedder.WithModel("nomic-embed-text"),
	)

	_, err := e.Embed(t.Context(), []string{"x"}, embedder.RoleQuery)
	if !errors.Is(err, fault.ErrModelUnavailable) {
		t.Fatalf("expected model unavailable, got %v", err)
	}
	if got := e.Status(); got != embedder.StatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}

	healthy.Store(true)

	vectors, err := e.Embed(t.Context(), []string{"x"}, embedder.RoleQuery)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(vectors) != 1 || len(vectors[0]) != 2 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
	if got := e.Status(); got != embedder.StatusReady {
		t.Fatalf("expected ready, got %s", got)
	}
}
