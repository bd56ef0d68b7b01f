package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/w-h-a/spinach/embedder"
	"github.com/w-h-a/spinach/fault"
)

type ollamaEmbedder struct {
	options   embedder.Options
	client    *http.Client
	lifecycle embedder.Lifecycle
	dimension atomic.Int32
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *ollamaEmbedder) Embed(ctx context.Context, texts []string, role embedder.Role) ([][]float32, error) {
	if err := e.lifecycle.Ensure(ctx, e.load); err != nil {
		return nil, err
	}

	prefix := e.options.Prefix(role)

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.embedOne(ctx, prefix+text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", fault.ErrModelUnavailable, err)
		}
		if dim := int(e.dimension.Load()); len(vec) != dim {
			return nil, fmt.Errorf("%w: expected %d dimensions, got %d", fault.ErrModelUnavailable, dim, len(vec))
		}
		vectors[i] = vec
	}

	return vectors, nil
}

func (e *ollamaEmbedder) Status() embedder.Status {
	return e.lifecycle.Status()
}

func (e *ollamaEmbedder) Dimension() int {
	return int(e.dimension.Load())
}

// load sends one probe prompt, which makes ollama pull the model into memory
// and tells us the vector dimensionality.
func (e *ollamaEmbedder) load(ctx context.Context) error {
	vec, err := e.embedOne(ctx, "ping")
	if err != nil {
		return err
	}
	if len(vec) == 0 {
		return fmt.Errorf("probe returned empty vector")
	}

	e.dimension.Store(int32(len(vec)))

	return nil
}

func (e *ollamaEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.options.Model, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/api/embeddings", e.options.Location),
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	rsp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close()

	if rsp.StatusCode >= 400 {
		raw, _ := io.ReadAll(rsp.Body)
		return nil, fmt.Errorf("ollama http %d: %s", rsp.StatusCode, string(raw))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(rsp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	return parsed.Embedding, nil
}

func NewEmbedder(opts ...embedder.Option) embedder.Embedder {
	options := embedder.NewOptions(opts...)

	if len(options.Location) == 0 {
		options.Location = "http://localhost:11434"
	}

	e := &ollamaEmbedder{
		options: options,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}

	return e
}
