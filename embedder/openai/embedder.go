package openai

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sashabaranov/go-openai"

	"github.com/w-h-a/spinach/embedder"
	"github.com/w-h-a/spinach/fault"
)

type openAIEmbedder struct {
	options   embedder.Options
	client    *openai.Client
	lifecycle embedder.Lifecycle
	dimension atomic.Int32
}

func (e *openAIEmbedder) Embed(ctx context.Context, texts []string, role embedder.Role) ([][]float32, error) {
	if err := e.lifecycle.Ensure(ctx, e.load); err != nil {
		return nil, err
	}

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	prefix := e.options.Prefix(role)
	input := make([]string, len(texts))
	for i, text := range texts {
		input[i] = prefix + text
	}

	rsp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: input,
		Model: openai.EmbeddingModel(e.options.Model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrModelUnavailable, err)
	}

	if len(rsp.Data) != len(input) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", fault.ErrModelUnavailable, len(input), len(rsp.Data))
	}

	vectors := make([][]float32, len(input))
	for _, data := range rsp.Data {
		if data.Index < 0 || data.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", fault.ErrModelUnavailable, data.Index)
		}
		vectors[data.Index] = data.Embedding
	}

	return vectors, nil
}

func (e *openAIEmbedder) Status() embedder.Status {
	return e.lifecycle.Status()
}

func (e *openAIEmbedder) Dimension() int {
	return int(e.dimension.Load())
}

// load probes the backend with a single request to confirm reachability and
// learn the vector dimensionality.
func (e *openAIEmbedder) load(ctx context.Context) error {
	rsp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{"ping"},
		Model: openai.EmbeddingModel(e.options.Model),
	})
	if err != nil {
		return err
	}

	if len(rsp.Data) == 0 || len(rsp.Data[0].Embedding) == 0 {
		return fmt.Errorf("probe returned no embedding")
	}

	e.dimension.Store(int32(len(rsp.Data[0].Embedding)))

	return nil
}

func NewEmbedder(opts ...embedder.Option) embedder.Embedder {
	options := embedder.NewOptions(opts...)

	e := &openAIEmbedder{
		options: options,
	}

	config := openai.DefaultConfig(options.ApiKey)
	if len(options.Location) > 0 {
		config.BaseURL = options.Location
	}

	e.client = openai.NewClientWithConfig(config)

	return e
}
