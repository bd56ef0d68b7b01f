package google

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/generative-ai-go/genai"
	genaiopt "google.golang.org/api/option"

	"github.com/w-h-a/spinach/embedder"
	"github.com/w-h-a/spinach/fault"
)

type googleEmbedder struct {
	options   embedder.Options
	client    *genai.Client
	lifecycle embedder.Lifecycle
	dimension atomic.Int32
}

func (e *googleEmbedder) Embed(ctx context.Context, texts []string, role embedder.Role) ([][]float32, error) {
	if err := e.lifecycle.Ensure(ctx, e.load); err != nil {
		return nil, err
	}

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	model := e.client.EmbeddingModel(e.options.Model)
	prefix := e.options.Prefix(role)

	batch := model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(prefix + text))
	}

	rsp, err := model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrModelUnavailable, err)
	}

	if rsp == nil || len(rsp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings", fault.ErrModelUnavailable, len(texts))
	}

	vectors := make([][]float32, 0, len(texts))
	for _, emb := range rsp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding in batch", fault.ErrModelUnavailable)
		}
		vectors = append(vectors, emb.Values)
	}

	return vectors, nil
}

func (e *googleEmbedder) Status() embedder.Status {
	return e.lifecycle.Status()
}

func (e *googleEmbedder) Dimension() int {
	return int(e.dimension.Load())
}

func (e *googleEmbedder) load(ctx context.Context) error {
	model := e.client.EmbeddingModel(e.options.Model)

	rsp, err := model.EmbedContent(ctx, genai.Text("ping"))
	if err != nil {
		return err
	}

	if rsp == nil || rsp.Embedding == nil || len(rsp.Embedding.Values) == 0 {
		return fmt.Errorf("probe returned no embedding")
	}

	e.dimension.Store(int32(len(rsp.Embedding.Values)))

	return nil
}

func NewEmbedder(opts ...embedder.Option) embedder.Embedder {
	options := embedder.NewOptions(opts...)

	e := &googleEmbedder{
		options: options,
	}

	client, err := genai.NewClient(
		context.Background(),
		genaiopt.WithAPIKey(options.ApiKey),
	)
	if err != nil {
		panic(err)
	}

	e.client = client

	return e
}
