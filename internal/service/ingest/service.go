package ingest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/w-h-a/spinach/chunker"
	"github.com/w-h-a/spinach/embedder"
	"github.com/w-h-a/spinach/fault"
	"github.com/w-h-a/spinach/store"
	getsafe "github.com/w-h-a/spinach/util/get_safe"
)

type Document struct {
	Filename        string `json:"filename"`
	FileType        string `json:"file_type"`
	ChunkCount      int    `json:"chunk_count"`
	TotalChars      int    `json:"total_chars"`
	UploadTimestamp string `json:"upload_timestamp"`
}

type Chunk struct {
	Id        string `json:"id"`
	Content   string `json:"content"`
	Index     int    `json:"chunk_index"`
	CharCount int    `json:"char_count"`
}

type Result struct {
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunks_created"`
	TotalChars int    `json:"total_chars"`
}

type Service struct {
	chunker  chunker.Chunker
	embedder embedder.Embedder
	store    store.Store
}

// Ingest cleans, chunks, embeds, and stores one document. The store write is
// a single batch, so a failure anywhere leaves nothing behind.
func (s *Service) Ingest(ctx context.Context, filename string, fileType string, text string) (Result, error) {
	cleaned := chunker.Normalize(text)

	chunks, err := s.chunker.Chunk(cleaned)
	if err != nil {
		return Result{}, err
	}

	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
	}

	vectors, err := s.embedder.Embed(ctx, texts, embedder.RoleDocument)
	if err != nil {
		return Result{}, err
	}

	if len(vectors) != len(chunks) {
		return Result{}, fmt.Errorf("%w: embedded %d of %d chunks", fault.ErrUpstream, len(vectors), len(chunks))
	}

	uploaded := time.Now().UTC().Format(time.RFC3339)

	records := make([]store.Record, 0, len(chunks))
	totalChars := 0
	for i, chunk := range chunks {
		totalChars += chunk.CharCount
		records = append(records, store.Record{
			Id:      fmt.Sprintf("%s-%d", filename, chunk.Index),
			Content: chunk.Text,
			Metadata: map[string]any{
				"filename":         filename,
				"file_type":        fileType,
				"chunk_index":      chunk.Index,
				"char_count":       chunk.CharCount,
				"upload_timestamp": uploaded,
			},
			Embedding: vectors[i],
		})
	}

	// Re-ingesting a shorter version of the same file would otherwise leave
	// its stale high-index chunks behind.
	if _, err := s.store.DeleteByFilter(ctx, "filename", filename); err != nil {
		return Result{}, err
	}

	if err := s.store.Add(ctx, records); err != nil {
		return Result{}, err
	}

	return Result{
		Filename:   filename,
		ChunkCount: len(records),
		TotalChars: totalChars,
	}, nil
}

func (s *Service) List(ctx context.Context) ([]Document, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	byFile := map[string]*Document{}
	order := []string{}

	for _, rec := range records {
		filename := getsafe.String(rec.Metadata, "filename")
		if len(filename) == 0 {
			continue
		}

		doc, ok := byFile[filename]
		if !ok {
			doc = &Document{
				Filename:        filename,
				FileType:        getsafe.String(rec.Metadata, "file_type"),
				UploadTimestamp: getsafe.String(rec.Metadata, "upload_timestamp"),
			}
			byFile[filename] = doc
			order = append(order, filename)
		}

		doc.ChunkCount++
		doc.TotalChars += getsafe.Int(rec.Metadata, "char_count")
	}

	sort.Strings(order)

	docs := make([]Document, 0, len(order))
	for _, filename := range order {
		docs = append(docs, *byFile[filename])
	}

	return docs, nil
}

func (s *Service) Content(ctx context.Context, filename string) ([]Chunk, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	chunks := []Chunk{}
	for _, rec := range records {
		if getsafe.String(rec.Metadata, "filename") != filename {
			continue
		}
		chunks = append(chunks, Chunk{
			Id:        rec.Id,
			Content:   rec.Content,
			Index:     getsafe.Int(rec.Metadata, "chunk_index"),
			CharCount: getsafe.Int(rec.Metadata, "char_count"),
		})
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document %s", fault.ErrNotFound, filename)
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Index < chunks[j].Index
	})

	return chunks, nil
}

func (s *Service) Delete(ctx context.Context, filename string) (int, error) {
	removed, err := s.store.DeleteByFilter(ctx, "filename", filename)
	if err != nil {
		return 0, err
	}

	if removed == 0 {
		return 0, fmt.Errorf("%w: document %s", fault.ErrNotFound, filename)
	}

	return removed, nil
}

func (s *Service) Reset(ctx context.Context) error {
	return s.store.Reset(ctx)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// FileType derives the stored file type from a filename extension.
func FileType(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return "txt"
	}
	return strings.ToLower(filename[idx+1:])
}

func New(c chunker.Chunker, e embedder.Embedder, s store.Store) *Service {
	if c == nil {
		panic("chunker is required")
	}

	if e == nil {
		panic("embedder is required")
	}

	if s == nil {
		panic("store is required")
	}

	return &Service{
		chunker:  c,
		embedder: e,
		store:    s,
	}
}
