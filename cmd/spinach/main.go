package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/w-h-a/spinach/chunker/fixed"
	"github.com/w-h-a/spinach/completion"
	anthropicgateway "github.com/w-h-a/spinach/completion/anthropic"
	googlegateway "github.com/w-h-a/spinach/completion/google"
	"github.com/w-h-a/spinach/completion/lmstudio"
	openaigateway "github.com/w-h-a/spinach/completion/openai"
	"github.com/w-h-a/spinach/embedder"
	googleembedder "github.com/w-h-a/spinach/embedder/google"
	ollamaembedder "github.com/w-h-a/spinach/embedder/ollama"
	openaiembedder "github.com/w-h-a/spinach/embedder/openai"
	"github.com/w-h-a/spinach/internal/config"
	"github.com/w-h-a/spinach/internal/service/chat"
	"github.com/w-h-a/spinach/internal/service/ingest"
	"github.com/w-h-a/spinach/internal/service/rag"
	httpserver "github.com/w-h-a/spinach/server/http"
	"github.com/w-h-a/spinach/store"
	"github.com/w-h-a/spinach/store/memory"
	"github.com/w-h-a/spinach/store/postgres"
	"github.com/w-h-a/spinach/store/qdrant"
)

var (
	cfg struct {
		// Server config
		Address        string   `help:"Address to listen on" env:"SPINACH_ADDRESS" default:":8000"`
		AllowedOrigins []string `help:"Allowed CORS origins" env:"SPINACH_ALLOWED_ORIGINS" default:"*"`

		// Store config
		Store           string `help:"Vector store backend (memory, postgres, qdrant)" env:"SPINACH_STORE" default:"memory"`
		StoreLocation   string `help:"Store connection string or base URL" env:"SPINACH_STORE_LOCATION" default:""`
		StoreCollection string `help:"Store table or collection name" env:"SPINACH_STORE_COLLECTION" default:"documents"`
		StoreKey        string `help:"API key for the store" env:"SPINACH_STORE_KEY" default:""`

		// Embedder config
		Embedder         string `help:"Embedding backend (openai, ollama, google)" env:"SPINACH_EMBEDDER" default:"ollama"`
		EmbedderLocation string `help:"Base URL for the embedding backend" env:"SPINACH_EMBEDDER_LOCATION" default:"http://localhost:11434"`
		EmbedderKey      string `help:"API key for the embedding backend" env:"SPINACH_EMBEDDER_KEY" default:""`
		EmbedderModel    string `help:"Model identifier for embeddings" env:"SPINACH_EMBEDDER_MODEL" default:"intfloat/multilingual-e5-large"`
		EmbedderDevice   string `help:"Compute device hint passed to the embedding backend" env:"SPINACH_EMBEDDER_DEVICE" default:"cpu"`
		EmbedderDim      int    `help:"Embedding vector size" env:"SPINACH_EMBEDDER_DIM" default:"1024"`
		DocumentPrefix   string `help:"Prefix applied to document texts before embedding" env:"SPINACH_DOCUMENT_PREFIX" default:"passage: "`
		QueryPrefix      string `help:"Prefix applied to query texts before embedding" env:"SPINACH_QUERY_PREFIX" default:"query: "`

		// Completion config
		Completion      string `help:"Completion backend (lmstudio, openai, anthropic, google)" env:"SPINACH_COMPLETION" default:"lmstudio"`
		CompletionURL   string `help:"Base URL for an OpenAI-compatible completion backend" env:"SPINACH_COMPLETION_URL" default:"http://localhost:1234/v1"`
		CompletionKey   string `help:"API key for the completion backend" env:"SPINACH_COMPLETION_KEY" default:""`
		CompletionModel string `help:"Model identifier for completions" env:"SPINACH_COMPLETION_MODEL" default:"local-model"`
		SystemPrompt    string `help:"System prompt prepended to conversations" env:"SPINACH_SYSTEM_PROMPT" default:""`

		// Retrieval config
		ChunkSize    int     `help:"Chunk size in characters" env:"SPINACH_CHUNK_SIZE" default:"1000"`
		ChunkOverlap int     `help:"Chunk overlap in characters" env:"SPINACH_CHUNK_OVERLAP" default:"200"`
		TopK         int     `help:"Number of chunks to retrieve" env:"SPINACH_TOP_K" default:"3"`
		Threshold    float64 `help:"Minimum similarity score" env:"SPINACH_THRESHOLD" default:"0.5"`

		// Template config
		TemplatesDir string `help:"Directory of markdown starter templates" env:"SPINACH_TEMPLATES_DIR" default:"./templates"`
	}
)

func main() {
	_ = godotenv.Load()
	_ = kong.Parse(&cfg)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	settings := config.NewSettings(cfg.CompletionURL, cfg.TopK, cfg.Threshold)

	c, err := fixed.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		logger.Error("invalid chunking config", "error", err)
		os.Exit(1)
	}

	st := newStore()
	e := newEmbedder()
	gateway := newGateway(settings)

	processConfig := config.Config{
		Name:             "spinach",
		Version:          "0.1.0",
		Address:          cfg.Address,
		AllowedOrigins:   cfg.AllowedOrigins,
		StoreType:        cfg.Store,
		StoreLocation:    cfg.StoreLocation,
		StoreCollection:  cfg.StoreCollection,
		EmbedderType:     cfg.Embedder,
		EmbedderLocation: cfg.EmbedderLocation,
		EmbedderModel:    cfg.EmbedderModel,
		EmbedderDim:      cfg.EmbedderDim,
		DocumentPrefix:   cfg.DocumentPrefix,
		QueryPrefix:      cfg.QueryPrefix,
		CompletionType:   cfg.Completion,
		CompletionModel:  cfg.CompletionModel,
		SystemPrompt:     cfg.SystemPrompt,
		ChunkSize:        cfg.ChunkSize,
		ChunkOverlap:     cfg.ChunkOverlap,
		TemplatesDir:     cfg.TemplatesDir,
	}

	server := httpserver.NewServer(
		processConfig,
		settings,
		ingest.New(c, e, st),
		ingest.NewTemplates(cfg.TemplatesDir),
		rag.New(e, st),
		chat.New(gateway),
		e,
		st,
		gateway,
		httpserver.WithAddress(cfg.Address),
		httpserver.WithAllowedOrigins(cfg.AllowedOrigins...),
		httpserver.WithLogger(logger),
	)

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	errs := make(chan error, 1)
	go func() {
		errs <- server.Start()
	}()

	select {
	case err := <-errs:
		if err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case sig := <-done:
		logger.Info("shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", "error", err)
			os.Exit(1)
		}
	}
}

func newStore() store.Store {
	switch cfg.Store {
	case "postgres":
		return postgres.NewStore(
			store.WithLocation(cfg.StoreLocation),
			store.WithCollection(cfg.StoreCollection),
			store.WithVectorSize(cfg.EmbedderDim),
		)
	case "qdrant":
		return qdrant.NewStore(
			store.WithLocation(cfg.StoreLocation),
			store.WithCollection(cfg.StoreCollection),
			store.WithApiKey(cfg.StoreKey),
			store.WithVectorSize(cfg.EmbedderDim),
		)
	default:
		return memory.NewStore()
	}
}

func newEmbedder() embedder.Embedder {
	opts := []embedder.Option{
		embedder.WithApiKey(cfg.EmbedderKey),
		embedder.WithModel(cfg.EmbedderModel),
		embedder.WithLocation(cfg.EmbedderLocation),
		embedder.WithDevice(cfg.EmbedderDevice),
		embedder.WithRolePrefixes(cfg.DocumentPrefix, cfg.QueryPrefix),
	}

	switch cfg.Embedder {
	case "openai":
		return openaiembedder.NewEmbedder(opts...)
	case "google":
		return googleembedder.NewEmbedder(opts...)
	default:
		return ollamaembedder.NewEmbedder(opts...)
	}
}

func newGateway(settings *config.Settings) completion.Gateway {
	opts := []completion.Option{
		completion.WithApiKey(cfg.CompletionKey),
		completion.WithModel(cfg.CompletionModel),
		completion.WithEndpoint(settings.CompletionURL),
	}

	if len(cfg.SystemPrompt) > 0 {
		opts = append(opts, completion.WithSystemPrompt(cfg.SystemPrompt))
	}

	switch cfg.Completion {
	case "openai":
		return openaigateway.NewGateway(opts...)
	case "anthropic":
		return anthropicgateway.NewGateway(opts...)
	case "google":
		return googlegateway.NewGateway(opts...)
	default:
		return lmstudio.NewGateway(opts...)
	}
}
