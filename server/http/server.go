package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/w-h-a/spinach/completion"
	"github.com/w-h-a/spinach/embedder"
	"github.com/w-h-a/spinach/internal/config"
	"github.com/w-h-a/spinach/internal/service/chat"
	"github.com/w-h-a/spinach/internal/service/ingest"
	"github.com/w-h-a/spinach/internal/service/rag"
	"github.com/w-h-a/spinach/store"
)

type Server struct {
	options   Options
	cfg       config.Config
	settings  *config.Settings
	ingest    *ingest.Service
	templates *ingest.Templates
	rag       *rag.Service
	chat      *chat.Service
	embedder  embedder.Embedder
	store     store.Store
	gateway   completion.Gateway
	server    *http.Server
}

func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	router.HandleFunc("/api/model-status", s.handleModelStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/llm-info", s.handleLLMInfo).Methods(http.MethodGet)
	router.HandleFunc("/api/settings", s.handleGetSettings).Methods(http.MethodGet)
	router.HandleFunc("/api/settings", s.handlePutSettings).Methods(http.MethodPut)

	router.HandleFunc("/api/documents/upload", s.handleUpload).Methods(http.MethodPost)
	router.HandleFunc("/api/documents/upload-text", s.handleUploadText).Methods(http.MethodPost)
	router.HandleFunc("/api/documents/list", s.handleList).Methods(http.MethodGet)
	router.HandleFunc("/api/documents/content/{filename}", s.handleContent).Methods(http.MethodGet)
	router.HandleFunc("/api/documents/reset", s.handleReset).Methods(http.MethodPost)
	router.HandleFunc("/api/documents/count", s.handleCount).Methods(http.MethodGet)
	router.HandleFunc("/api/documents/templates", s.handleTemplates).Methods(http.MethodGet)
	router.HandleFunc("/api/documents/templates/{id}", s.handleTemplate).Methods(http.MethodGet)
	router.HandleFunc("/api/documents/{filename}", s.handleDelete).Methods(http.MethodDelete)

	router.HandleFunc("/api/rag/query", s.handleRagQuery).Methods(http.MethodPost)
	router.HandleFunc("/api/chat", s.handleChat).Methods(http.MethodPost)

	var handler http.Handler = router
	handler = s.logging(handler)
	handler = s.cors(handler)

	return handler
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.options.Address,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
	}

	s.options.Logger.Info("server starting", "address", s.options.Address)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func NewServer(
	cfg config.Config,
	settings *config.Settings,
	ingestService *ingest.Service,
	templates *ingest.Templates,
	ragService *rag.Service,
	chatService *chat.Service,
	e embedder.Embedder,
	st store.Store,
	gateway completion.Gateway,
	opts ...Option,
) *Server {
	if settings == nil {
		panic("settings are required")
	}

	if ingestService == nil || ragService == nil || chatService == nil {
		panic("services are required")
	}

	return &Server{
		options:   NewOptions(opts...),
		cfg:       cfg,
		settings:  settings,
		ingest:    ingestService,
		templates: templates,
		rag:       ragService,
		chat:      chatService,
		embedder:  e,
		store:     st,
		gateway:   gateway,
	}
}
