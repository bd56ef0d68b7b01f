package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/w-h-a/spinach/completion"
	"github.com/w-h-a/spinach/fault"
	"github.com/w-h-a/spinach/internal/config"
	"github.com/w-h-a/spinach/internal/service/ingest"
)

const maxUploadBytes = 10 << 20

var allowedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".json": true,
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"name":    s.cfg.Name,
		"version": s.cfg.Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"total_chunks": count,
	})
}

func (s *Server) handleModelStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    s.embedder.Status(),
		"model":     s.cfg.EmbedderModel,
		"dimension": s.embedder.Dimension(),
	})
}

func (s *Server) handleLLMInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"backend":  s.cfg.CompletionType,
		"model":    s.cfg.CompletionModel,
		"base_url": s.settings.CompletionURL(),
	}

	if informer, ok := s.gateway.(completion.ModelInformer); ok {
		models, err := informer.ModelInfo(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		info["models"] = models
	}

	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	snapshot := s.settings.Snapshot()

	s.writeJSON(w, http.StatusOK, map[string]any{
		"llm": map[string]any{
			"backend":  s.cfg.CompletionType,
			"model":    s.cfg.CompletionModel,
			"base_url": snapshot.CompletionURL,
		},
		"rag": map[string]any{
			"top_k":                snapshot.TopK,
			"similarity_threshold": snapshot.Threshold,
			"chunk_size":           s.cfg.ChunkSize,
			"chunk_overlap":        s.cfg.ChunkOverlap,
		},
		"embedding": map[string]any{
			"model": s.cfg.EmbedderModel,
		},
	})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var patch config.Patch

	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.fail(w, fmt.Errorf("%w: %v", fault.ErrConfiguration, err))
		return
	}

	updated, err := s.settings.Update(patch)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.fail(w, fmt.Errorf("%w: %v", fault.ErrEmptyInput, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, fmt.Errorf("%w: file field is required", fault.ErrEmptyInput))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		s.fail(w, fmt.Errorf("%w: unsupported file type %s", fault.ErrEmptyInput, ext))
		return
	}

	text, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		s.fail(w, err)
		return
	}

	if len(text) > maxUploadBytes {
		s.fail(w, fmt.Errorf("%w: file exceeds %d bytes", fault.ErrEmptyInput, maxUploadBytes))
		return
	}

	result, err := s.ingest.Ingest(r.Context(), header.Filename, ingest.FileType(header.Filename), string(text))
	if err != nil {
		s.fail(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUploadText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text     string `json:"text"`
		Filename string `json:"filename"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, fmt.Errorf("%w: %v", fault.ErrEmptyInput, err))
		return
	}

	filename := strings.TrimSpace(req.Filename)
	if len(filename) == 0 {
		filename = fmt.Sprintf("pasted-%d.md", time.Now().Unix())
	} else if len(filepath.Ext(filename)) == 0 {
		filename += ".md"
	}

	result, err := s.ingest.Ingest(r.Context(), filename, ingest.FileType(filename), req.Text)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	docs, err := s.ingest.List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"count":     len(docs),
	})
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	chunks, err := s.ingest.Content(r.Context(), filename)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"filename": filename,
		"chunks":   chunks,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	removed, err := s.ingest.Delete(r.Context(), filename)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"filename":       filename,
		"chunks_deleted": removed,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.ingest.Reset(r.Context()); err != nil {
		s.fail(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.ingest.Count(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"total_chunks": count})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.templates.List()
	if err != nil {
		s.fail(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	content, err := s.templates.Read(id)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"content": content,
	})
}

func (s *Server) handleRagQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question  string   `json:"question"`
		TopK      *int     `json:"top_k"`
		Threshold *float64 `json:"similarity_threshold"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, fmt.Errorf("%w: %v", fault.ErrEmptyInput, err))
		return
	}

	snapshot := s.settings.Snapshot()

	topK := snapshot.TopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	threshold := snapshot.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	sources, err := s.rag.Retrieve(r.Context(), req.Question, topK, threshold)
	if err != nil {
		s.fail(w, err)
		return
	}

	prompt := s.rag.BuildPrompt(req.Question, sources)

	answer, err := s.chat.Respond(r.Context(), []completion.Message{
		{Role: completion.RoleUser, Content: prompt},
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"answer":  answer,
		"sources": sources,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []completion.Message `json:"messages"`
		Stream   bool                 `json:"stream"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, fmt.Errorf("%w: %v", fault.ErrEmptyInput, err))
		return
	}

	if !req.Stream {
		answer, err := s.chat.Respond(r.Context(), req.Messages)
		if err != nil {
			s.fail(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"response": answer})
		return
	}

	events, err := s.chat.Stream(r.Context(), req.Messages)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.relaySSE(w, r, events)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.options.Logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, fault.ErrConfiguration), errors.Is(err, fault.ErrEmptyInput):
		status = http.StatusBadRequest
	case errors.Is(err, fault.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, fault.ErrModelUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, fault.ErrUpstream):
		status = http.StatusBadGateway
	}

	s.writeJSON(w, status, map[string]any{"error": err.Error()})
}
