package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hyperjump/ragcore/internal/config"
	"github.com/hyperjump/ragcore/internal/indexer"
	"github.com/hyperjump/ragcore/internal/models"
	"github.com/hyperjump/ragcore/internal/rag"
	"go.uber.org/zap"
)

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if !s.decode(w, r, &query) {
		return
	}
	s.trace.Debug("search_request", zap.String("query", query.Query), zap.Int("top_k", query.TopK))
	res, err := s.svc.Search(r.Context(), query)
	if err != nil {
		s.respondQueryError(w, "search_failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

// handleContext retrieves and injects context. With ?format=text the prompt
// block is returned instead of JSON.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if !s.decode(w, r, &query) {
		return
	}
	rc, err := s.svc.Retrieve(r.Context(), query)
	if err != nil {
		s.respondQueryError(w, "context_failed", err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(rag.FormatContext(rc)))
		return
	}
	s.respondJSON(w, http.StatusOK, rc)
}

func (s *Server) respondQueryError(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, models.ErrEmptyQuery) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.trace.Error(action, err)
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := s.svc.Documents()
	if docs == nil {
		docs = []models.DocumentIndexEntry{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if !s.decode(w, r, &input) {
		return
	}
	s.trace.Debug("add_document_request", zap.String("path", input.Path), zap.Bool("inline", input.Content != nil))
	if input.Content == nil && input.Path != "" {
		if info, err := os.Stat(input.Path); err == nil && info.IsDir() {
			s.addDirectory(w, r, input.Path)
			return
		}
	}
	entry, err := s.svc.AddDocument(r.Context(), input)
	switch {
	case errors.Is(err, indexer.ErrEmptyPath):
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, fs.ErrNotExist):
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	case err != nil:
		s.trace.Error("add_document_failed", err, zap.String("path", input.Path))
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, entry.Summary())
}

// addDirectory indexes every accepted file under dir.
func (s *Server) addDirectory(w http.ResponseWriter, r *http.Request, dir string) {
	n, err := s.svc.AddPath(r.Context(), dir)
	if err != nil {
		s.trace.Error("add_directory_failed", err, zap.String("path", dir))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{"path": dir, "indexed": n})
}

func (s *Server) handleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	n := s.svc.RemovePath(r.Context(), path)
	if n == 0 {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"path": path, "removed": n})
}

type statsConfig struct {
	Mode         string `json:"mode"`
	Scorer       string `json:"scorer"`
	ChunkMax     int    `json:"chunk_max_chars"`
	ChunkOverlap int    `json:"chunk_overlap"`
	Strategy     string `json:"chunk_strategy"`
	Dimensions   int    `json:"embedding_dimensions,omitempty"`
	DatabasePath string `json:"database_path,omitempty"`
}

type statsResponse struct {
	models.Stats
	DiskUsageBytes *int64      `json:"disk_usage_bytes,omitempty"`
	Config         statsConfig `json:"config"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.cfgMu.Lock()
	c := s.cfg
	resp := statsResponse{
		Stats: s.svc.Stats(),
		Config: statsConfig{
			Mode:         c.RAG.Retrieval.Mode,
			Scorer:       c.RAG.Retrieval.Scorer,
			ChunkMax:     c.RAG.Chunk.MaxChars,
			ChunkOverlap: c.RAG.Chunk.OverlapOrDefault(),
			Strategy:     c.RAG.Chunk.Strategy,
			Dimensions:   c.Embedding.Dimensions,
			DatabasePath: c.Storage.DatabasePath,
		},
	}
	s.cfgMu.Unlock()
	if size, ok := s.svc.CatalogSize(); ok {
		resp.DiskUsageBytes = &size
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.trace.Debug("watch_add_request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.trace.Error("watch_add_failed", err, zap.String("path", abs))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistRoots()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.trace.Debug("watch_remove_request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.trace.Error("watch_remove_failed", err, zap.String("path", abs))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	removed := 0
	if r.URL.Query().Get("purge") == "true" {
		removed = s.svc.RemovePath(r.Context(), abs)
	}
	s.persistRoots()
	s.respondJSON(w, http.StatusOK, map[string]any{"path": abs, "status": "removed", "documents_removed": removed})
}

// persistRoots records the watched roots as the corpus paths in the config
// file, when one was given.
func (s *Server) persistRoots() {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.cfg.RAG.Paths = s.watch.Directories()
	if s.configPath == "" {
		return
	}
	if err := config.Save(s.configPath, s.cfg); err != nil {
		s.trace.Warn("config_persist_failed", err, zap.String("path", s.configPath))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
