// Package server provides the HTTP API for ragcore.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/ragcore/internal/config"
	"github.com/hyperjump/ragcore/internal/models"
	"github.com/hyperjump/ragcore/pkg/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// maxBodyBytes bounds request bodies, including inline document content.
const maxBodyBytes = 16 << 20

// Service is the retrieval core the API exposes. *rag.Pipeline implements it.
type Service interface {
	Search(ctx context.Context, q models.SearchQuery) (*models.SearchResult, error)
	Retrieve(ctx context.Context, q models.SearchQuery) (*models.RAGContext, error)
	AddDocument(ctx context.Context, in models.DocumentInput) (*models.DocumentIndexEntry, error)
	AddPath(ctx context.Context, path string) (int, error)
	RemovePath(ctx context.Context, path string) int
	Documents() []models.DocumentIndexEntry
	Stats() models.Stats
	CatalogSize() (int64, bool)
}

// WatchService manages watched roots. *watcher.Watcher implements it.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the ragcore API.
type Server struct {
	svc        Service
	watch      WatchService
	cfg        *config.Config
	cfgMu      sync.Mutex
	configPath string
	trace      *utils.Tracer
	server     *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithWatch enables the watched-directory endpoints.
func WithWatch(w WatchService) Option {
	return func(s *Server) { s.watch = w }
}

// WithConfigPath persists watched-directory changes to the config file at path.
func WithConfigPath(path string) Option {
	return func(s *Server) { s.configPath = path }
}

// NewServer creates a server for svc. cfg supplies the listen address and
// the configuration summary reported by the stats endpoint.
func NewServer(svc Service, cfg *config.Config, logger *zap.Logger, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Server{
		svc:   svc,
		cfg:   cfg,
		trace: utils.NewTracer(logger, "server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/context", s.handleContext)
		r.Get("/documents", s.handleListDocuments)
		r.Post("/documents", s.handleAddDocument)
		r.Delete("/documents", s.handleRemoveDocument)
		r.Get("/stats", s.handleStats)
		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.trace.Info("server_starting", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.trace.Timed(zapcore.DebugLevel, "http_request", start,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
