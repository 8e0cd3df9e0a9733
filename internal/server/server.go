// Package server exposes the playlist core over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/voyagen/streamshelf/internal/epg"
	"github.com/voyagen/streamshelf/internal/logging"
	"github.com/voyagen/streamshelf/internal/service"
	"github.com/voyagen/streamshelf/internal/store"
)

// RefreshQueue defers refreshes to a background worker.
type RefreshQueue interface {
	Enqueue(ctx context.Context, playlistID, reason string) error
}

// Server holds dependencies for the HTTP API.
type Server struct {
	store  store.Store
	ingest *service.Ingester
	epg    *epg.Importer
	queue  RefreshQueue
	port   string
	logger *zap.Logger
	router chi.Router
}

// Option configures optional collaborators.
type Option func(*Server)

// WithRefreshQueue makes refresh requests asynchronous.
func WithRefreshQueue(q RefreshQueue) Option { return func(s *Server) { s.queue = q } }

// WithEPG enables the EPG import endpoint.
func WithEPG(im *epg.Importer) Option { return func(s *Server) { s.epg = im } }

// New creates a Server and registers routes.
func New(st store.Store, in *service.Ingester, port string, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{store: st, ingest: in, port: port, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware(s.logger))
	r.Use(withCORS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/playlists", func(r chi.Router) {
			r.Get("/", s.handleListPlaylists)
			r.Get("/stream", s.handleStreamPlaylists)
			r.Post("/m3u", s.handleIngestM3U)
			r.Post("/xtream", s.handleIngestXtream)
			r.Post("/text", s.handleIngestText)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetPlaylist)
				r.Patch("/", s.handleRenamePlaylist)
				r.Delete("/", s.handleDeletePlaylist)
				r.Post("/refresh", s.handleRefreshPlaylist)
				r.Get("/export.m3u", s.handleExportPlaylist)
				r.Get("/channels", s.handleListChannels)
				r.Get("/categories", s.handleListCategories)
			})
		})

		r.Get("/categories/counts", s.handleCategoryCounts)

		r.Route("/favorites", func(r chi.Router) {
			r.Get("/", s.handleListFavorites)
			r.Post("/prune", s.handlePruneFavorites)
			r.Get("/{channelID}", s.handleIsFavorite)
			r.Post("/{channelID}/toggle", s.handleToggleFavorite)
		})

		r.Route("/epg", func(r chi.Router) {
			r.Post("/import", s.handleImportEPG)
			r.Get("/{channelID}/programs", s.handlePrograms)
			r.Get("/{channelID}/now", s.handleCurrentProgram)
		})

		r.Get("/docs", handleSwaggerUI)
		r.Get("/docs/openapi.yaml", handleOpenAPISpec)
	})
	s.router = r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.port
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	s.logger.Info("listening", zap.String("addr", addr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

// withCORS adds CORS headers to every response and handles preflight OPTIONS requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
