// Package server provides the HTTP server and routing for the DITM screener.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/ditm/internal/database"
	"github.com/aristath/ditm/internal/modules/analytics"
	"github.com/aristath/ditm/internal/modules/presets"
	"github.com/aristath/ditm/internal/modules/scan"
	"github.com/aristath/ditm/internal/modules/tracking"
	"github.com/aristath/ditm/internal/modules/watchlist"
)

// Config carries everything the server needs to route requests.
type Config struct {
	Port          int
	DevMode       bool
	DataDir       string
	TargetCapital float64
	DefaultPreset string

	Scans     *scan.Service
	ScanRepo  *scan.Repository
	ScanCache *scan.Cache
	Tracking  *tracking.Service
	Analytics *analytics.Service
	Presets   *presets.Library
	Watchlist *watchlist.Repository
	Databases []*database.DB

	Log zerolog.Logger
}

// Server wraps the chi router and the underlying http.Server.
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    Config
	log    zerolog.Logger
}

// New creates a configured server. Routes and middleware are set up
// immediately; nothing listens until Start is called.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		log:    cfg.Log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	if !s.cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/scan", s.handleScan)
		r.Get("/scan/latest", s.handleLatestScan)
		r.Get("/scans", s.handleListScans)
		r.Get("/scans/{id}", s.handleGetScan)

		r.Get("/performance", s.handlePerformance)

		r.Get("/positions", s.handleListPositions)
		r.Get("/positions/{id}", s.handleGetPosition)
		r.Post("/positions/{id}/close", s.handleClosePosition)
		r.Post("/positions/refresh", s.handleRefreshPositions)

		r.Get("/tickers", s.handleListTickers)
		r.Post("/tickers", s.handleAddTicker)
		r.Delete("/tickers/{ticker}", s.handleRemoveTicker)

		r.Get("/presets", s.handleListPresets)
		r.Post("/presets/{name}/explain", s.handleExplainPreset)

		r.Get("/system/status", s.handleSystemStatus)
		r.Get("/system/databases", s.handleDatabaseStats)
		r.Get("/system/disk", s.handleDiskUsage)
	})
}

// Start begins listening and blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs each request with method, path, status and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}
