// Package server provides the HTTP API for fxsync.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/avolkov/fxsync/internal/config"
	"github.com/avolkov/fxsync/internal/database"
	"github.com/avolkov/fxsync/internal/modules/currency"
	"github.com/avolkov/fxsync/internal/modules/ledger"
	"github.com/avolkov/fxsync/internal/modules/rates"
	"github.com/avolkov/fxsync/internal/ratesync"
)

// SyncEngine is the part of the orchestrator the API exposes.
type SyncEngine interface {
	Start(mode ratesync.BaselineMode) (ratesync.RunHandle, error)
	Cancel()
	Status() ratesync.Status
}

// Config holds server configuration
type Config struct {
	Log        zerolog.Logger
	DB         *database.DB
	Config     *config.Config
	Engine     SyncEngine
	Hub        *EventHub
	Currencies *currency.Repository
	Rates      *rates.Repository
	Ledger     *ledger.Repository
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	server     *http.Server
	log        zerolog.Logger
	db         *database.DB
	cfg        *config.Config
	engine     SyncEngine
	hub        *EventHub
	currencies *currency.Repository
	rates      *rates.Repository
	ledger     *ledger.Repository
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		db:         cfg.DB,
		cfg:        cfg.Config,
		engine:     cfg.Engine,
		hub:        cfg.Hub,
		currencies: cfg.Currencies,
		rates:      cfg.Rates,
		ledger:     cfg.Ledger,
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Websocket stream must bypass the write timeout middleware set
		// on regular routes
		r.Get("/events", s.hub.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/sync", func(r chi.Router) {
				r.Post("/start", s.handleSyncStart)
				r.Post("/cancel", s.handleSyncCancel)
				r.Get("/status", s.handleSyncStatus)
			})

			r.Route("/currencies", func(r chi.Router) {
				r.Get("/", s.handleListCurrencies)
				r.Post("/", s.handleCreateCurrency)
				r.Get("/{id}", s.handleGetCurrency)
				r.Put("/{id}", s.handleUpdateCurrency)
				r.Get("/{id}/rates", s.handleGetRates)
			})

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", s.handleListTransactions)
				r.Post("/", s.handleCreateTransaction)
			})

			r.Get("/system/health", s.handleSystemHealth)
		})
	})
}

// Start begins listening. Blocks until shutdown or error.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the handler tree. Used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// handleHealth is the cheap liveness probe; the full integrity check
// lives under /api/system/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.QuickCheck(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("Health check ping failed")
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "unhealthy",
			"service": "fxsync",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "fxsync",
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}
