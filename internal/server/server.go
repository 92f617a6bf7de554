// Package server provides the HTTP server and routing for the portfolio tracker.
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

	"github.com/aristath/portfolio-tracker/internal/di"
	"github.com/aristath/portfolio-tracker/internal/domain"
	currencyhandlers "github.com/aristath/portfolio-tracker/internal/modules/currency/handlers"
	ledgerhandlers "github.com/aristath/portfolio-tracker/internal/modules/ledger/handlers"
	portfoliohandlers "github.com/aristath/portfolio-tracker/internal/modules/portfolio/handlers"
	priceshandlers "github.com/aristath/portfolio-tracker/internal/modules/prices/handlers"
	tickershandlers "github.com/aristath/portfolio-tracker/internal/modules/tickers/handlers"
	"github.com/aristath/portfolio-tracker/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log             zerolog.Logger
	Port            int
	DevMode         bool
	DataDir         string
	DefaultProvider domain.Provider
	Container       *di.Container
	Jobs            *di.JobInstances
	Scheduler       *scheduler.Scheduler
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	container      *di.Container
	systemHandlers *SystemHandlers
	backupHandlers *BackupHandlers
	defaultProv    domain.Provider
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	var jobs []scheduler.Job
	if cfg.Jobs != nil {
		jobs = cfg.Jobs.All()
	}

	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		port:        cfg.Port,
		container:   cfg.Container,
		defaultProv: cfg.DefaultProvider,
		systemHandlers: NewSystemHandlers(
			cfg.Log,
			cfg.DataDir,
			cfg.Container.Databases(),
			cfg.Container.TransactionRepo,
			cfg.Container.TickerRepo,
			cfg.Scheduler,
			jobs,
		),
		backupHandlers: NewBackupHandlers(cfg.Container.BackupService, cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // imports and refreshes run inside the request
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router exposes the handler tree (tests)
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	c := s.container
	s.router.Route("/api", func(r chi.Router) {
		ledgerhandlers.NewHandler(c.TransactionRepo, c.ImportRunRepo, c.Importer, s.defaultProv, s.log).RegisterRoutes(r)
		portfoliohandlers.NewHandler(c.PortfolioService, s.log).RegisterRoutes(r)
		currencyhandlers.NewHandler(c.CurrencyService, s.log).RegisterRoutes(r)
		tickershandlers.NewHandler(c.TickerRepo, c.Resolver, s.log).RegisterRoutes(r)
		priceshandlers.NewHandler(c.Refresher, s.log).RegisterRoutes(r)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/databases", s.systemHandlers.HandleDatabaseStats)
			r.Get("/disk", s.systemHandlers.HandleDiskUsage)
			r.Get("/jobs", s.systemHandlers.HandleJobsStatus)
			r.Post("/jobs/{name}", s.systemHandlers.HandleTriggerJob)
		})

		r.Route("/backup", func(r chi.Router) {
			r.Get("/", s.backupHandlers.HandleListBackups)
			r.Post("/", s.backupHandlers.HandleCreateBackup)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
