// Package server provides the HTTP server and routing for the water balance service.
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

	"github.com/tailwater/aquabalance/internal/config"
	"github.com/tailwater/aquabalance/internal/database"
	"github.com/tailwater/aquabalance/internal/di"
	alertshandlers "github.com/tailwater/aquabalance/internal/modules/alerts/handlers"
	balancehandlers "github.com/tailwater/aquabalance/internal/modules/balance/handlers"
	constantshandlers "github.com/tailwater/aquabalance/internal/modules/constants/handlers"
	facilitieshandlers "github.com/tailwater/aquabalance/internal/modules/facilities/handlers"
	settingshandlers "github.com/tailwater/aquabalance/internal/modules/settings/handlers"
	storagehandlers "github.com/tailwater/aquabalance/internal/modules/storage/handlers"
	workbookhandlers "github.com/tailwater/aquabalance/internal/workbook/handlers"
)

// Config holds server configuration - 4-database architecture
type Config struct {
	Log       zerolog.Logger
	WaterDB   *database.DB
	ConfigDB  *database.DB
	AlertsDB  *database.DB
	CacheDB   *database.DB
	Config    *config.Config
	Port      int
	DevMode   bool
	Container *di.Container // DI container with all services
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	waterDB        *database.DB
	configDB       *database.DB
	alertsDB       *database.DB
	cacheDB        *database.DB
	cfg            *config.Config
	container      *di.Container // DI container with all services
	systemHandlers *SystemHandlers
	statusMonitor  *StatusMonitor
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	systemHandlers := NewSystemHandlers(
		cfg.Log,
		cfg.Config.DataDir,
		cfg.Config.LogDir,
		cfg.WaterDB,
		cfg.ConfigDB,
		cfg.AlertsDB,
		cfg.CacheDB,
		cfg.Container.WorkbookRepo,
		cfg.Container.AlertRepo,
		cfg.Container.ResultRepo,
		cfg.Container.Scheduler,
	)

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		waterDB:        cfg.WaterDB,
		configDB:       cfg.ConfigDB,
		alertsDB:       cfg.AlertsDB,
		cacheDB:        cfg.CacheDB,
		cfg:            cfg.Config,
		container:      cfg.Container,
		systemHandlers: systemHandlers,
	}

	// Status monitor: periodic status events + workbook change detection
	s.statusMonitor = NewStatusMonitor(
		cfg.Container.EventBus,
		cfg.Container.WorkbookRepo,
		cfg.Container.WorkbookService,
		cfg.Container.SettingsService,
		cfg.Log,
	)

	s.setupMiddleware(cfg.DevMode)
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

// SetJobs registers job instances for manual triggering via API
func (s *Server) SetJobs(jobs *di.JobInstances) {
	s.systemHandlers.SetJobs(
		jobs.MonthlyBalance,
		jobs.LogCleanup,
		jobs.DailyBackup,
		jobs.OffsiteBackup,
		jobs.CacheSweep,
		jobs.AlertSweep,
		jobs.CheckDatabases,
		jobs.WALCheckpoint,
	)
}

// setupMiddleware configures middleware
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

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Liveness probe
	s.router.Get("/health", s.handleHealth)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		// Health with per-database quick checks
		r.Get("/health", s.handleAPIHealth)

		// Event streams - SSE and websocket fan-out of the bus
		eventsStreamHandler := NewEventsStreamHandler(s.container.EventBus, s.log)
		r.Get("/events/stream", eventsStreamHandler.ServeHTTP)

		eventsSocketHandler := NewEventsSocketHandler(s.container.EventBus, s.log)
		r.Get("/events/ws", eventsSocketHandler.ServeHTTP)

		// System monitoring and operations
		systemHandlers := s.systemHandlers
		logHandlers := NewLogHandlers(s.log, s.cfg.LogDir)

		r.Route("/system", func(r chi.Router) {
			// Status and monitoring
			r.Get("/status", systemHandlers.HandleSystemStatus)
			r.Get("/health", systemHandlers.HandleSystemHealth)
			r.Get("/database/stats", systemHandlers.HandleDatabaseStats)
			r.Get("/disk", systemHandlers.HandleDiskUsage)

			// Log access
			r.Get("/logs/list", logHandlers.HandleListLogs)
			r.Get("/logs", logHandlers.HandleGetLogs)
			r.Get("/logs/errors", logHandlers.HandleGetErrors)

			// Job triggers (manual operation triggers)
			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", systemHandlers.HandleJobsStatus)
				r.Post("/monthly-balance", systemHandlers.HandleTriggerMonthlyBalance)
				r.Post("/log-cleanup", systemHandlers.HandleTriggerLogCleanup)
				r.Post("/daily-backup", systemHandlers.HandleTriggerDailyBackup)
				r.Post("/offsite-backup", systemHandlers.HandleTriggerOffsiteBackup)
				r.Post("/cache-sweep", systemHandlers.HandleTriggerCacheSweep)
				r.Post("/alert-sweep", systemHandlers.HandleTriggerAlertSweep)
				r.Post("/check-databases", systemHandlers.HandleTriggerCheckDatabases)
				r.Post("/wal-checkpoint", systemHandlers.HandleTriggerWALCheckpoint)
			})
		})

		// Facilities module
		facilitiesHandler := facilitieshandlers.NewHandler(s.container.FacilityService, s.log)
		facilitiesHandler.RegisterRoutes(r)

		// Balance module
		balanceHandler := balancehandlers.NewHandler(
			s.container.Orchestrator,
			s.container.ResultRepo,
			s.container.SettingsService,
			s.log,
		)
		balanceHandler.RegisterRoutes(r)

		// Storage records module
		storageHandler := storagehandlers.NewHandler(
			s.container.FacilityService,
			s.container.StorageCalculator,
			s.log,
		)
		storageHandler.RegisterRoutes(r)

		// Alerts module
		alertsHandler := alertshandlers.NewHandler(
			s.container.AlertRepo,
			s.container.AlertEvaluator,
			s.log,
		)
		alertsHandler.RegisterRoutes(r)

		// Constants module
		constantsHandler := constantshandlers.NewHandler(s.container.ConstantsService, s.log)
		constantsHandler.RegisterRoutes(r)

		// Settings module
		settingsHandler := settingshandlers.NewHandler(s.container.SettingsService, s.log)
		settingsHandler.RegisterRoutes(r)

		// Workbook module
		workbookHandler := workbookhandlers.NewHandler(s.container.WorkbookService, s.log)
		workbookHandler.RegisterRoutes(r)
	})
}

// Start starts the HTTP server and background monitors
func (s *Server) Start() error {
	// Start status monitor (check every 60 seconds)
	if s.statusMonitor != nil {
		s.statusMonitor.Start(60 * time.Second)
		s.log.Info().Msg("Status monitor started")
	}

	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.statusMonitor != nil {
		s.statusMonitor.Stop()
	}
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the chi router, used by tests to drive requests without
// binding a socket.
func (s *Server) Router() http.Handler {
	return s.router
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
