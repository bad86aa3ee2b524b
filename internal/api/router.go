package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"sheetsync/internal/core"
	"sheetsync/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Options configures the HTTP server.
type Options struct {
	Addr      string
	AuthToken string
	WeekStart time.Weekday
	// MCP is mounted at /mcp when set.
	MCP http.Handler
}

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	store      *store.Store
	scheduler  *core.Scheduler
	lister     core.FileLister
	logger     *slog.Logger
	location   *time.Location
	weekStart  time.Weekday
	authToken  string
	mcp        http.Handler
	now        func() time.Time
	runCtx     context.Context
}

// NewServer constructs the HTTP API server.
func NewServer(opts Options, store *store.Store, scheduler *core.Scheduler, lister core.FileLister, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		store:     store,
		scheduler: scheduler,
		lister:    lister,
		logger:    logger,
		location:  scheduler.Location(),
		weekStart: opts.WeekStart,
		authToken: opts.AuthToken,
		mcp:       opts.MCP,
		now:       time.Now,
		runCtx:    context.Background(),
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests. Background runs started through the
// API use ctx.
func (s *Server) Start(ctx context.Context) error {
	s.runCtx = ctx
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.mcp != nil {
		var mcpHandler = s.mcp
		if s.authToken != "" {
			mcpHandler = AuthMiddleware(s.authToken)(mcpHandler)
		}
		s.router.Handle("/mcp", mcpHandler)
	}

	s.router.Route("/v1", func(r chi.Router) {
		if s.authToken != "" {
			r.Use(AuthMiddleware(s.authToken))
		}

		r.Post("/cron/validate", s.handleCronValidate)
		r.Post("/cron/preview", s.handleCronPreview)
		r.Post("/files/preview", s.handleFilesPreview)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)
			r.Get("/stats", s.handleTaskStats)

			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Put("/", s.handleUpdateTask)
				r.Delete("/", s.handleDeleteTask)
				r.Post("/enable", s.handleSetEnabled(true))
				r.Post("/disable", s.handleSetEnabled(false))
				r.Post("/run", s.handleRunTask)
				r.Get("/logs", s.handleListLogs)
				r.Get("/next-run", s.handleNextRun)
			})
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Post("/", s.handleSaveTemplate)
			r.Delete("/{templateID}", s.handleDeleteTemplate)
		})
	})
}
