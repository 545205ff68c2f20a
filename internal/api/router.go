package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/speech2text/internal/api/handlers"
	"github.com/nikhilbhutani/speech2text/internal/api/middleware"
	"github.com/nikhilbhutani/speech2text/internal/config"
	"github.com/nikhilbhutani/speech2text/internal/metrics"
)

// Deps are the services the HTTP layer is built from. Usage, Audit and the
// readiness checks may be left nil when their store is not configured.
type Deps struct {
	Transcriber handlers.Transcriber
	Usage       handlers.UsageReader
	Audit       handlers.AuditReader
	Ready       map[string]handlers.Pinger
	Metrics     *metrics.Metrics
}

type Router struct {
	mux  *chi.Mux
	cfg  *config.Config
	deps Deps
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	return &Router{
		mux:  chi.NewRouter(),
		cfg:  cfg,
		deps: deps,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.CORSOrigins))
	if rt.deps.Metrics != nil {
		r.Use(middleware.Metrics(rt.deps.Metrics))
		r.Method(http.MethodGet, "/metrics", rt.deps.Metrics.Handler())
	}

	health := handlers.NewHealthHandler(rt.deps.Ready)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	transcribeH := handlers.NewTranscribeHandler(rt.deps.Transcriber)
	r.Post("/upload", transcribeH.Upload)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		adminH := handlers.NewAdminHandler(rt.deps.Usage, rt.deps.Audit)
		r.Get("/usage", adminH.Usage)
		r.Get("/audit", adminH.AuditLogs)
	})

	return r
}
