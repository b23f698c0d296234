package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/smartportal/smartportal/internal/auth"
	"github.com/smartportal/smartportal/internal/capture"
	"github.com/smartportal/smartportal/internal/dashboard"
	"github.com/smartportal/smartportal/internal/observability"
	"github.com/smartportal/smartportal/internal/shared"
	"github.com/smartportal/smartportal/internal/view"
	"github.com/smartportal/smartportal/jobs"
	"github.com/smartportal/smartportal/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Templates        *view.Engine
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	Gate             auth.Gate
	AuthHandler      *auth.Handler
	DashboardHandler *dashboard.Handler
	CaptureHandler   *capture.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with portal defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Public surface: login, registration, logout, system status.
	params.AuthHandler.MountRoutes(r)
	params.DashboardHandler.MountRoutes(r)

	// Gated pages.
	r.Group(func(r chi.Router) {
		r.Use(params.Gate.RequirePage)
		params.DashboardHandler.MountPages(r)
	})

	// Gated JSON APIs.
	r.Group(func(r chi.Router) {
		r.Use(params.Gate.RequireAPI)
		params.AuthHandler.MountAPI(r)
		params.DashboardHandler.MountAPI(r)
		params.CaptureHandler.MountAPI(r)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		renderErrorPage(params, w, r, "pages/404.html", http.StatusNotFound)
	})

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

func renderErrorPage(params RouterParams, w http.ResponseWriter, r *http.Request, template string, status int) {
	w.WriteHeader(status)
	data := view.TemplateData{Title: "Smart Portal", CurrentPath: r.URL.Path}
	if err := params.Templates.Render(w, template, data); err != nil {
		params.Logger.Error("render error page", slog.Any("error", err))
	}
}

// staticCacheHandler wraps a file server with Cache-Control headers so
// browsers keep assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
