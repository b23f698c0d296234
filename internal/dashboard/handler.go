package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/smartportal/smartportal/internal/activity"
	"github.com/smartportal/smartportal/internal/auth"
	"github.com/smartportal/smartportal/internal/shared"
	"github.com/smartportal/smartportal/internal/view"
)

const portalVersion = "2.0.0"

const recentActivityLimit = 10

// Handler serves the dashboard page and its JSON companions.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	activity  *activity.Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	uploadDir string
	titler    cases.Caser
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, activitySvc *activity.Service, templates *view.Engine, csrf *shared.CSRFManager, uploadDir string) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		activity:  activitySvc,
		templates: templates,
		csrf:      csrf,
		uploadDir: uploadDir,
		titler:    cases.Title(language.English),
	}
}

// MountPages registers the gated page routes.
func (h *Handler) MountPages(r chi.Router) {
	r.Get("/dashboard", h.showDashboard)
	r.Get("/camera", h.handleCamera)
}

// MountAPI registers the gated JSON routes.
func (h *Handler) MountAPI(r chi.Router) {
	r.Get("/api/user-stats", h.handleUserStats)
	r.Get("/api/recent-activity", h.handleRecentActivity)
}

// MountRoutes registers the public status route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/system-info", h.handleSystemInfo)
}

type dashboardData struct {
	Username    string
	DisplayName string
	CurrentTime string
	UserIP      string
	SessionID   string
	Stats       Stats
	Recent      []activity.Entry
}

func (h *Handler) showDashboard(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	var data dashboardData
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		stats, err := h.service.Stats(ctx, id.UserID)
		if err != nil {
			return err
		}
		data.Stats = stats
		return nil
	})
	g.Go(func() error {
		recent, err := h.activity.Recent(ctx, id.UserID, recentActivityLimit)
		if err != nil {
			return err
		}
		data.Recent = recent
		return nil
	})
	if err := g.Wait(); err != nil {
		h.logger.Error("load dashboard data", slog.Any("error", err))
		h.render(w, r, "pages/500.html", nil, http.StatusInternalServerError)
		return
	}

	data.Username = id.Username
	data.DisplayName = h.titler.String(id.Username)
	data.CurrentTime = time.Now().Format("January 02, 2006 at 3:04 PM")
	data.UserIP = r.RemoteAddr
	data.SessionID = id.SessionID
	h.render(w, r, "pages/dashboard.html", data, http.StatusOK)
}

func (h *Handler) handleUserStats(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Not authenticated"})
		return
	}
	stats, err := h.service.Stats(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("user stats", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to load stats"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleRecentActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Not authenticated"})
		return
	}
	entries, err := h.activity.Recent(r.Context(), id.UserID, recentActivityLimit)
	if err != nil {
		h.logger.Error("recent activity", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to load activity"})
		return
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleCamera is the legacy capture page; it now lives on the dashboard.
func (h *Handler) handleCamera(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"status":  "success",
		"message": "Smart Portal is running",
		"version": portalVersion,
		"features": []string{
			"Enhanced Security",
			"Activity Monitoring",
			"User Dashboard",
			"Biometric Support",
			"Real-time Updates",
		},
		"upload_folder": h.uploadDir,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := os.Stat(h.uploadDir); err == nil {
		info["folder_exists"] = true
	} else {
		info["folder_exists"] = false
	}
	if sess := shared.SessionFromContext(r.Context()); sess.Authenticated() {
		info["session_user_id"] = sess.User()
		info["session_username"] = sess.Get("username")
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Dashboard",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
