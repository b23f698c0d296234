package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/smartportal/smartportal/internal/shared"
	"github.com/smartportal/smartportal/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
	}
}

// MountRoutes registers the public authentication routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Get("/register", h.showRegister)
	r.Post("/register", h.handleRegister)
	r.Get("/logout", h.handleLogout)
	r.Post("/logout", h.handleLogout)
}

// MountAPI registers routes that require an authenticated session; the
// caller mounts them behind the gate.
func (h *Handler) MountAPI(r chi.Router) {
	r.Post("/api/update-profile", h.handleUpdateProfile)
}

type loginForm struct {
	Username string
	Password string
}

type registerForm struct {
	Username string
	Email    string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess.Authenticated() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.render(w, r, "pages/login.html", map[string]any{"Form": loginForm{}}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}
	if form.Username == "" || form.Password == "" {
		h.render(w, r, "pages/login.html", map[string]any{
			"Form":  form,
			"Error": "Please fill in all fields",
		}, http.StatusBadRequest)
		return
	}

	user, seq, err := h.service.Login(r.Context(), LoginInput{
		Username:  form.Username,
		Password:  form.Password,
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("login failed", slog.Any("error", err))
			status = http.StatusInternalServerError
			err = shared.ErrStoreUnavailable
		}
		h.render(w, r, "pages/login.html", map[string]any{
			"Form":  loginForm{Username: form.Username},
			"Error": shared.UserSafeMessage(err),
		}, status)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.sessionManager.Issue(sess, strconv.FormatInt(user.ID, 10), seq)
	sess.Set("username", user.Username)
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, sess.ExpiresAt(), r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back, " + user.Username})
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/register.html", map[string]any{"Form": registerForm{}}, http.StatusOK)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := registerForm{
		Username: r.PostFormValue("username"),
		Email:    r.PostFormValue("email"),
	}

	_, err := h.service.Register(r.Context(), RegisterInput{
		Username:        form.Username,
		Email:           form.Email,
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
		IP:              r.RemoteAddr,
		UserAgent:       r.UserAgent(),
	})
	if err != nil {
		var vErr *ValidationError
		switch {
		case errors.As(err, &vErr):
			h.render(w, r, "pages/register.html", map[string]any{
				"Form":  form,
				"Error": vErr.Message,
			}, http.StatusBadRequest)
		case errors.Is(err, shared.ErrDuplicateUsername):
			h.render(w, r, "pages/register.html", map[string]any{
				"Form":  form,
				"Error": shared.UserSafeMessage(err),
			}, http.StatusBadRequest)
		default:
			h.logger.Error("register failed", slog.Any("error", err))
			h.render(w, r, "pages/register.html", map[string]any{
				"Form":  form,
				"Error": shared.UserSafeMessage(err),
			}, http.StatusInternalServerError)
		}
		return
	}

	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Account created, please log in"})
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleLogout clears the session. Best effort: it succeeds and redirects
// even when the session is already invalid.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess.Authenticated() {
		userID, _ := strconv.ParseInt(sess.User(), 10, 64)
		h.service.Logout(r.Context(), userID, sess.Get("username"), sess.ID, r.RemoteAddr, r.UserAgent())
	}
	h.sessionManager.Destroy(sess)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Not authenticated"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid form data"})
		return
	}
	email := r.PostFormValue("email")

	if err := h.service.UpdateProfile(r.Context(), id.UserID, email, r.RemoteAddr, r.UserAgent()); err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": vErr.Message})
			return
		}
		h.logger.Error("update profile", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Failed to update profile"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Profile updated successfully"})
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleRegisterForTest exposes the POST handler for tests.
func (h *Handler) HandleRegisterForTest(w http.ResponseWriter, r *http.Request) {
	h.handleRegister(w, r)
}

// HandleLogoutForTest exposes the logout handler for tests.
func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogout(w, r)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Smart Portal",
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
