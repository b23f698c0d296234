package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/smartportal/smartportal/internal/shared"
)

// Gate is the single enforcement point for protected routes. Every
// protected endpoint mounts behind it; handlers read the identity from
// the context and never inspect session fields themselves.
type Gate struct {
	Logger *slog.Logger
}

const sessionUsernameKey = "username"

// RequirePage guards server-rendered routes, redirecting anonymous
// visitors to the login page.
func (g Gate) RequirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := g.resolve(r)
		if !ok {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

// RequireAPI guards JSON routes with a 401 body matching the transport
// contract.
func (g Gate) RequireAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := g.resolve(r)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "Not authenticated"})
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

// resolve re-validates the request session. Missing, cleared, expired and
// tampered sessions are all just "not authenticated"; expiry was already
// checked against the wall clock when the session middleware loaded it.
func (g Gate) resolve(r *http.Request) (Identity, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || !sess.Authenticated() {
		return Identity{}, false
	}
	userID, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil || userID <= 0 {
		if g.Logger != nil {
			g.Logger.Warn("session carries malformed user id", slog.String("session", sess.ID))
		}
		return Identity{}, false
	}
	return Identity{
		UserID:        userID,
		Username:      sess.Get(sessionUsernameKey),
		LoginSequence: sess.LoginSequence(),
		SessionID:     sess.ID,
	}, true
}
