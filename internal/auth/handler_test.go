package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/smartportal/smartportal/internal/auth"
	"github.com/smartportal/smartportal/internal/shared"
	"github.com/smartportal/smartportal/internal/view"
	_ "github.com/smartportal/smartportal/internal/testing/guard"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", time.Hour, 32, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	service := auth.NewService(repo, &capturingRecorder{})
	handler := auth.NewHandler(discardLogger(), service, templates, sessionManager, csrfManager)
	return handler, sessionManager
}

func withSession(t *testing.T, sm *shared.SessionManager, req *http.Request) (*http.Request, *shared.Session) {
	t.Helper()
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

func TestLoginPage(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, newMemoryRepo())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req, sess := withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.ShowLoginForTest(res, req)
	if err := sessionManager.Commit(req.Context(), res, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "<form") {
		t.Fatalf("expected login form in body")
	}
}

func TestLoginEmptyFields(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, newMemoryRepo())

	postData := url.Values{}
	postData.Set("username", "alice")
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(postData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req, _ = withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Please fill in all fields") {
		t.Fatalf("expected empty-field message in response")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := newMemoryRepo()
	seedUser(t, repo, "alice", "correctpass1")
	handler, sessionManager := newAuthHandler(t, repo)

	postData := url.Values{}
	postData.Set("username", "alice")
	postData.Set("password", "wrongpass")
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(postData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req, _ = withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Invalid username or password") {
		t.Fatalf("expected error message in response")
	}
}

func TestLoginSuccessIssuesSession(t *testing.T) {
	repo := newMemoryRepo()
	seedUser(t, repo, "alice", "correctpass1")
	handler, sessionManager := newAuthHandler(t, repo)

	postData := url.Values{}
	postData.Set("username", "alice")
	postData.Set("password", "correctpass1")
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(postData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req, sess := withSession(t, sessionManager, req)
	anonymousID := sess.ID

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)
	if err := sessionManager.Commit(req.Context(), res, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/dashboard" {
		t.Fatalf("redirect = %q, want /dashboard", loc)
	}
	if !sess.Authenticated() {
		t.Fatalf("session must be authenticated after login")
	}
	if sess.ID == anonymousID {
		t.Fatalf("session identifier must rotate on login")
	}
	if sess.Get("username") != "alice" {
		t.Fatalf("session username = %q", sess.Get("username"))
	}
	if sess.LoginSequence() != 1 {
		t.Fatalf("login sequence = %d, want 1", sess.LoginSequence())
	}
}

func TestRegisterRejectsShortUsername(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, newMemoryRepo())

	postData := url.Values{}
	postData.Set("username", "al")
	postData.Set("password", "secretpass1")
	postData.Set("confirm_password", "secretpass1")
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(postData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req, _ = withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.HandleRegisterForTest(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Username must be at least 3 characters long") {
		t.Fatalf("expected validation message in response")
	}
}

func TestLogoutRedirectsAnonymousVisitor(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, newMemoryRepo())

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req, sess := withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.HandleLogoutForTest(res, req)
	if err := sessionManager.Commit(req.Context(), res, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/" {
		t.Fatalf("redirect = %q, want /", loc)
	}
}

func seedUser(t *testing.T, repo *memoryRepo, username, password string) {
	t.Helper()
	hashed, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, err := repo.CreateUser(context.Background(), username, "", hashed); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}
