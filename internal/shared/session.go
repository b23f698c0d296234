package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FlashMessage represents a one-time notification stored in session.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const (
	// DefaultSessionTokenBytes is the identifier width used when none is
	// configured.
	DefaultSessionTokenBytes = 32
	// MinSessionTokenBytes is the smallest identifier width accepted; below
	// this the manager falls back to the default.
	MinSessionTokenBytes = 16
)

// SessionManager orchestrates cookie based sessions backed by Redis. The
// cookie carries only the random session identifier; all session state
// lives server side so a cleared token can never be honored again.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	tokenBytes int
	secure     bool
	now        func() time.Time
}

// Session holds per-request session data.
type Session struct {
	ID        string
	values    map[string]string
	userID    string
	loginSeq  int64
	issuedAt  time.Time
	expiresAt time.Time
	flashes   []FlashMessage
	staleID   string
	isNew     bool
	dirty     bool
	destroyed bool
}

type sessionPayload struct {
	Values    map[string]string `json:"values"`
	UserID    string            `json:"user_id"`
	LoginSeq  int64             `json:"login_seq"`
	IssuedAt  time.Time         `json:"issued_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Flashes   []FlashMessage    `json:"flashes"`
}

// NewSessionManager constructs a SessionManager. Lifetime, cookie name and
// identifier width are fixed at construction; there is no package-level
// state. Widths below MinSessionTokenBytes fall back to the default.
func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration, tokenBytes int, secure bool) *SessionManager {
	if tokenBytes < MinSessionTokenBytes {
		tokenBytes = DefaultSessionTokenBytes
	}
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		tokenBytes: tokenBytes,
		secure:     secure,
		now:        time.Now,
	}
}

// Load resolves the request's session. Unknown, malformed, cleared and
// expired tokens all come back as a fresh anonymous session so a caller
// cannot tell which case occurred.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		// Corrupt record: fail closed, never surface why.
		return sm.newSession(), nil
	}

	// Expiry is checked lazily against the wall clock; the Redis TTL is
	// only a backstop that garbage-collects abandoned records.
	if stored.UserID != "" && !sm.now().Before(stored.ExpiresAt) {
		_ = sm.client.Del(ctx, sm.redisKey(cookie.Value)).Err()
		return sm.newSession(), nil
	}

	sess := sm.newSession()
	sess.ID = cookie.Value
	sess.values = stored.Values
	sess.userID = stored.UserID
	sess.loginSeq = stored.LoginSeq
	sess.issuedAt = stored.IssuedAt
	sess.expiresAt = stored.ExpiresAt
	sess.flashes = stored.Flashes
	sess.isNew = false
	sess.dirty = false
	return sess, nil
}

// Issue binds the session to an authenticated identity. The identifier is
// rotated so a pre-login token never survives authentication; the old Redis
// record is deleted at commit and the CSRF token is dropped so the next
// render mints a fresh one. Issued-at is stamped now and expiry is
// issued-at plus the configured lifetime. The login sequence is the
// caller's post-increment login counter.
func (sm *SessionManager) Issue(sess *Session, userID string, loginSeq int64) {
	if sess == nil {
		return
	}
	if !sess.isNew {
		sess.staleID = sess.ID
	}
	now := sm.now()
	sess.ID = sm.newSessionID()
	sess.userID = userID
	sess.loginSeq = loginSeq
	sess.issuedAt = now
	sess.expiresAt = now.Add(sm.ttl)
	delete(sess.values, CSRFSessionKey)
	sess.isNew = true
	sess.dirty = true
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteStrictMode,
		})
		return nil
	}

	if sess.staleID != "" && sess.staleID != sess.ID {
		if err := sm.client.Del(ctx, sm.redisKey(sess.staleID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		sess.staleID = ""
	}

	if sess.dirty || sess.isNew {
		payload := sessionPayload{
			Values:    sess.values,
			UserID:    sess.userID,
			LoginSeq:  sess.loginSeq,
			IssuedAt:  sess.issuedAt,
			ExpiresAt: sess.expiresAt,
			Flashes:   sess.flashes,
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if err := sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.recordTTL(sess)).Err(); err != nil {
			return err
		}
		sess.dirty = false
	}

	cookie := &http.Cookie{
		Name:     sm.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
	}
	if sess.userID != "" {
		cookie.Expires = sess.expiresAt
	} else {
		cookie.Expires = sm.now().Add(sm.ttl)
	}
	http.SetCookie(w, cookie)
	return nil
}

// Destroy marks the session for deletion. The Redis record is removed at
// commit time; subsequent loads of the same token are permanently invalid.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// recordTTL bounds the Redis TTL to the session's remaining lifetime so a
// re-save never stretches an issued session past its absolute expiry.
func (sm *SessionManager) recordTTL(sess *Session) time.Duration {
	if sess.userID == "" || sess.expiresAt.IsZero() {
		return sm.ttl
	}
	remaining := sess.expiresAt.Sub(sm.now())
	if remaining <= 0 {
		return time.Second
	}
	return remaining
}

// Session helpers

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if s.values == nil {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// User returns the authenticated user ID, or "" for anonymous sessions.
func (s *Session) User() string {
	return s.userID
}

// LoginSequence returns the login counter captured at issuance.
func (s *Session) LoginSequence() int64 {
	return s.loginSeq
}

// IssuedAt returns the session issuance timestamp.
func (s *Session) IssuedAt() time.Time {
	return s.issuedAt
}

// ExpiresAt returns the absolute session expiry.
func (s *Session) ExpiresAt() time.Time {
	return s.expiresAt
}

// Authenticated reports whether the session is bound to a user.
func (s *Session) Authenticated() bool {
	return s != nil && s.userID != "" && !s.destroyed
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(msg FlashMessage) {
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// PopFlash retrieves and clears the oldest flash message.
func (s *Session) PopFlash() *FlashMessage {
	if len(s.flashes) == 0 {
		return nil
	}
	msg := s.flashes[0]
	s.flashes = s.flashes[1:]
	s.dirty = true
	return &msg
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:     sm.newSessionID(),
		values: make(map[string]string),
		isNew:  true,
		dirty:  true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}

// newSessionID returns an unguessable opaque token of the configured width
// from the system CSPRNG, with a UUIDv4 fallback.
func (sm *SessionManager) newSessionID() string {
	b := make([]byte, sm.tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
