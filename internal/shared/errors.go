package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials covers both unknown usernames and wrong
	// passwords so callers cannot probe which accounts exist.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateUsername indicates a registration collided with an
	// existing account.
	ErrDuplicateUsername = errors.New("username already taken")
	// ErrUnauthenticated indicates a missing, expired or tampered session.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrStoreUnavailable indicates a transient persistence failure.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage maps an internal error onto text that may be shown to
// an end user. Anything outside the known set becomes a generic failure
// so driver or infrastructure detail never leaks into a response.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username or password"
	case errors.Is(err, ErrDuplicateUsername):
		return "Username already exists"
	case errors.Is(err, ErrUnauthenticated):
		return "Please log in to continue"
	case errors.Is(err, ErrNotFound):
		return "Not found"
	default:
		return "Something went wrong, please try again"
	}
}
