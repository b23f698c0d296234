package activity

import "time"

// Kind enumerates the security-relevant event types the portal records.
type Kind string

const (
	KindLoginSuccess  Kind = "login_success"
	KindLoginFailure  Kind = "login_failure"
	KindRegistration  Kind = "registration"
	KindLogout        Kind = "logout"
	KindProfileUpdate Kind = "profile_update"
	KindCaptureUpload Kind = "capture_upload"
)

// Entry is one immutable audit record. UserID 0 is the sentinel for an
// unauthenticated or failed actor.
type Entry struct {
	At        time.Time `json:"timestamp"`
	UserID    int64     `json:"user_id"`
	Kind      Kind      `json:"activity"`
	Detail    string    `json:"details"`
	IP        string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
}
