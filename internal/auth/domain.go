package auth

import "time"

// User represents a portal account. PasswordHash is the only credential
// material ever stored; the plaintext never leaves the login path.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	LoginCount   int64
	LastLogin    time.Time
}
