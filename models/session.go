package models

import "time"

// Session maps an opaque cookie token to a server-side record. The token
// itself is the primary key; nothing about the user is derivable from it.
// Invalidated on logout, expiry, and password change (other sessions only).
type Session struct {
	ID        string    `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
