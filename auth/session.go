package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"taskhub-service/models"
)

// CreateSession issues a fresh opaque token for the user, persists it and
// primes the cache. The returned session's ID is the cookie value.
func (rs *Resolver) CreateSession(ctx context.Context, userID int) (models.Session, error) {
	now := time.Now()
	session := models.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		ExpiresAt: now.Add(rs.ttl),
		CreatedAt: now,
	}

	_, err := rs.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		session.ID, session.UserID, session.ExpiresAt, session.CreatedAt)
	if err != nil {
		return models.Session{}, fmt.Errorf("create session: %w", err)
	}

	rs.prime(session)
	return session, nil
}

// DestroySession removes a session from both the table and the cache.
// Destroying an already-gone session is not an error.
func (rs *Resolver) DestroySession(ctx context.Context, id string) error {
	rs.cache.Delete(sessionKeyPrefix + id)
	if _, err := rs.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// RevokeOtherSessions invalidates every session of the user except keepID.
// Password changes call this so stolen cookies die with the old password.
// Pass an empty keepID to revoke everything (password reset).
func (rs *Resolver) RevokeOtherSessions(ctx context.Context, userID int, keepID string) error {
	var ids []string
	err := rs.db.SelectContext(ctx, &ids,
		"SELECT id FROM sessions WHERE user_id = ? AND id != ?", userID, keepID)
	if err != nil {
		return fmt.Errorf("list sessions for revoke: %w", err)
	}

	for _, id := range ids {
		rs.cache.Delete(sessionKeyPrefix + id)
	}

	_, err = rs.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE user_id = ? AND id != ?", userID, keepID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// SetCookie attaches the session token as an httpOnly cookie.
func (rs *Resolver) SetCookie(w http.ResponseWriter, session models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     rs.cookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   false, // true behind HTTPS
		Expires:  session.ExpiresAt,
	})
}

// ClearCookie expires the session cookie on the client.
func (rs *Resolver) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     rs.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
