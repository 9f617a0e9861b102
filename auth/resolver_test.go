package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/umakantv/go-utils/cache"
	"github.com/umakantv/go-utils/logger"

	"taskhub-service/config"
	"taskhub-service/database"
)

func TestMain(m *testing.M) {
	logger.Init(logger.LoggerConfig{
		CallerKey:  "file",
		TimeKey:    "timestamp",
		CallerSkip: 1,
	})
	os.Exit(m.Run())
}

func newTestResolver(t *testing.T) (*Resolver, *sqlx.DB) {
	t.Helper()

	dbConn, err := sqlx.Open("sqlite3", "file::memory:?_foreign_keys=ON")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	// A single connection keeps the in-memory database alive for the test.
	dbConn.SetMaxOpenConns(1)
	if err := database.ApplySchema(dbConn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	c, err := cache.New(cache.Config{Type: "memory"})
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}

	t.Cleanup(func() {
		dbConn.Close()
		c.Close()
	})

	return NewResolver(dbConn, c, config.SessionConfig{
		CookieName: "taskhub.session_token",
		TTL:        time.Hour,
	}), dbConn
}

func insertUser(t *testing.T, dbConn *sqlx.DB, email string) int {
	t.Helper()
	res, err := dbConn.Exec(
		"INSERT INTO users (name, email, password, role, created_at, updated_at) VALUES (?, ?, ?, 'user', ?, ?)",
		"Test User", email, "hash", time.Now(), time.Now())
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

func sessionRequest(token string) *http.Request {
	r := httptest.NewRequest("GET", "/api/me", nil)
	if token != "" {
		r.AddCookie(&http.Cookie{Name: "taskhub.session_token", Value: token})
	}
	return r
}

func TestSessionLifecycle(t *testing.T) {
	rs, dbConn := newTestResolver(t)
	ctx := context.Background()
	userID := insertUser(t, dbConn, "alice@example.com")

	session, err := rs.CreateSession(ctx, userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.ID == "" {
		t.Fatalf("expected a non-empty session token")
	}

	resolved, err := rs.Session(ctx, sessionRequest(session.ID))
	if err != nil {
		t.Fatalf("resolve session: %v", err)
	}
	if resolved == nil {
		t.Fatalf("expected session to resolve")
	}
	if resolved.User.ID != userID {
		t.Fatalf("expected user %d, got %d", userID, resolved.User.ID)
	}
	if resolved.Session.ID != session.ID {
		t.Fatalf("expected session %q, got %q", session.ID, resolved.Session.ID)
	}

	if err := rs.DestroySession(ctx, session.ID); err != nil {
		t.Fatalf("destroy session: %v", err)
	}
	resolved, err = rs.Session(ctx, sessionRequest(session.ID))
	if err != nil {
		t.Fatalf("resolve after destroy: %v", err)
	}
	if resolved != nil {
		t.Fatalf("expected destroyed session not to resolve")
	}
}

func TestSessionMissingOrUnknownCookie(t *testing.T) {
	rs, _ := newTestResolver(t)
	ctx := context.Background()

	resolved, err := rs.Session(ctx, sessionRequest(""))
	if err != nil || resolved != nil {
		t.Fatalf("expected nil, nil without a cookie, got %v, %v", resolved, err)
	}

	resolved, err = rs.Session(ctx, sessionRequest("no-such-token"))
	if err != nil || resolved != nil {
		t.Fatalf("expected nil, nil for an unknown token, got %v, %v", resolved, err)
	}

	if _, err := rs.RequireUser(ctx, sessionRequest("")); err != ErrNotAuthenticated {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	rs, dbConn := newTestResolver(t)
	ctx := context.Background()
	userID := insertUser(t, dbConn, "bob@example.com")

	// Insert an already-expired row directly so the cache never sees it.
	_, err := dbConn.Exec(
		"INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		"stale-token", userID, time.Now().Add(-time.Minute), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("insert expired session: %v", err)
	}

	resolved, err := rs.Session(ctx, sessionRequest("stale-token"))
	if err != nil {
		t.Fatalf("resolve expired session: %v", err)
	}
	if resolved != nil {
		t.Fatalf("expected expired session not to resolve")
	}

	// Expiry removes the row, not just the lookup result.
	var count int
	if err := dbConn.Get(&count, "SELECT COUNT(*) FROM sessions WHERE id = 'stale-token'"); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected expired session row to be deleted")
	}
}

func TestSessionFallsBackToDatabase(t *testing.T) {
	rs, dbConn := newTestResolver(t)
	ctx := context.Background()
	userID := insertUser(t, dbConn, "carol@example.com")

	session, err := rs.CreateSession(ctx, userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// Drop the cache entry; the resolver must still find the row.
	rs.cache.Delete(sessionKeyPrefix + session.ID)

	resolved, err := rs.Session(ctx, sessionRequest(session.ID))
	if err != nil {
		t.Fatalf("resolve session: %v", err)
	}
	if resolved == nil || resolved.User.ID != userID {
		t.Fatalf("expected session to resolve from the database")
	}

	// The fallback re-primes the cache.
	if _, ok := rs.sessionFromCache(session.ID); !ok {
		t.Fatalf("expected cache to be re-primed after database fallback")
	}
}

func TestRequestScopeMemoization(t *testing.T) {
	rs, dbConn := newTestResolver(t)
	userID := insertUser(t, dbConn, "dave@example.com")

	session, err := rs.CreateSession(context.Background(), userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	req := sessionRequest(session.ID)

	ctx := WithRequestScope(context.Background())
	first, err := rs.Session(ctx, req)
	if err != nil || first == nil {
		t.Fatalf("expected first resolve to succeed, got %v, %v", first, err)
	}

	// Yank the session out from under the scope; the memoized result must
	// survive for the remainder of the request.
	if err := rs.DestroySession(context.Background(), session.ID); err != nil {
		t.Fatalf("destroy session: %v", err)
	}

	second, err := rs.Session(ctx, req)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second == nil || second.User.ID != userID {
		t.Fatalf("expected memoized resolution within the same request scope")
	}

	// A fresh scope sees the store as it is now.
	fresh, err := rs.Session(WithRequestScope(context.Background()), req)
	if err != nil {
		t.Fatalf("fresh resolve: %v", err)
	}
	if fresh != nil {
		t.Fatalf("expected fresh scope to miss the destroyed session")
	}
}

func TestRevokeOtherSessions(t *testing.T) {
	rs, dbConn := newTestResolver(t)
	ctx := context.Background()
	userID := insertUser(t, dbConn, "erin@example.com")
	otherID := insertUser(t, dbConn, "frank@example.com")

	keep, err := rs.CreateSession(ctx, userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	drop1, _ := rs.CreateSession(ctx, userID)
	drop2, _ := rs.CreateSession(ctx, userID)
	unrelated, _ := rs.CreateSession(ctx, otherID)

	if err := rs.RevokeOtherSessions(ctx, userID, keep.ID); err != nil {
		t.Fatalf("revoke sessions: %v", err)
	}

	if resolved, _ := rs.Session(ctx, sessionRequest(keep.ID)); resolved == nil {
		t.Fatalf("expected kept session to survive")
	}
	for _, token := range []string{drop1.ID, drop2.ID} {
		if resolved, _ := rs.Session(ctx, sessionRequest(token)); resolved != nil {
			t.Fatalf("expected revoked session %q not to resolve", token)
		}
	}
	if resolved, _ := rs.Session(ctx, sessionRequest(unrelated.ID)); resolved == nil {
		t.Fatalf("expected other user's session to survive")
	}

	// Empty keepID revokes everything.
	if err := rs.RevokeOtherSessions(ctx, userID, ""); err != nil {
		t.Fatalf("revoke all sessions: %v", err)
	}
	if resolved, _ := rs.Session(ctx, sessionRequest(keep.ID)); resolved != nil {
		t.Fatalf("expected all sessions revoked with empty keepID")
	}
}

func TestSessionSurvivesDeletedUser(t *testing.T) {
	rs, dbConn := newTestResolver(t)
	ctx := context.Background()
	userID := insertUser(t, dbConn, "gone@example.com")

	session, err := rs.CreateSession(ctx, userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := dbConn.Exec("DELETE FROM users WHERE id = ?", userID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	resolved, err := rs.Session(ctx, sessionRequest(session.ID))
	if err != nil {
		t.Fatalf("resolve session: %v", err)
	}
	if resolved != nil {
		t.Fatalf("expected session of a deleted user not to resolve")
	}
}
