package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/umakantv/go-utils/cache"
	"github.com/umakantv/go-utils/logger"
	"go.uber.org/zap"

	"taskhub-service/config"
	"taskhub-service/models"
)

// sessionKeyPrefix namespaces session entries in the cache.
const sessionKeyPrefix = "session:"

// ErrNotAuthenticated is returned by RequireUser when the request carries no
// valid session.
var ErrNotAuthenticated = errors.New("not authenticated")

// Resolved pairs a validated session record with its user.
type Resolved struct {
	Session models.Session
	User    models.User
}

// Resolver is the authoritative session layer. The edge middleware only
// checks that a cookie exists; everything that actually trusts the caller's
// identity goes through here. Lookups hit the cache first and fall back to
// the sessions table, re-priming the cache on the way out.
type Resolver struct {
	db         *sqlx.DB
	cache      cache.Cache
	cookieName string
	ttl        time.Duration
}

// NewResolver wires the resolver to the shared database and cache handles.
func NewResolver(db *sqlx.DB, c cache.Cache, cfg config.SessionConfig) *Resolver {
	return &Resolver{
		db:         db,
		cache:      c,
		cookieName: cfg.CookieName,
		ttl:        cfg.TTL,
	}
}

// CookieName exposes the configured session cookie name for the middleware
// and handlers that set or clear it.
func (rs *Resolver) CookieName() string {
	return rs.cookieName
}

type scopeKey struct{}

type requestScope struct {
	done     bool
	resolved *Resolved
}

// WithRequestScope attaches a per-request memo so that repeated Session calls
// within one request resolve against the store only once. The server wraps
// every handler with this; tests can do the same.
func WithRequestScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, &requestScope{})
}

// Session validates the request's session cookie against the store and
// returns the session plus user, or nil when the request is unauthenticated.
// The nil result is not an error: pages redirect, handlers reject.
func (rs *Resolver) Session(ctx context.Context, r *http.Request) (*Resolved, error) {
	scope, _ := ctx.Value(scopeKey{}).(*requestScope)
	if scope != nil && scope.done {
		return scope.resolved, nil
	}

	resolved, err := rs.lookup(ctx, r)
	if err != nil {
		return nil, err
	}
	if scope != nil {
		scope.done = true
		scope.resolved = resolved
	}
	return resolved, nil
}

// CurrentUser derives the user from Session, or nil.
func (rs *Resolver) CurrentUser(ctx context.Context, r *http.Request) (*models.User, error) {
	resolved, err := rs.Session(ctx, r)
	if err != nil || resolved == nil {
		return nil, err
	}
	return &resolved.User, nil
}

// RequireUser is for call sites that cannot proceed without identity. It
// returns ErrNotAuthenticated instead of a nil user.
func (rs *Resolver) RequireUser(ctx context.Context, r *http.Request) (models.User, error) {
	resolved, err := rs.Session(ctx, r)
	if err != nil {
		return models.User{}, err
	}
	if resolved == nil {
		return models.User{}, ErrNotAuthenticated
	}
	return resolved.User, nil
}

func (rs *Resolver) lookup(ctx context.Context, r *http.Request) (*Resolved, error) {
	cookie, err := r.Cookie(rs.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}
	token := cookie.Value

	session, ok := rs.sessionFromCache(token)
	if !ok {
		session, err = rs.sessionFromDB(ctx, token)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, nil
		}
		rs.prime(*session)
	}

	if session.Expired(time.Now()) {
		// Clean up eagerly so the row does not linger until the next boot.
		_ = rs.DestroySession(ctx, token)
		return nil, nil
	}

	var user models.User
	err = rs.db.GetContext(ctx, &user,
		"SELECT id, name, email, email_verified, image, role, password, created_at, updated_at FROM users WHERE id = ?",
		session.UserID)
	if err == sql.ErrNoRows {
		// User deleted out from under the session.
		_ = rs.DestroySession(ctx, token)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session user: %w", err)
	}

	return &Resolved{Session: *session, User: user}, nil
}

// sessionFromCache decodes a cached session entry. The cache returns either
// the original map or a JSON string depending on backend, so both are
// handled.
func (rs *Resolver) sessionFromCache(token string) (*models.Session, bool) {
	raw, err := rs.cache.Get(sessionKeyPrefix + token)
	if err != nil {
		return nil, false
	}

	var data map[string]interface{}
	switch v := raw.(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &data); err != nil {
			return nil, false
		}
	case []byte:
		if err := json.Unmarshal(v, &data); err != nil {
			return nil, false
		}
	case map[string]interface{}:
		data = v
	default:
		return nil, false
	}

	userID, ok := numberField(data, "user_id")
	if !ok {
		return nil, false
	}
	expiresUnix, ok := numberField(data, "expires_at")
	if !ok {
		return nil, false
	}

	return &models.Session{
		ID:        token,
		UserID:    int(userID),
		ExpiresAt: time.Unix(expiresUnix, 0),
	}, true
}

func (rs *Resolver) sessionFromDB(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	err := rs.db.GetContext(ctx, &session,
		"SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = ?", token)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &session, nil
}

// prime writes the session entry back to the cache with the remaining TTL.
func (rs *Resolver) prime(session models.Session) {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return
	}
	err := rs.cache.Set(sessionKeyPrefix+session.ID, map[string]interface{}{
		"user_id":    session.UserID,
		"expires_at": session.ExpiresAt.Unix(),
	}, ttl)
	if err != nil {
		logger.Error("Failed to prime session cache", zap.Error(err))
	}
}

// numberField tolerates the numeric types the cache round-trip can produce.
func numberField(data map[string]interface{}, key string) (int64, bool) {
	switch v := data[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}
