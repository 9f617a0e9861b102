package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/umakantv/go-utils/cache"
	"github.com/umakantv/go-utils/errs"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"taskhub-service/auth"
	"taskhub-service/mailer"
	"taskhub-service/models"
)

const (
	verifyKeyPrefix = "verify:"
	verifyTokenTTL  = 24 * time.Hour
	resetKeyPrefix  = "pwreset:"
	resetTokenTTL   = 1 * time.Hour
)

// AuthHandler owns signup, login, logout and the email-token flows. Email
// delivery is always dispatched async; session creation never waits on it.
type AuthHandler struct {
	db         *sqlx.DB
	cache      cache.Cache
	resolver   *auth.Resolver
	mailer     mailer.Sender
	bcryptCost int
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(db *sqlx.DB, c cache.Cache, resolver *auth.Resolver, sender mailer.Sender, bcryptCost int) *AuthHandler {
	return &AuthHandler{
		db:         db,
		cache:      c,
		resolver:   resolver,
		mailer:     sender,
		bcryptCost: bcryptCost,
	}
}

// Signup handles POST /api/auth/signup - creates the user, fires the
// verification email and signs the new user in.
func (h *AuthHandler) Signup(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	fields, err := bindJSON(r, &req)
	if err != nil {
		logRequest(ctx, "error", "Invalid signup body", zap.Error(err))
		respond(w, http.StatusBadRequest, errs.NewValidationError("Invalid JSON"))
		return
	}
	if fields != nil {
		writeFieldErrors(ctx, w, fields)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	logRequest(ctx, "info", "Signup request", zap.String("email", email))

	var count int
	if err := h.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users WHERE email = ?", email); err != nil {
		logRequest(ctx, "error", "Failed to check email uniqueness", zap.Error(err))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Server error"))
		return
	}
	if count > 0 {
		respond(w, http.StatusConflict, errs.NewValidationError("Email already in use"))
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.bcryptCost)
	if err != nil {
		logRequest(ctx, "error", "Password hashing failed", zap.Error(err))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to process password"))
		return
	}

	now := time.Now()
	result, err := h.db.ExecContext(ctx,
		"INSERT INTO users (name, email, email_verified, image, role, password, created_at, updated_at) VALUES (?, ?, 0, '', 'user', ?, ?, ?)",
		req.Name, email, string(hashed), now, now)
	if err != nil {
		logRequest(ctx, "error", "Failed to create user", zap.Error(err))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to create user"))
		return
	}
	id, _ := result.LastInsertId()
	userID := int(id)

	// Verification token lives in the cache; the email carries it.
	token := uuid.New().String()
	h.cache.Set(verifyKeyPrefix+token, map[string]interface{}{"user_id": userID}, verifyTokenTTL)
	mailer.Dispatch(h.mailer, email, "verify-email", map[string]interface{}{
		"name":  req.Name,
		"token": token,
	})

	session, err := h.resolver.CreateSession(ctx, userID)
	if err != nil {
		logRequest(ctx, "error", "Failed to create session after signup", zap.Error(err))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Server error"))
		return
	}
	h.resolver.SetCookie(w, session)

	logRequest(ctx, "info", "User signed up", zap.Int("user_id", userID))

	respond(w, http.StatusCreated, models.User{
		ID:        userID,
		Name:      req.Name,
		Email:     email,
		Role:      "user",
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Login handles POST /api/auth/login - verifies credentials and sets the
// session cookie.
func (h *AuthHandler) Login(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	fields, err := bindJSON(r, &req)
	if err != nil {
		logRequest(ctx, "error", "Invalid login body", zap.Error(err))
		respond(w, http.StatusBadRequest, errs.NewValidationError("Invalid JSON"))
		return
	}
	if fields != nil {
		writeFieldErrors(ctx, w, fields)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	err = h.db.GetContext(ctx, &user,
		"SELECT id, name, email, email_verified, image, role, password, created_at, updated_at FROM users WHERE email = ?", email)
	if err == sql.ErrNoRows {
		logRequest(ctx, "error", "Login for unknown email", zap.String("email", email))
		respond(w, http.StatusUnauthorized, errs.NewAuthenticationError("Invalid credentials"))
		return
	}
	if err != nil {
		logRequest(ctx, "error", "Login lookup failed", zap.Error(err))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Server error"))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		logRequest(ctx, "error", "Invalid password", zap.String("email", email))
		respond(w, http.StatusUnauthorized, errs.NewAuthenticationError("Invalid credentials"))
		return
	}

	session, err := h.resolver.CreateSession(ctx, user.ID)
	if err != nil {
		logRequest(ctx, "error", "Failed to create session", zap.Error(err))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Server error"))
		return
	}
	h.resolver.SetCookie(w, session)

	logRequest(ctx, "info", "Login successful", zap.Int("user_id", user.ID))

	respond(w, http.StatusOK, map[string]interface{}{
		"message": "Logged in",
		"user":    user,
	})
}

// Logout handles POST /api/auth/logout - destroys the session and clears
// the cookie. Logging out without a session is fine.
func (h *AuthHandler) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.resolver.CookieName()); err == nil && cookie.Value != "" {
		if err := h.resolver.DestroySession(ctx, cookie.Value); err != nil {
			logRequest(ctx, "error", "Failed to destroy session", zap.Error(err))
		}
	}
	h.resolver.ClearCookie(w)
	respond(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// VerifyEmail handles POST /api/auth/verify-email - marks the account
// verified when the emailed token checks out.
func (h *AuthHandler) VerifyEmail(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req models.VerifyEmailRequest
	fields, err := bindJSON(r, &req)
	if err != nil {
		respond(w, http.StatusBadRequest, errs.NewValidationError("Invalid JSON"))
		return
	}
	if fields != nil {
		writeFieldErrors(ctx, w, fields)
		return
	}

	userID, ok := h.tokenUserID(verifyKeyPrefix + req.Token)
	if !ok {
		respond(w, http.StatusBadRequest, errs.NewValidationError("Invalid or expired token"))
		return
	}

	if _, err := h.db.ExecContext(ctx,
		"UPDATE users SET email_verified = 1, updated_at = ? WHERE id = ?", time.Now(), userID); err != nil {
		logRequest(ctx, "error", "Failed to mark email verified", zap.Error(err))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Server error"))
		return
	}
	h.cache.Delete(verifyKeyPrefix + req.Token)

	logRequest(ctx, "info", "Email verified", zap.Int("user_id", userID))
	respond(w, http.StatusOK, map[string]string{"message": "Email verified"})
}

// ForgotPassword handles POST /api/auth/forgot-password. The response is the
// same whether or not the account exists, so the endpoint cannot be used to
// probe for emails.
func (h *AuthHandler) ForgotPassword(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req models.ForgotPasswordRequest
	fields, err := bindJSON(r, &req)
	if err != nil {
		respond(w, http.StatusBadRequest, errs.NewValidationError("Invalid JSON"))
		return
	}
	if fields != nil {
		writeFieldErrors(ctx, w, fields)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	err = h.db.GetContext(ctx, &user, "SELECT id, name, email FROM users WHERE email = ?", email)
	if err == nil {
		token := uuid.New().String()
		h.cache.Set(resetKeyPrefix+token, map[string]interface{}{"user_id": user.ID}, resetTokenTTL)
		mailer.Dispatch(h.mailer, user.Email, "reset-password", map[string]interface{}{
			"name":  user.Name,
			"token": token,
		})
	} else if err != sql.ErrNoRows {
		logRequest(ctx, "error", "Forgot-password lookup failed", zap.Error(err))
	}

	respond(w, http.StatusOK, map[string]string{
		"message": "If that account exists, a reset email has been sent",
	})
}

// ResetPassword handles POST /api/auth/reset-password - sets a new password
// from an emailed token and revokes every session of the account.
func (h *AuthHandler) ResetPassword(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordRequest
	fields, err := bindJSON(r, &req)
	if err != nil {
		respond(w, http.StatusBadRequest, errs.NewValidationError("Invalid JSON"))
		return
	}
	if fields != nil {
		writeFieldErrors(ctx, w, fields)
		return
	}

	userID, ok := h.tokenUserID(resetKeyPrefix + req.Token)
	if !ok {
		respond(w, http.StatusBadRequest, errs.NewValidationError("Invalid or expired token"))
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.bcryptCost)
	if err != nil {
		logRequest(ctx, "error", "Password hashing failed", zap.Error(err))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to process password"))
		return
	}

	if _, err := h.db.ExecContext(ctx,
		"UPDATE users SET password = ?, updated_at = ? WHERE id = ?", string(hashed), time.Now(), userID); err != nil {
		logRequest(ctx, "error", "Failed to reset password", zap.Error(err))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Server error"))
		return
	}

	// The reset proves the old cookie holder may not be the owner anymore:
	// kill everything.
	if err := h.resolver.RevokeOtherSessions(ctx, userID, ""); err != nil {
		logRequest(ctx, "error", "Failed to revoke sessions after reset", zap.Error(err))
	}
	h.cache.Delete(resetKeyPrefix + req.Token)

	logRequest(ctx, "info", "Password reset", zap.Int("user_id", userID))
	respond(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

// tokenUserID reads a user id out of a cached token entry, tolerating the
// serialized forms different cache backends hand back.
func (h *AuthHandler) tokenUserID(key string) (int, bool) {
	raw, err := h.cache.Get(key)
	if err != nil {
		return 0, false
	}

	var data map[string]interface{}
	switch v := raw.(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &data); err != nil {
			return 0, false
		}
	case []byte:
		if err := json.Unmarshal(v, &data); err != nil {
			return 0, false
		}
	case map[string]interface{}:
		data = v
	default:
		return 0, false
	}

	switch uid := data["user_id"].(type) {
	case float64:
		return int(uid), true
	case int:
		return uid, true
	case int64:
		return int(uid), true
	case json.Number:
		n, err := uid.Int64()
		return int(n), err == nil
	}
	return 0, false
}
