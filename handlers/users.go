package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/umakantv/go-utils/cache"
	"github.com/umakantv/go-utils/errs"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"taskhub-service/auth"
	"taskhub-service/mailer"
	"taskhub-service/models"
)

// UserHandler serves the current user's profile plus the public profile
// subset of any user.
type UserHandler struct {
	db         *sqlx.DB
	cache      cache.Cache
	resolver   *auth.Resolver
	mailer     mailer.Sender
	bcryptCost int
}

// NewUserHandler creates a new user handler.
func NewUserHandler(db *sqlx.DB, c cache.Cache, resolver *auth.Resolver, sender mailer.Sender, bcryptCost int) *UserHandler {
	return &UserHandler{
		db:         db,
		cache:      c,
		resolver:   resolver,
		mailer:     sender,
		bcryptCost: bcryptCost,
	}
}

func publicUserKey(id string) string {
	return "user:public:" + id
}

// Me handles GET /api/me - returns the session's user.
func (h *UserHandler) Me(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(ctx, w, r, h.resolver)
	if !ok {
		return
	}
	logRequest(ctx, "info", "Me retrieved", zap.Int("user_id", user.ID))
	respond(w, http.StatusOK, user)
}

// GetByID handles GET /api/users/{id} - the public profile subset
// {id, name, image}. This is the only cross-user read in the service.
func (h *UserHandler) GetByID(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.Atoi(idStr)
	if err != nil {
		respond(w, http.StatusBadRequest, errs.NewValidationError("Invalid user ID"))
		return
	}

	// Public subset only, safe to cache.
	if cached, err := h.cache.Get(publicUserKey(idStr)); err == nil {
		if b, ok := cached.([]byte); ok {
			logRequest(ctx, "debug", "Serving public profile from cache", zap.Int("user_id", id))
			w.Header().Set("Content-Type", "application/json")
			w.Write(b)
			return
		}
	}

	var user models.PublicUser
	err = h.db.QueryRowContext(ctx, "SELECT id, name, image FROM users WHERE id = ?", id).
		Scan(&user.ID, &user.Name, &user.Image)
	if err == sql.ErrNoRows {
		respond(w, http.StatusNotFound, errs.NewNotFoundError("User not found"))
		return
	}
	if err != nil {
		logRequest(ctx, "error", "Failed to query user", zap.Error(err), zap.Int("user_id", id))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}

	response, _ := json.Marshal(user)
	h.cache.Set(publicUserKey(idStr), response, 10*time.Minute)

	w.Header().Set("Content-Type", "application/json")
	w.Write(response)
}

// UpdateProfile handles PUT /api/me - updates the caller's own name/image.
func (h *UserHandler) UpdateProfile(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(ctx, w, r, h.resolver)
	if !ok {
		return
	}

	var req models.UpdateProfileRequest
	fields, err := bindJSON(r, &req)
	if err != nil {
		respond(w, http.StatusBadRequest, errs.NewValidationError("Invalid JSON"))
		return
	}
	if fields != nil {
		writeFieldErrors(ctx, w, fields)
		return
	}

	setParts := []string{}
	args := []interface{}{}
	if req.Name != nil {
		setParts = append(setParts, "name = ?")
		args = append(args, *req.Name)
	}
	if req.Image != nil {
		setParts = append(setParts, "image = ?")
		args = append(args, *req.Image)
	}
	if len(setParts) == 0 {
		respond(w, http.StatusBadRequest, errs.NewValidationError("No fields to update"))
		return
	}

	setParts = append(setParts, "updated_at = ?")
	args = append(args, time.Now(), user.ID)

	query := "UPDATE users SET " + strings.Join(setParts, ", ") + " WHERE id = ?"
	if _, err := h.db.ExecContext(ctx, query, args...); err != nil {
		logRequest(ctx, "error", "Failed to update profile", zap.Error(err), zap.Int("user_id", user.ID))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to update profile"))
		return
	}

	h.cache.Delete(publicUserKey(strconv.Itoa(user.ID)))

	var updated models.User
	if err := h.db.GetContext(ctx, &updated,
		"SELECT id, name, email, email_verified, image, role, password, created_at, updated_at FROM users WHERE id = ?",
		user.ID); err != nil {
		logRequest(ctx, "error", "Failed to reload profile", zap.Error(err), zap.Int("user_id", user.ID))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Server error"))
		return
	}

	logRequest(ctx, "info", "Profile updated", zap.Int("user_id", user.ID))
	respond(w, http.StatusOK, updated)
}

// ChangePassword handles PUT /api/me/password - verifies the current
// password, stores the new hash and revokes the caller's other sessions.
func (h *UserHandler) ChangePassword(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	resolved, err := h.resolver.Session(ctx, r)
	if err != nil {
		logRequest(ctx, "error", "Session resolution failed", zap.Error(err))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Server error"))
		return
	}
	if resolved == nil {
		respond(w, http.StatusUnauthorized, errs.NewAuthenticationError("Not signed in"))
		return
	}
	user := resolved.User

	var req models.ChangePasswordRequest
	fields, err := bindJSON(r, &req)
	if err != nil {
		respond(w, http.StatusBadRequest, errs.NewValidationError("Invalid JSON"))
		return
	}
	if fields != nil {
		writeFieldErrors(ctx, w, fields)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		respond(w, http.StatusUnauthorized, errs.NewAuthenticationError("Current password is incorrect"))
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), h.bcryptCost)
	if err != nil {
		logRequest(ctx, "error", "Password hashing failed", zap.Error(err))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to process password"))
		return
	}

	if _, err := h.db.ExecContext(ctx,
		"UPDATE users SET password = ?, updated_at = ? WHERE id = ?",
		string(hashed), time.Now(), user.ID); err != nil {
		logRequest(ctx, "error", "Failed to change password", zap.Error(err), zap.Int("user_id", user.ID))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Server error"))
		return
	}

	// The session doing the change survives; everything else dies.
	if err := h.resolver.RevokeOtherSessions(ctx, user.ID, resolved.Session.ID); err != nil {
		logRequest(ctx, "error", "Failed to revoke other sessions", zap.Error(err), zap.Int("user_id", user.ID))
	}

	mailer.Dispatch(h.mailer, user.Email, "password-changed", map[string]interface{}{
		"name": user.Name,
	})

	logRequest(ctx, "info", "Password changed", zap.Int("user_id", user.ID))
	respond(w, http.StatusOK, map[string]string{"message": "Password updated"})
}
