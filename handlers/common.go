package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/umakantv/go-utils/errs"
	"github.com/umakantv/go-utils/httpserver"
	logger "github.com/umakantv/go-utils/logger"
	"go.uber.org/zap"

	"taskhub-service/auth"
	"taskhub-service/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 50
)

// validate is shared across handlers; field names in error payloads follow
// the json tag so clients can map them back onto their forms.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// logRequest logs the request with route and auth details pulled from the
// httpserver context. Shared across all handlers.
func logRequest(ctx context.Context, level string, message string, fields ...zap.Field) {
	routeName := httpserver.GetRouteName(ctx)
	method := httpserver.GetRouteMethod(ctx)
	path := httpserver.GetRoutePath(ctx)
	authInfo := httpserver.GetRequestAuth(ctx)

	logMsg := time.Now().Format("2006-01-02 15:04:05") + " - " + routeName + " - " + method + " - " + path
	if authInfo != nil {
		logMsg += " - user:" + authInfo.Client
	}
	if message != "" {
		logMsg += " - " + message
	}

	allFields := append([]zap.Field{
		zap.String("route", routeName),
		zap.String("method", method),
		zap.String("path", path),
	}, fields...)

	switch level {
	case "info":
		logger.Info(logMsg, allFields...)
	case "error":
		logger.Error(logMsg, allFields...)
	case "debug":
		logger.Debug(logMsg, allFields...)
	}
}

// respond writes a JSON payload with the given status. A nil payload encodes
// as a literal null body, which is the contract for idempotent no-op results.
func respond(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// bindJSON decodes and validates a request body. The returned field map is
// non-nil when validation failed; err is non-nil for malformed JSON.
func bindJSON(r *http.Request, dst interface{}) (map[string]string, error) {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return nil, err
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fieldMessage(fe)
			}
			return fields, nil
		}
		return nil, err
	}
	return nil, nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	}
	return "is invalid"
}

// writeFieldErrors responds with a validation error plus per-field detail so
// clients can tell bad input apart from a missing session.
func writeFieldErrors(ctx context.Context, w http.ResponseWriter, fields map[string]string) {
	logRequest(ctx, "error", "Validation failed", zap.Any("fields", fields))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  errs.NewValidationError("Validation failed"),
		"fields": fields,
	})
}

// requireUser resolves the caller through the session resolver, writing the
// UNAUTHORIZED response itself when there is no valid session. This runs in
// addition to the route-level auth gate; the handler never trusts the edge
// heuristic.
func requireUser(ctx context.Context, w http.ResponseWriter, r *http.Request, rs *auth.Resolver) (models.User, bool) {
	user, err := rs.RequireUser(ctx, r)
	if err == auth.ErrNotAuthenticated {
		respond(w, http.StatusUnauthorized, errs.NewAuthenticationError("Not signed in"))
		return models.User{}, false
	}
	if err != nil {
		logRequest(ctx, "error", "Session resolution failed", zap.Error(err))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Server error"))
		return models.User{}, false
	}
	return user, true
}

// parsePagination reads limit/offset query params with clamping:
// limit defaults to 20 and caps at 50, offset defaults to 0 and floors at 0.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = defaultPageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}
	return limit, offset
}

// dashboardKey is the per-user cache key for dashboard stats. Mutating
// handlers delete it so counts never go stale across users' own requests.
func dashboardKey(userID int) string {
	return "dashboard:user:" + strconv.Itoa(userID)
}
