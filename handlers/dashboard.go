package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/umakantv/go-utils/cache"
	"github.com/umakantv/go-utils/errs"
	"go.uber.org/zap"

	"taskhub-service/auth"
	"taskhub-service/models"
)

// DashboardHandler serves the per-user aggregate counts. Task counts join
// through projects so the ownership predicate is part of the same statement
// as the aggregation.
type DashboardHandler struct {
	db       *sqlx.DB
	cache    cache.Cache
	resolver *auth.Resolver
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(db *sqlx.DB, c cache.Cache, resolver *auth.Resolver) *DashboardHandler {
	return &DashboardHandler{db: db, cache: c, resolver: resolver}
}

// Stats handles GET /api/dashboard/stats. Results are cached per user for a
// short window; mutating handlers drop the entry.
func (h *DashboardHandler) Stats(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(ctx, w, r, h.resolver)
	if !ok {
		return
	}

	if cached, err := h.cache.Get(dashboardKey(user.ID)); err == nil {
		if b, ok := cached.([]byte); ok {
			logRequest(ctx, "debug", "Serving dashboard from cache", zap.Int("user_id", user.ID))
			w.Header().Set("Content-Type", "application/json")
			w.Write(b)
			return
		}
	}

	stats := models.DashboardStats{
		Projects: map[string]int{},
		Tasks:    map[string]int{},
	}

	type statusCount struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}

	var projectCounts []statusCount
	err := h.db.SelectContext(ctx, &projectCounts,
		"SELECT status, COUNT(*) AS count FROM projects WHERE user_id = ? GROUP BY status", user.ID)
	if err != nil {
		logRequest(ctx, "error", "Failed to count projects", zap.Error(err), zap.Int("user_id", user.ID))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}
	for _, c := range projectCounts {
		stats.Projects[c.Status] = c.Count
	}

	var taskCounts []statusCount
	err = h.db.SelectContext(ctx, &taskCounts,
		"SELECT t.status AS status, COUNT(*) AS count FROM tasks t JOIN projects p ON p.id = t.project_id WHERE p.user_id = ? GROUP BY t.status",
		user.ID)
	if err != nil {
		logRequest(ctx, "error", "Failed to count tasks", zap.Error(err), zap.Int("user_id", user.ID))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}
	for _, c := range taskCounts {
		stats.Tasks[c.Status] = c.Count
	}

	response, _ := json.Marshal(stats)
	h.cache.Set(dashboardKey(user.ID), response, 30*time.Second)

	logRequest(ctx, "info", "Dashboard stats served", zap.Int("user_id", user.ID))
	w.Header().Set("Content-Type", "application/json")
	w.Write(response)
}
