package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/umakantv/go-utils/cache"
	"github.com/umakantv/go-utils/errs"
	"go.uber.org/zap"

	"taskhub-service/auth"
	"taskhub-service/models"
)

// ProjectHandler enforces direct ownership: every query and mutation
// predicate includes the caller's user id. A lookup that matches nothing
// stays indistinguishable from a project owned by someone else.
type ProjectHandler struct {
	db       *sqlx.DB
	cache    cache.Cache
	resolver *auth.Resolver
}

// NewProjectHandler creates a new project handler.
func NewProjectHandler(db *sqlx.DB, c cache.Cache, resolver *auth.Resolver) *ProjectHandler {
	return &ProjectHandler{db: db, cache: c, resolver: resolver}
}

// List handles GET /api/projects - the caller's projects, newest first.
func (h *ProjectHandler) List(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(ctx, w, r, h.resolver)
	if !ok {
		return
	}
	limit, offset := parsePagination(r)

	projects := []models.Project{}
	err := h.db.SelectContext(ctx, &projects,
		"SELECT id, user_id, name, description, status, created_at, updated_at FROM projects WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		user.ID, limit, offset)
	if err != nil {
		logRequest(ctx, "error", "Failed to list projects", zap.Error(err), zap.Int("user_id", user.ID))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}

	logRequest(ctx, "info", "Projects listed", zap.Int("user_id", user.ID), zap.Int("count", len(projects)))
	respond(w, http.StatusOK, projects)
}

// GetByID handles GET /api/projects/{id} - the project plus its tasks, or
// 404 when the caller does not own it (whether or not it exists).
func (h *ProjectHandler) GetByID(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(ctx, w, r, h.resolver)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var project models.Project
	err := h.db.GetContext(ctx, &project,
		"SELECT id, user_id, name, description, status, created_at, updated_at FROM projects WHERE id = ? AND user_id = ?",
		id, user.ID)
	if err == sql.ErrNoRows {
		respond(w, http.StatusNotFound, errs.NewNotFoundError("Project not found"))
		return
	}
	if err != nil {
		logRequest(ctx, "error", "Failed to get project", zap.Error(err), zap.Int("project_id", id))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}

	tasks := []models.Task{}
	err = h.db.SelectContext(ctx, &tasks,
		"SELECT id, project_id, title, description, status, priority, due_date, created_at, updated_at FROM tasks WHERE project_id = ? ORDER BY created_at ASC, id ASC",
		project.ID)
	if err != nil {
		logRequest(ctx, "error", "Failed to load project tasks", zap.Error(err), zap.Int("project_id", id))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}

	respond(w, http.StatusOK, models.ProjectWithTasks{Project: project, Tasks: tasks})
}

// Create handles POST /api/projects - status defaults to "active".
func (h *ProjectHandler) Create(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(ctx, w, r, h.resolver)
	if !ok {
		return
	}

	var req models.CreateProjectRequest
	fields, err := bindJSON(r, &req)
	if err != nil {
		respond(w, http.StatusBadRequest, errs.NewValidationError("Invalid JSON"))
		return
	}
	if fields != nil {
		writeFieldErrors(ctx, w, fields)
		return
	}

	now := time.Now()
	result, err := h.db.ExecContext(ctx,
		"INSERT INTO projects (user_id, name, description, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		user.ID, req.Name, req.Description, models.ProjectStatusActive, now, now)
	if err != nil {
		logRequest(ctx, "error", "Failed to create project", zap.Error(err), zap.Int("user_id", user.ID))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to create project"))
		return
	}
	id, _ := result.LastInsertId()

	h.cache.Delete(dashboardKey(user.ID))
	logRequest(ctx, "info", "Project created", zap.Int("user_id", user.ID), zap.Int64("project_id", id))

	respond(w, http.StatusCreated, models.Project{
		ID:          int(id),
		UserID:      user.ID,
		Name:        req.Name,
		Description: req.Description,
		Status:      models.ProjectStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// Update handles PUT /api/projects/{id}. When the predicate matches no row
// (wrong owner or nonexistent id) the response is a JSON null: nothing to
// do, not a failure.
func (h *ProjectHandler) Update(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(ctx, w, r, h.resolver)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req models.UpdateProjectRequest
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
	if req.Description != nil {
		setParts = append(setParts, "description = ?")
		args = append(args, *req.Description)
	}
	if req.Status != nil {
		setParts = append(setParts, "status = ?")
		args = append(args, *req.Status)
	}
	if len(setParts) == 0 {
		respond(w, http.StatusBadRequest, errs.NewValidationError("No fields to update"))
		return
	}

	setParts = append(setParts, "updated_at = ?")
	args = append(args, time.Now(), id, user.ID)

	query := "UPDATE projects SET " + strings.Join(setParts, ", ") + " WHERE id = ? AND user_id = ?"
	result, err := h.db.ExecContext(ctx, query, args...)
	if err != nil {
		logRequest(ctx, "error", "Failed to update project", zap.Error(err), zap.Int("project_id", id))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to update project"))
		return
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		respond(w, http.StatusOK, nil)
		return
	}

	h.cache.Delete(dashboardKey(user.ID))

	var project models.Project
	if err := h.db.GetContext(ctx, &project,
		"SELECT id, user_id, name, description, status, created_at, updated_at FROM projects WHERE id = ?", id); err != nil {
		logRequest(ctx, "error", "Failed to reload project", zap.Error(err), zap.Int("project_id", id))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}

	logRequest(ctx, "info", "Project updated", zap.Int("user_id", user.ID), zap.Int("project_id", id))
	respond(w, http.StatusOK, project)
}

// Delete handles DELETE /api/projects/{id}. Deleting a project that is not
// yours or does not exist yields a JSON null, never an error - the two cases
// must stay indistinguishable.
func (h *ProjectHandler) Delete(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(ctx, w, r, h.resolver)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	result, err := h.db.ExecContext(ctx,
		"DELETE FROM projects WHERE id = ? AND user_id = ?", id, user.ID)
	if err != nil {
		logRequest(ctx, "error", "Failed to delete project", zap.Error(err), zap.Int("project_id", id))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to delete project"))
		return
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		respond(w, http.StatusOK, nil)
		return
	}

	h.cache.Delete(dashboardKey(user.ID))
	logRequest(ctx, "info", "Project deleted", zap.Int("user_id", user.ID), zap.Int("project_id", id))
	respond(w, http.StatusOK, map[string]string{"message": "Project deleted"})
}

// pathID parses the {id} path variable.
func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.Atoi(idStr)
	if err != nil {
		respond(w, http.StatusBadRequest, errs.NewValidationError("Invalid ID"))
		return 0, false
	}
	return id, true
}
