package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/umakantv/go-utils/cache"
	"github.com/umakantv/go-utils/errs"
	"go.uber.org/zap"

	"taskhub-service/auth"
	"taskhub-service/models"
)

// TaskHandler enforces transitive ownership. A task row carries no user id,
// so every mutation is a two-step check: load the task, then re-query its
// parent project filtered by the caller's id. Both steps run on every call;
// ownership is never cached across calls.
type TaskHandler struct {
	db       *sqlx.DB
	cache    cache.Cache
	resolver *auth.Resolver
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(db *sqlx.DB, c cache.Cache, resolver *auth.Resolver) *TaskHandler {
	return &TaskHandler{db: db, cache: c, resolver: resolver}
}

// ownsProject re-checks that the project belongs to the user.
func (h *TaskHandler) ownsProject(ctx context.Context, projectID, userID int) (bool, error) {
	var one int
	err := h.db.GetContext(ctx, &one,
		"SELECT 1 FROM projects WHERE id = ? AND user_id = ?", projectID, userID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListByProject handles GET /api/projects/{id}/tasks. A project the caller
// does not own yields an empty list, same as a project with no tasks.
func (h *TaskHandler) ListByProject(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(ctx, w, r, h.resolver)
	if !ok {
		return
	}
	projectID, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, offset := parsePagination(r)

	tasks := []models.Task{}

	owns, err := h.ownsProject(ctx, projectID, user.ID)
	if err != nil {
		logRequest(ctx, "error", "Ownership check failed", zap.Error(err), zap.Int("project_id", projectID))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}
	if !owns {
		respond(w, http.StatusOK, tasks)
		return
	}

	err = h.db.SelectContext(ctx, &tasks,
		"SELECT id, project_id, title, description, status, priority, due_date, created_at, updated_at FROM tasks WHERE project_id = ? ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?",
		projectID, limit, offset)
	if err != nil {
		logRequest(ctx, "error", "Failed to list tasks", zap.Error(err), zap.Int("project_id", projectID))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}

	logRequest(ctx, "info", "Tasks listed", zap.Int("project_id", projectID), zap.Int("count", len(tasks)))
	respond(w, http.StatusOK, tasks)
}

// Create handles POST /api/projects/{id}/tasks. "Project not found" covers
// both a missing project and someone else's project.
func (h *TaskHandler) Create(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(ctx, w, r, h.resolver)
	if !ok {
		return
	}
	projectID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req models.CreateTaskRequest
	fields, err := bindJSON(r, &req)
	if err != nil {
		respond(w, http.StatusBadRequest, errs.NewValidationError("Invalid JSON"))
		return
	}
	if fields != nil {
		writeFieldErrors(ctx, w, fields)
		return
	}

	owns, err := h.ownsProject(ctx, projectID, user.ID)
	if err != nil {
		logRequest(ctx, "error", "Ownership check failed", zap.Error(err), zap.Int("project_id", projectID))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}
	if !owns {
		respond(w, http.StatusNotFound, errs.NewNotFoundError("Project not found"))
		return
	}

	priority := req.Priority
	if priority == "" {
		priority = models.TaskPriorityMedium
	}

	now := time.Now()
	result, err := h.db.ExecContext(ctx,
		"INSERT INTO tasks (project_id, title, description, status, priority, due_date, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		projectID, req.Title, req.Description, models.TaskStatusTodo, priority, req.DueDate, now, now)
	if err != nil {
		logRequest(ctx, "error", "Failed to create task", zap.Error(err), zap.Int("project_id", projectID))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to create task"))
		return
	}
	id, _ := result.LastInsertId()

	h.cache.Delete(dashboardKey(user.ID))
	logRequest(ctx, "info", "Task created", zap.Int("project_id", projectID), zap.Int64("task_id", id))

	respond(w, http.StatusCreated, models.Task{
		ID:          int(id),
		ProjectID:   projectID,
		Title:       req.Title,
		Description: req.Description,
		Status:      models.TaskStatusTodo,
		Priority:    priority,
		DueDate:     req.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// authorizeTask performs the two-step check and writes the error response
// itself on failure: "Task not found" when the task id matches nothing,
// "Not authorized" when the parent project is not the caller's.
func (h *TaskHandler) authorizeTask(ctx context.Context, w http.ResponseWriter, taskID, userID int) (models.Task, bool) {
	var task models.Task
	err := h.db.GetContext(ctx, &task,
		"SELECT id, project_id, title, description, status, priority, due_date, created_at, updated_at FROM tasks WHERE id = ?",
		taskID)
	if err == sql.ErrNoRows {
		respond(w, http.StatusNotFound, errs.NewNotFoundError("Task not found"))
		return models.Task{}, false
	}
	if err != nil {
		logRequest(ctx, "error", "Failed to load task", zap.Error(err), zap.Int("task_id", taskID))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return models.Task{}, false
	}

	owns, err := h.ownsProject(ctx, task.ProjectID, userID)
	if err != nil {
		logRequest(ctx, "error", "Ownership check failed", zap.Error(err), zap.Int("task_id", taskID))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return models.Task{}, false
	}
	if !owns {
		respond(w, http.StatusForbidden, errs.NewAuthenticationError("Not authorized"))
		return models.Task{}, false
	}

	return task, true
}

// Update handles PUT /api/tasks/{id} - partial update of an owned task.
func (h *TaskHandler) Update(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(ctx, w, r, h.resolver)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req models.UpdateTaskRequest
	fields, err := bindJSON(r, &req)
	if err != nil {
		respond(w, http.StatusBadRequest, errs.NewValidationError("Invalid JSON"))
		return
	}
	if fields != nil {
		writeFieldErrors(ctx, w, fields)
		return
	}

	task, ok := h.authorizeTask(ctx, w, id, user.ID)
	if !ok {
		return
	}

	title := task.Title
	description := task.Description
	status := task.Status
	priority := task.Priority
	dueDate := task.DueDate

	if req.Title != nil {
		title = *req.Title
	}
	if req.Description != nil {
		description = *req.Description
	}
	if req.Status != nil {
		status = *req.Status
	}
	if req.Priority != nil {
		priority = *req.Priority
	}
	if req.DueDate != nil {
		dueDate = req.DueDate
	}

	_, err = h.db.ExecContext(ctx,
		"UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?, due_date = ?, updated_at = ? WHERE id = ?",
		title, description, status, priority, dueDate, time.Now(), id)
	if err != nil {
		logRequest(ctx, "error", "Failed to update task", zap.Error(err), zap.Int("task_id", id))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to update task"))
		return
	}

	h.cache.Delete(dashboardKey(user.ID))
	h.respondReloaded(ctx, w, id)
}

// UpdateStatus handles PATCH /api/tasks/{id}/status - changes status and
// updated_at, nothing else.
func (h *TaskHandler) UpdateStatus(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(ctx, w, r, h.resolver)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req models.UpdateTaskStatusRequest
	fields, err := bindJSON(r, &req)
	if err != nil {
		respond(w, http.StatusBadRequest, errs.NewValidationError("Invalid JSON"))
		return
	}
	if fields != nil {
		writeFieldErrors(ctx, w, fields)
		return
	}

	if _, ok := h.authorizeTask(ctx, w, id, user.ID); !ok {
		return
	}

	_, err = h.db.ExecContext(ctx,
		"UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?",
		req.Status, time.Now(), id)
	if err != nil {
		logRequest(ctx, "error", "Failed to update task status", zap.Error(err), zap.Int("task_id", id))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to update task"))
		return
	}

	h.cache.Delete(dashboardKey(user.ID))
	h.respondReloaded(ctx, w, id)
}

// Delete handles DELETE /api/tasks/{id}.
func (h *TaskHandler) Delete(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(ctx, w, r, h.resolver)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if _, ok := h.authorizeTask(ctx, w, id, user.ID); !ok {
		return
	}

	if _, err := h.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id); err != nil {
		logRequest(ctx, "error", "Failed to delete task", zap.Error(err), zap.Int("task_id", id))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to delete task"))
		return
	}

	h.cache.Delete(dashboardKey(user.ID))
	logRequest(ctx, "info", "Task deleted", zap.Int("task_id", id))
	respond(w, http.StatusOK, map[string]string{"message": "Task deleted"})
}

func (h *TaskHandler) respondReloaded(ctx context.Context, w http.ResponseWriter, id int) {
	var task models.Task
	if err := h.db.GetContext(ctx, &task,
		"SELECT id, project_id, title, description, status, priority, due_date, created_at, updated_at FROM tasks WHERE id = ?",
		id); err != nil {
		logRequest(ctx, "error", "Failed to reload task", zap.Error(err), zap.Int("task_id", id))
		respond(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}
	respond(w, http.StatusOK, task)
}
