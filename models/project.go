package models

import "time"

// Project statuses. Free-form lifecycle, no transition rules.
const (
	ProjectStatusActive    = "active"
	ProjectStatusArchived  = "archived"
	ProjectStatusCompleted = "completed"
)

// Project is exclusively owned by one user; every query against it must
// carry the owner's id in the predicate.
type Project struct {
	ID          int       `json:"id" db:"id"`
	UserID      int       `json:"user_id" db:"user_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ProjectWithTasks is the GET /api/projects/{id} response shape.
type ProjectWithTasks struct {
	Project
	Tasks []Task `json:"tasks"`
}

// CreateProjectRequest creates a project; status defaults to "active".
type CreateProjectRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description,omitempty" validate:"max=500"`
}

// UpdateProjectRequest is a partial update; nil fields are left untouched.
type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=active archived completed"`
}

// DashboardStats aggregates the caller's projects and tasks by status.
// Every count is scoped to rows the caller owns.
type DashboardStats struct {
	Projects map[string]int `json:"projects"`
	Tasks    map[string]int `json:"tasks"`
}
