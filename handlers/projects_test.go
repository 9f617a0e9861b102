package handlers

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"taskhub-service/models"
)

func TestCreateAndListProjects(t *testing.T) {
	e := newTestEnv(t)
	_, alice := e.signup(t, "Alice", "alice@example.com", "password123")
	_, bob := e.signup(t, "Bob", "bob@example.com", "password123")

	first := e.createProject(t, alice, "Website")
	second := e.createProject(t, alice, "Mobile App")
	theirs := e.createProject(t, bob, "Secret Plans")

	if first.Status != models.ProjectStatusActive {
		t.Fatalf("expected new project status %q, got %q", models.ProjectStatusActive, first.Status)
	}

	rec := httptest.NewRecorder()
	e.projects.List(testCtx(), rec, jsonRequest(t, "GET", "/api/projects", nil, alice))
	if rec.Code != http.StatusOK {
		t.Fatalf("list projects returned %d", rec.Code)
	}

	var listed []models.Project
	decodeBody(t, rec, &listed)
	if len(listed) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(listed))
	}
	// Newest first.
	if listed[0].ID != second.ID || listed[1].ID != first.ID {
		t.Fatalf("unexpected ordering: %d, %d", listed[0].ID, listed[1].ID)
	}
	for _, p := range listed {
		if p.ID == theirs.ID {
			t.Fatalf("another user's project leaked into the listing")
		}
	}

	// An account with no projects gets an empty array, not null.
	_, carol := e.signup(t, "Carol", "carol@example.com", "password123")
	rec = httptest.NewRecorder()
	e.projects.List(testCtx(), rec, jsonRequest(t, "GET", "/api/projects", nil, carol))
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("expected empty array, got %q", body)
	}
}

func TestGetProjectScopedToOwner(t *testing.T) {
	e := newTestEnv(t)
	_, alice := e.signup(t, "Alice", "alice@example.com", "password123")
	_, bob := e.signup(t, "Bob", "bob@example.com", "password123")

	project := e.createProject(t, alice, "Website")
	id := strconv.Itoa(project.ID)
	e.createTask(t, alice, id, map[string]string{"title": "Set up hosting"})

	rec := httptest.NewRecorder()
	e.projects.GetByID(testCtx(), rec, withID(jsonRequest(t, "GET", "/api/projects/"+id, nil, alice), id))
	if rec.Code != http.StatusOK {
		t.Fatalf("get project returned %d", rec.Code)
	}
	var detail models.ProjectWithTasks
	decodeBody(t, rec, &detail)
	if detail.ID != project.ID || len(detail.Tasks) != 1 {
		t.Fatalf("unexpected project detail: id=%d tasks=%d", detail.ID, len(detail.Tasks))
	}

	// Someone else's project and a nonexistent one look the same: 404.
	rec = httptest.NewRecorder()
	e.projects.GetByID(testCtx(), rec, withID(jsonRequest(t, "GET", "/api/projects/"+id, nil, bob), id))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign project returned %d, want 404", rec.Code)
	}
	rec = httptest.NewRecorder()
	e.projects.GetByID(testCtx(), rec, withID(jsonRequest(t, "GET", "/api/projects/99999", nil, alice), "99999"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing project returned %d, want 404", rec.Code)
	}
}

func TestUpdateProject(t *testing.T) {
	e := newTestEnv(t)
	_, alice := e.signup(t, "Alice", "alice@example.com", "password123")
	_, bob := e.signup(t, "Bob", "bob@example.com", "password123")

	project := e.createProject(t, alice, "Website")
	id := strconv.Itoa(project.ID)

	rec := httptest.NewRecorder()
	req := withID(jsonRequest(t, "PUT", "/api/projects/"+id, map[string]string{
		"name":   "Website v2",
		"status": models.ProjectStatusArchived,
	}, alice), id)
	e.projects.Update(testCtx(), rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("update returned %d: %s", rec.Code, rec.Body.String())
	}
	var updated models.Project
	decodeBody(t, rec, &updated)
	if updated.Name != "Website v2" || updated.Status != models.ProjectStatusArchived {
		t.Fatalf("unexpected project after update: %+v", updated)
	}

	// Unknown status values are rejected.
	rec = httptest.NewRecorder()
	req = withID(jsonRequest(t, "PUT", "/api/projects/"+id, map[string]string{"status": "paused"}, alice), id)
	e.projects.Update(testCtx(), rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status returned %d, want 400", rec.Code)
	}

	// Updating someone else's project is a silent no-op: 200 with null.
	rec = httptest.NewRecorder()
	req = withID(jsonRequest(t, "PUT", "/api/projects/"+id, map[string]string{"name": "Hijacked"}, bob), id)
	e.projects.Update(testCtx(), rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("foreign update returned %d, want 200", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "null" {
		t.Fatalf("foreign update body = %q, want null", body)
	}

	// The no-op really did nothing.
	rec = httptest.NewRecorder()
	e.projects.GetByID(testCtx(), rec, withID(jsonRequest(t, "GET", "/api/projects/"+id, nil, alice), id))
	var detail models.ProjectWithTasks
	decodeBody(t, rec, &detail)
	if detail.Name != "Website v2" {
		t.Fatalf("foreign update modified the project: %q", detail.Name)
	}
}

func TestDeleteProjectIdempotent(t *testing.T) {
	e := newTestEnv(t)
	_, alice := e.signup(t, "Alice", "alice@example.com", "password123")
	_, bob := e.signup(t, "Bob", "bob@example.com", "password123")

	project := e.createProject(t, alice, "Website")
	id := strconv.Itoa(project.ID)
	task := e.createTask(t, alice, id, map[string]string{"title": "Set up hosting"})

	// Someone else deleting it is a no-op null, and the project survives.
	rec := httptest.NewRecorder()
	e.projects.Delete(testCtx(), rec, withID(jsonRequest(t, "DELETE", "/api/projects/"+id, nil, bob), id))
	if body := strings.TrimSpace(rec.Body.String()); rec.Code != http.StatusOK || body != "null" {
		t.Fatalf("foreign delete = %d %q, want 200 null", rec.Code, body)
	}

	rec = httptest.NewRecorder()
	e.projects.Delete(testCtx(), rec, withID(jsonRequest(t, "DELETE", "/api/projects/"+id, nil, alice), id))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete returned %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) == "null" {
		t.Fatalf("owner delete should confirm, not no-op")
	}

	// Deleting again is the idempotent null.
	rec = httptest.NewRecorder()
	e.projects.Delete(testCtx(), rec, withID(jsonRequest(t, "DELETE", "/api/projects/"+id, nil, alice), id))
	if body := strings.TrimSpace(rec.Body.String()); rec.Code != http.StatusOK || body != "null" {
		t.Fatalf("repeat delete = %d %q, want 200 null", rec.Code, body)
	}

	// Tasks go down with the project.
	var count int
	if err := e.db.Get(&count, "SELECT COUNT(*) FROM tasks WHERE id = ?", task.ID); err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected cascade delete to remove the project's tasks")
	}
}
