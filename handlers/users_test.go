package handlers

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"taskhub-service/models"
)

func TestUpdateProfile(t *testing.T) {
	e := newTestEnv(t)
	user, cookie := e.signup(t, "Erin", "erin@example.com", "password123")

	rec := httptest.NewRecorder()
	req := jsonRequest(t, "PUT", "/api/me", map[string]string{
		"name":  "Erin Updated",
		"image": "https://example.com/erin.png",
	}, cookie)
	e.users.UpdateProfile(testCtx(), rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("update profile returned %d: %s", rec.Code, rec.Body.String())
	}

	var updated models.User
	decodeBody(t, rec, &updated)
	if updated.ID != user.ID || updated.Name != "Erin Updated" || updated.Image != "https://example.com/erin.png" {
		t.Fatalf("unexpected profile after update: %+v", updated)
	}

	// A body with no recognized fields is a validation error, not a no-op.
	rec = httptest.NewRecorder()
	e.users.UpdateProfile(testCtx(), rec, jsonRequest(t, "PUT", "/api/me", map[string]string{}, cookie))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty update returned %d, want 400", rec.Code)
	}
}

func TestPublicProfile(t *testing.T) {
	e := newTestEnv(t)
	user, _ := e.signup(t, "Frank", "frank@example.com", "password123")
	id := strconv.Itoa(user.ID)

	// No session required: the public subset is the only cross-user read.
	rec := httptest.NewRecorder()
	e.users.GetByID(testCtx(), rec, withID(httptest.NewRequest("GET", "/api/users/"+id, nil), id))
	if rec.Code != http.StatusOK {
		t.Fatalf("public profile returned %d", rec.Code)
	}

	var public models.PublicUser
	decodeBody(t, rec, &public)
	if public.ID != user.ID || public.Name != "Frank" {
		t.Fatalf("unexpected public profile: %+v", public)
	}
	if strings.Contains(rec.Body.String(), "email") {
		t.Fatalf("public profile leaks the email: %s", rec.Body.String())
	}

	// The second read comes from the cache and must look identical.
	cachedRec := httptest.NewRecorder()
	e.users.GetByID(testCtx(), cachedRec, withID(httptest.NewRequest("GET", "/api/users/"+id, nil), id))
	if cachedRec.Body.String() != rec.Body.String() {
		t.Fatalf("cached profile differs: %q vs %q", cachedRec.Body.String(), rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.users.GetByID(testCtx(), rec, withID(httptest.NewRequest("GET", "/api/users/99999", nil), "99999"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown user returned %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.users.GetByID(testCtx(), rec, withID(httptest.NewRequest("GET", "/api/users/abc", nil), "abc"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad user id returned %d, want 400", rec.Code)
	}
}

func TestChangePasswordRevokesOtherSessions(t *testing.T) {
	e := newTestEnv(t)
	e.signup(t, "Grace", "grace@example.com", "password123")
	_, otherCookie := e.login(t, "grace@example.com", "password123")
	_, activeCookie := e.login(t, "grace@example.com", "password123")

	// Wrong current password is rejected before anything changes.
	rec := httptest.NewRecorder()
	req := jsonRequest(t, "PUT", "/api/me/password", map[string]string{
		"current_password": "not-the-password",
		"new_password":     "another-password",
	}, activeCookie)
	e.users.ChangePassword(testCtx(), rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong current password returned %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = jsonRequest(t, "PUT", "/api/me/password", map[string]string{
		"current_password": "password123",
		"new_password":     "brand-new-password",
	}, activeCookie)
	e.users.ChangePassword(testCtx(), rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("change password returned %d: %s", rec.Code, rec.Body.String())
	}
	e.waitMail(t, "password-changed")

	// The session that made the change survives; the others die.
	rec = httptest.NewRecorder()
	e.users.Me(testCtx(), rec, jsonRequest(t, "GET", "/api/me", nil, activeCookie))
	if rec.Code != http.StatusOK {
		t.Fatalf("active session died with the password change: %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	e.users.Me(testCtx(), rec, jsonRequest(t, "GET", "/api/me", nil, otherCookie))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("other session survived the password change: %d", rec.Code)
	}

	if rec, _ := e.login(t, "grace@example.com", "password123"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("old password still accepted: %d", rec.Code)
	}
	if _, cookie := e.login(t, "grace@example.com", "brand-new-password"); cookie == nil {
		t.Fatalf("new password rejected")
	}
}
