package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/umakantv/go-utils/httpserver"
)

// RouteClass is the coarse classification the edge gate works with.
type RouteClass int

const (
	// Public routes render for everyone.
	Public RouteClass = iota
	// Protected routes require a session to render.
	Protected
	// AuthOnly routes (login, register, ...) bounce signed-in users away.
	AuthOnly
)

var protectedPrefixes = []string{"/dashboard", "/projects", "/settings"}

var authOnlyPrefixes = []string{
	"/login",
	"/register",
	"/forgot-password",
	"/reset-password",
	"/verify-email",
}

// Classify buckets a request path. Prefix match so nested pages such as
// /projects/42 inherit the classification of their section.
func Classify(path string) RouteClass {
	for _, p := range protectedPrefixes {
		if matchesPrefix(path, p) {
			return Protected
		}
	}
	for _, p := range authOnlyPrefixes {
		if matchesPrefix(path, p) {
			return AuthOnly
		}
	}
	return Public
}

func matchesPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Gate is the cheap pre-render check for page routes. It looks only at the
// *presence* of the session cookie, never its validity: a forged cookie
// passes here and is caught by the resolver downstream. Gate never errors.
//
// Protected page, no cookie  -> 302 /login?callbackUrl=<path>
// Auth-only page, cookie set -> 302 /dashboard
// Anything else              -> pass through unchanged.
func Gate(cookieName string, next httpserver.HandlerFunc) httpserver.HandlerFunc {
	return httpserver.HandlerFunc(func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		hasCookie := false
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			hasCookie = true
		}

		switch Classify(r.URL.Path) {
		case Protected:
			if !hasCookie {
				target := "/login?callbackUrl=" + url.QueryEscape(r.URL.Path)
				http.Redirect(w, r, target, http.StatusFound)
				return
			}
		case AuthOnly:
			if hasCookie {
				http.Redirect(w, r, "/dashboard", http.StatusFound)
				return
			}
		}

		next(ctx, w, r)
	})
}
