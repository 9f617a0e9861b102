package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/umakantv/go-utils/httpserver"
	"github.com/umakantv/go-utils/logger"
	"go.uber.org/zap"

	"taskhub-service/auth"
	cachestore "taskhub-service/cache"
	"taskhub-service/config"
	"taskhub-service/database"
	"taskhub-service/handlers"
	"taskhub-service/mailer"
	"taskhub-service/middleware"
)

// sessionAuth builds the httpserver auth hook. Routes registered with
// AuthType "session" are rejected with 401 before their handler runs when
// this returns false - the guard is structural, not per-handler convention.
// Resolution goes through the same resolver the handlers use, so the edge
// cookie heuristic is never the authority.
func sessionAuth(resolver *auth.Resolver) func(r *http.Request) (bool, httpserver.RequestAuth) {
	return func(r *http.Request) (bool, httpserver.RequestAuth) {
		resolved, err := resolver.Session(r.Context(), r)
		if err != nil || resolved == nil {
			return false, httpserver.RequestAuth{}
		}
		return true, httpserver.RequestAuth{
			Type:   "session",
			Client: resolved.User.Email,
			Claims: map[string]interface{}{
				"user_id": resolved.User.ID,
				"name":    resolved.User.Name,
				"email":   resolved.User.Email,
				"role":    resolved.User.Role,
			},
		}
	}
}

// scoped attaches the per-request session memo so every resolver call on
// the way down shares one store lookup.
func scoped(next httpserver.HandlerFunc) httpserver.HandlerFunc {
	return httpserver.HandlerFunc(func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		next(auth.WithRequestScope(ctx), w, r)
	})
}

// servePage hands out the SPA shell; the frontend routes client-side.
func servePage(staticDir string) httpserver.HandlerFunc {
	index := filepath.Join(staticDir, "index.html")
	return httpserver.HandlerFunc(func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, index)
	})
}

func StartServer() {
	// Initialize logger
	logger.Init(logger.LoggerConfig{
		CallerKey:  "file",
		TimeKey:    "timestamp",
		CallerSkip: 1,
	})

	logger.Info("Starting TaskHub Service...")

	cfg := config.Load()

	// Process-wide handles, created once and passed down explicitly.
	dbConn := database.Initialize(cfg.Database)
	defer dbConn.Close()

	cacheClient := cachestore.Initialize(cfg.Redis)
	defer cacheClient.Close()

	resolver := auth.NewResolver(dbConn, cacheClient, cfg.Session)
	sender := mailer.LogSender{}

	authHandler := handlers.NewAuthHandler(dbConn, cacheClient, resolver, sender, cfg.Session.BcryptCost)
	userHandler := handlers.NewUserHandler(dbConn, cacheClient, resolver, sender, cfg.Session.BcryptCost)
	projectHandler := handlers.NewProjectHandler(dbConn, cacheClient, resolver)
	taskHandler := handlers.NewTaskHandler(dbConn, cacheClient, resolver)
	dashboardHandler := handlers.NewDashboardHandler(dbConn, cacheClient, resolver)

	server := httpserver.New(cfg.Port, sessionAuth(resolver))

	server.Register(httpserver.Route{
		Name:     "HealthCheck",
		Method:   "GET",
		Path:     "/health",
		AuthType: "none",
	}, httpserver.HandlerFunc(func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "taskhub-service"}`))
	}))

	// Auth flows. Public by nature; each one validates what it needs itself.
	server.Register(httpserver.Route{Name: "Signup", Method: "POST", Path: "/api/auth/signup", AuthType: "none"},
		scoped(authHandler.Signup))
	server.Register(httpserver.Route{Name: "Login", Method: "POST", Path: "/api/auth/login", AuthType: "none"},
		scoped(authHandler.Login))
	server.Register(httpserver.Route{Name: "Logout", Method: "POST", Path: "/api/auth/logout", AuthType: "none"},
		scoped(authHandler.Logout))
	server.Register(httpserver.Route{Name: "VerifyEmail", Method: "POST", Path: "/api/auth/verify-email", AuthType: "none"},
		scoped(authHandler.VerifyEmail))
	server.Register(httpserver.Route{Name: "ForgotPassword", Method: "POST", Path: "/api/auth/forgot-password", AuthType: "none"},
		scoped(authHandler.ForgotPassword))
	server.Register(httpserver.Route{Name: "ResetPassword", Method: "POST", Path: "/api/auth/reset-password", AuthType: "none"},
		scoped(authHandler.ResetPassword))

	// User procedures.
	server.Register(httpserver.Route{Name: "Me", Method: "GET", Path: "/api/me", AuthType: "session"},
		scoped(userHandler.Me))
	server.Register(httpserver.Route{Name: "UpdateProfile", Method: "PUT", Path: "/api/me", AuthType: "session"},
		scoped(userHandler.UpdateProfile))
	server.Register(httpserver.Route{Name: "ChangePassword", Method: "PUT", Path: "/api/me/password", AuthType: "session"},
		scoped(userHandler.ChangePassword))
	server.Register(httpserver.Route{Name: "GetUser", Method: "GET", Path: "/api/users/{id}", AuthType: "none"},
		scoped(userHandler.GetByID))

	// Project procedures, all ownership-scoped.
	server.Register(httpserver.Route{Name: "ListProjects", Method: "GET", Path: "/api/projects", AuthType: "session"},
		scoped(projectHandler.List))
	server.Register(httpserver.Route{Name: "CreateProject", Method: "POST", Path: "/api/projects", AuthType: "session"},
		scoped(projectHandler.Create))
	server.Register(httpserver.Route{Name: "GetProject", Method: "GET", Path: "/api/projects/{id}", AuthType: "session"},
		scoped(projectHandler.GetByID))
	server.Register(httpserver.Route{Name: "UpdateProject", Method: "PUT", Path: "/api/projects/{id}", AuthType: "session"},
		scoped(projectHandler.Update))
	server.Register(httpserver.Route{Name: "DeleteProject", Method: "DELETE", Path: "/api/projects/{id}", AuthType: "session"},
		scoped(projectHandler.Delete))

	// Task procedures, transitively ownership-scoped.
	server.Register(httpserver.Route{Name: "ListTasks", Method: "GET", Path: "/api/projects/{id}/tasks", AuthType: "session"},
		scoped(taskHandler.ListByProject))
	server.Register(httpserver.Route{Name: "CreateTask", Method: "POST", Path: "/api/projects/{id}/tasks", AuthType: "session"},
		scoped(taskHandler.Create))
	server.Register(httpserver.Route{Name: "UpdateTask", Method: "PUT", Path: "/api/tasks/{id}", AuthType: "session"},
		scoped(taskHandler.Update))
	server.Register(httpserver.Route{Name: "UpdateTaskStatus", Method: "PATCH", Path: "/api/tasks/{id}/status", AuthType: "session"},
		scoped(taskHandler.UpdateStatus))
	server.Register(httpserver.Route{Name: "DeleteTask", Method: "DELETE", Path: "/api/tasks/{id}", AuthType: "session"},
		scoped(taskHandler.Delete))

	server.Register(httpserver.Route{Name: "DashboardStats", Method: "GET", Path: "/api/dashboard/stats", AuthType: "session"},
		scoped(dashboardHandler.Stats))

	// Page routes go through the edge gate: cookie presence only, the real
	// session check happens when the page's data calls hit the API above.
	page := middleware.Gate(cfg.Session.CookieName, servePage(cfg.Static))
	for _, p := range []struct{ name, path string }{
		{"Home", "/"},
		{"Dashboard", "/dashboard"},
		{"ProjectsPage", "/projects"},
		{"SettingsPage", "/settings"},
		{"LoginPage", "/login"},
		{"RegisterPage", "/register"},
		{"ForgotPasswordPage", "/forgot-password"},
		{"ResetPasswordPage", "/reset-password"},
		{"VerifyEmailPage", "/verify-email"},
	} {
		server.Register(httpserver.Route{Name: p.name, Method: "GET", Path: p.path, AuthType: "none"}, page)
	}

	logger.Info("TaskHub Service started", zap.String("port", cfg.Port))

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start", zap.Error(err))
		os.Exit(1)
	}
}
