/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/payrolls/*       Payroll generation and sending
  /api/users/*          Practitioner management
  /api/rules/*          Revenue sharing rules
  /api/clinics/*        Clinic sheets and CSV uploads
  /api/admin/*          Site settings
  /api/scenarios/*      Demo scenarios
  /api/reset            Database reset (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Payroll routes
		r.Route("/payrolls", func(r chi.Router) {
			r.Post("/generate", h.GeneratePayroll)
			r.Post("/send", h.SendPayroll)
		})

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Get("/{id}/payrolls", h.ListPayrolls)
			r.Put("/{id}/role", h.SaveRole)
			r.Put("/{id}/state", h.SaveState)
			r.Put("/{id}/rent", h.SaveRent)
			r.Delete("/{id}/rent", h.DeleteRent)
		})

		// Revenue sharing rules
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.ListRules)
			r.Post("/", h.CreateRule)
			r.Delete("/{id}", h.DeleteRule)
		})

		// Clinic routes
		r.Route("/clinics", func(r chi.Router) {
			r.Get("/", h.ListClinics)
			r.Post("/", h.SaveClinic)
			r.Post("/{id}/sheets/{kind}", h.UploadSheet)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.SaveSettings)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})

		r.Post("/reset", h.ResetDatabase)
	})

	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Clinic Payroll Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Clinic Payroll Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/users">/api/users</a> - List practitioners</li>
<li><a href="/api/clinics">/api/clinics</a> - List clinic sheet configurations</li>
<li><a href="/api/rules">/api/rules</a> - Revenue sharing rules</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
<li>POST /api/payrolls/generate - Compute a payroll</li>
<li>POST /api/payrolls/send - Finalize a payroll</li>
</ul>
</body>
</html>`))
	})

	return r
}
