/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/tenants/{tenant}/*   Everything is tenant-scoped
  /healthz                  Liveness probe

SECURITY NOTE:
  No authentication middleware currently. The X-Actor header is a claim,
  not a credential. All endpoints are public.

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
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api/tenants/{tenant}", func(r chi.Router) {
		r.Post("/onboard", h.OnboardTenant)

		// Policy routes
		r.Route("/policies/{kind}", func(r chi.Router) {
			r.Get("/", h.GetPolicy)
			r.Get("/history", h.GetPolicyHistory)
			r.Put("/", h.PutPolicy)
		})

		// Staff routes
		r.Route("/staff", func(r chi.Router) {
			r.Post("/", h.CreateStaff)
			r.Get("/{id}", h.GetStaff)
		})

		// Prep room routes
		r.Route("/prep-rooms/{room}", func(r chi.Router) {
			r.Post("/reservations", h.CreatePrepRoomReservation)
			r.Get("/next-slot", h.NextPrepRoomSlot)
		})
		r.Post("/reservations/{id}/{verb}", h.TransitionReservation)

		// Appointment routes
		r.Route("/counselors/{id}", func(r chi.Router) {
			r.Post("/appointments", h.CreateAppointment)
			r.Get("/next-slot", h.NextAppointmentSlot)
		})
		r.Post("/appointments/{id}/{verb}", h.TransitionAppointment)
		r.Put("/appointments/{id}/schedule", h.RescheduleAppointment)

		// Vehicle routes
		r.Route("/vehicles/{id}", func(r chi.Router) {
			r.Post("/assignments", h.CreateAssignment)
			r.Get("/next-slot", h.NextVehicleSlot)
		})
		r.Post("/assignments/{id}/{verb}", h.TransitionAssignment)

		// Workforce routes
		r.Route("/employees/{id}", func(r chi.Router) {
			r.Post("/pto", h.CreatePTO)
			r.Post("/training", h.CreateTraining)
			r.Post("/rotations", h.CreateRotation)
		})
		r.Get("/pto/{id}/backfill-candidates", h.BackfillCandidates)
		r.Post("/pto/{id}/backfill", h.CreateBackfill)
		r.Post("/pto/{id}/{verb}", h.TransitionPTO)
		r.Post("/backfills/{id}/{verb}", h.TransitionBackfill)

		// Window and audit routes
		r.Route("/windows/{id}", func(r chi.Router) {
			r.Get("/", h.GetWindow)
			r.Get("/history", h.GetWindowHistory)
		})
		r.Get("/audit", h.QueryAudit)
	})

	return r
}
