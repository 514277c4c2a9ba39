package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/listing"
	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

type RouterConfig struct {
	Service *scheduling.Service
	// Tokens verifies bearer tokens. Nil enables the development actor.
	Tokens       *auth.Issuer
	Dependencies []Dependency
	Logger       zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(RecoverMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.Dependencies, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	catalog := cfg.Service.Catalog()
	h := &handlers{
		svc:       cfg.Service,
		catalog:   catalog,
		projector: calendar.NewProjector(catalog),
		lister:    listing.New(catalog, language.Spanish),
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens))

		r.Get("/locations", h.listLocations)
		r.Get("/locations/{id}/slots", h.listSlots)
		r.Get("/services", h.listServices)

		r.Get("/calendar/month", h.calendarMonth)
		r.Get("/calendar/day", h.calendarDay)

		r.Route("/appointments", func(r chi.Router) {
			r.Get("/", h.listAppointments)
			r.Post("/", h.createAppointment)
			r.Get("/{id}", h.getAppointment)
			r.Patch("/{id}", h.patchAppointment)
			r.Post("/{id}/cancel", h.cancelAppointment)
			r.Post("/{id}/reschedule", h.rescheduleAppointment)
			r.Post("/{id}/confirm", h.confirmAppointment)
			r.Post("/{id}/complete", h.completeAppointment)
			r.Post("/{id}/no-show", h.noShowAppointment)
		})
	})

	return r
}
