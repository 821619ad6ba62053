package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/sweeper"
)

// Sweeper runs one lifecycle sweep.
type Sweeper interface {
	Run(ctx context.Context, window appointment.ReminderWindow) (sweeper.Result, error)
}

type RouterConfig struct {
	Service  *appointment.Service
	Sweeper  Sweeper
	Health   *HealthHandler
	Logger   zerolog.Logger
	Location *time.Location
	Currency string

	JWTSecret            string
	CronSecret           string
	PaymentWebhookSecret string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	// Machine callers
	r.With(auth.SharedSecret(cfg.CronSecret)).Get("/cron/appointments", sweepHandler(cfg.Sweeper, cfg.Logger))
	r.With(auth.SharedSecret(cfg.PaymentWebhookSecret)).Post("/payments/confirm", confirmPaymentHandler(cfg.Service))

	// Users
	r.Group(func(r chi.Router) {
		if cfg.JWTSecret != "" {
			r.Use(auth.JWTMiddleware([]byte(cfg.JWTSecret)))
		} else {
			r.Use(auth.DevMiddleware)
		}

		r.Route("/doctors/{id}", func(r chi.Router) {
			r.Get("/availability/dates", availableDatesHandler(cfg.Service))
			r.Get("/availability/slots", availableSlotsHandler(cfg.Service, cfg.Location))
			r.Get("/quote", quoteHandler(cfg.Service, cfg.Currency))
			r.With(auth.RequireRole(auth.RoleDoctor)).Put("/availability", updateAvailabilityHandler(cfg.Service))
		})

		r.With(auth.RequireRole(auth.RolePatient)).Post("/appointments", createAppointmentHandler(cfg.Service, cfg.Location))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.With(auth.RequireRole(auth.RoleDoctor)).Post("/appointments/{id}/status", updateStatusHandler(cfg.Service))
		r.With(auth.RequireRole(auth.RoleDoctor)).Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Service))
	})

	return r
}
