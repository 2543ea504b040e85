package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/saifyeddes/GestionClinic-sub000/internal/appointment"
	"github.com/saifyeddes/GestionClinic-sub000/internal/payment"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Payments     *payment.Engine
	Resolver     PrincipalResolver
	Checks       []Check
	Logger       zerolog.Logger
	// Location is the clinic's time zone, used for date filters and the today view.
	Location *time.Location
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware)

	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Signed by the provider, not by a user credential.
	r.Post("/webhooks/payments", paymentWebhookHandler(cfg.Payments))

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.Resolver))

		r.Post("/appointments", createAppointmentHandler(cfg.Appointments))
		r.Get("/appointments", listAppointmentsHandler(cfg.Appointments, loc))
		r.Get("/appointments/today", todayAppointmentsHandler(cfg.Appointments, loc))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
		r.Patch("/appointments/{id}/status", updateStatusHandler(cfg.Appointments))
		r.Delete("/appointments/{id}", deleteAppointmentHandler(cfg.Appointments))

		r.Post("/appointments/{id}/checkout", checkoutHandler(cfg.Payments))
		r.Get("/payments/{session_id}/verify", verifyPaymentHandler(cfg.Payments))
	})

	return r
}
