package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Appointments AppointmentService
	Billing      BillingService
	Checks       []Check
	Metrics      http.Handler
	Logger       zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	// Appointment endpoints
	svc := cfg.Appointments
	r.Post("/appointments", bookAppointmentHandler(svc))
	r.Get("/appointments", listAppointmentsHandler(svc))
	r.Get("/appointments/{id}", getAppointmentHandler(svc))
	r.Post("/appointments/{id}/confirm", transitionHandler(svc.Confirm))
	r.Post("/appointments/{id}/check-in", transitionHandler(svc.CheckIn))
	r.Post("/appointments/{id}/complete", transitionHandler(svc.Complete))
	r.Post("/appointments/{id}/cancel", transitionHandler(svc.Cancel))
	r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(svc))
	r.Patch("/appointments/{id}/notes", updateNotesHandler(svc))
	r.Get("/doctors/{doctorID}/available-slots", availableSlotsHandler(svc))

	// Billing endpoints
	if cfg.Billing != nil {
		b := cfg.Billing
		r.Post("/bills/calculate", calculateBillHandler(b))
		r.Post("/payments", generateBillHandler(b))
		r.Get("/payments/{id}", getPaymentHandler(b))
		r.Post("/payments/{id}/process", processPaymentHandler(b))
		r.Post("/payments/{id}/fail", paymentFailureHandler(b))
		r.Get("/appointments/{id}/payments", listPaymentsHandler(b))
	}

	return r
}
