package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// EventType names a lifecycle event delivered to patients.
type EventType string

const (
	EventAppointmentConfirmation EventType = "appointment.confirmation"
	EventAppointmentCheckedIn    EventType = "appointment.checked_in"
	EventAppointmentCancelled    EventType = "appointment.cancelled"
	EventAppointmentRescheduled  EventType = "appointment.rescheduled"
	EventPaymentSucceeded        EventType = "payment.succeeded"
	EventPaymentFailed           EventType = "payment.failed"
	EventInsuranceClaimStatus    EventType = "insurance.claim_status"
)

// Notification is one event for one patient.
type Notification struct {
	Type          EventType
	PatientID     string
	AppointmentID string
	PaymentID     string
	Data          map[string]any
	OccurredAt    time.Time
}

// Sink receives notifications. Delivery is fire-and-forget: implementations
// handle and log their own failures and must not block the caller for long.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// LogSink writes every notification to the logger.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, n Notification) {
	ev := s.logger.Info().
		Str("event", string(n.Type)).
		Str("patient_id", n.PatientID).
		Time("occurred_at", n.OccurredAt)
	if n.AppointmentID != "" {
		ev = ev.Str("appointment_id", n.AppointmentID)
	}
	if n.PaymentID != "" {
		ev = ev.Str("payment_id", n.PaymentID)
	}
	if len(n.Data) > 0 {
		ev = ev.Fields(map[string]any{"data": n.Data})
	}
	ev.Msg("notification")
}

// Multi fans a notification out to every sink in order.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, s := range m {
		if s != nil {
			s.Notify(ctx, n)
		}
	}
}

// Discard drops everything.
type Discard struct{}

func (Discard) Notify(context.Context, Notification) {}
