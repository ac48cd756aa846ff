package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling-billing/internal/db"
)

// EventLogSink persists notifications to the event_logs table so downstream
// delivery can pick them up. Insert failures are logged, never returned.
type EventLogSink struct {
	db     db.DBTX
	logger zerolog.Logger
	now    func() time.Time
}

func NewEventLogSink(conn db.DBTX, logger zerolog.Logger) *EventLogSink {
	return &EventLogSink{db: conn, logger: logger, now: time.Now}
}

func (s *EventLogSink) Notify(ctx context.Context, n Notification) {
	payload, err := json.Marshal(n.Data)
	if err != nil {
		s.logger.Error().Err(err).Str("event", string(n.Type)).Msg("failed to marshal event payload")
		payload = nil
	}

	createdAt := n.OccurredAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, patient_id, appointment_id, payment_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, string(n.Type), n.PatientID, nullable(n.AppointmentID), nullable(n.PaymentID), payload, createdAt)
	if err != nil {
		s.logger.Error().Err(err).
			Str("event", string(n.Type)).
			Str("appointment_id", n.AppointmentID).
			Str("payment_id", n.PaymentID).
			Msg("failed to insert event log")
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
