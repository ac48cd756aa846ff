package appointment

import (
	"context"
	"time"

	"github.com/hackgods/clinic-scheduling-billing/internal/domainerr"
)

var (
	ErrAppointmentNotFound = domainerr.NotFound("appointment not found")
	ErrSlotTaken           = domainerr.Conflict("time slot already has an active appointment for this doctor")
)

// Repository is the appointment store. Writes that can collide on a doctor's
// slot are single atomic operations: the store, not the caller, decides
// whether the slot is free.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id string) (*Appointment, error)
	ListAppointments(ctx context.Context, f Filter) ([]Appointment, error)
	ListAppointmentsByDateRange(ctx context.Context, start, end time.Time) ([]Appointment, error)

	// Existence check for an active appointment on doctor+date+slot
	SlotTaken(ctx context.Context, doctorID string, date time.Time, slot string) (bool, error)

	// CreateAppointment inserts a, or returns ErrSlotTaken when an active
	// appointment already holds the slot.
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)

	// UpdateAppointmentStatus sets status to `to` only when the current status
	// is one of from. ErrAppointmentNotFound means no row matched.
	UpdateAppointmentStatus(ctx context.Context, id string, from []Status, to Status) (*Appointment, error)

	// RescheduleAppointment moves an active appointment to date/slot and resets
	// it to scheduled. ErrSlotTaken leaves the row untouched.
	RescheduleAppointment(ctx context.Context, id string, date time.Time, slot string) (*Appointment, error)

	// UpdateAppointmentNotes replaces notes on an active appointment.
	UpdateAppointmentNotes(ctx context.Context, id, notes string) (*Appointment, error)
}
