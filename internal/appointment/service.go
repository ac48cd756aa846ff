package appointment

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/clinic-scheduling-billing/internal/domainerr"
	"github.com/hackgods/clinic-scheduling-billing/internal/metrics"
	"github.com/hackgods/clinic-scheduling-billing/internal/notify"
	redisclient "github.com/hackgods/clinic-scheduling-billing/internal/redis"
	"github.com/hackgods/clinic-scheduling-billing/internal/timeslot"
)

var tracer = otel.Tracer("clinic.internal.appointment")

var (
	ErrInvalidStatusTransition = domainerr.Validation("invalid status transition")
	ErrAppointmentClosed       = domainerr.Validation("appointment is completed or cancelled")

	ErrMissingParticipants = domainerr.Validation("patient_id, doctor_id and department_id are required")
	ErrMissingDate         = domainerr.Validation("appointment_date is required")
	ErrMissingTimeSlot     = domainerr.Validation("time_slot is required")
	ErrUnknownTimeSlot     = domainerr.Validation("time_slot is not a bookable slot")
	ErrMissingReason       = domainerr.Validation("reason is required")
	ErrDateInPast          = domainerr.Validation("appointment cannot be booked in the past")
	ErrMissingDoctor       = domainerr.Validation("doctor_id is required")
	ErrInvalidDateRange    = domainerr.Validation("end date is before start date")
)

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	sink    notify.Sink
	slots   timeslot.Generator
	metrics *metrics.SchedulingMetrics
	logger  zerolog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithMetrics(m *metrics.SchedulingMetrics) Option { return func(s *Service) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo Repository, locker redisclient.Locker, sink notify.Sink, slots timeslot.Generator, opts ...Option) *Service {
	if repo == nil {
		panic("appointment: repository required")
	}
	if locker == nil {
		locker = redisclient.NoopLocker{}
	}
	if sink == nil {
		sink = notify.Discard{}
	}
	s := &Service{
		repo:   repo,
		locker: locker,
		sink:   sink,
		slots:  slots,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Slots exposes the clinic day's slot labels.
func (s *Service) Slots() []string {
	return s.slots.Slots()
}

// Book reserves a doctor's slot for a patient. Validation happens before any
// store access; the slot itself is claimed by one atomic store write.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.patient_id", req.PatientID),
		attribute.String("clinic.doctor_id", req.DoctorID),
		attribute.String("clinic.time_slot", req.TimeSlot),
	)

	if err := s.validateBooking(req); err != nil {
		s.metrics.ObserveBooking("book", "invalid")
		return nil, fail(span, err)
	}

	date := timeslot.Date(req.AppointmentDate)
	appt := &Appointment{
		ID:              uuid.NewString(),
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		DepartmentID:    req.DepartmentID,
		AppointmentDate: date,
		TimeSlot:        req.TimeSlot,
		Reason:          strings.TrimSpace(req.Reason),
		Notes:           req.Notes,
		Status:          StatusScheduled,
	}

	var created *Appointment
	err := s.withSlotLock(ctx, redisclient.SlotKey(req.DoctorID, date, req.TimeSlot), func(lockCtx context.Context) error {
		var err error
		created, err = s.repo.CreateAppointment(lockCtx, appt)
		return err
	})
	if err != nil {
		return nil, fail(span, s.slotWriteError("book", err))
	}

	s.metrics.ObserveBooking("book", "ok")
	s.logger.Info().
		Str("appointment_id", created.ID).
		Str("doctor_id", created.DoctorID).
		Time("date", created.AppointmentDate).
		Str("time_slot", created.TimeSlot).
		Msg("appointment booked")

	s.notify(ctx, notify.EventAppointmentConfirmation, created, nil)
	return created, nil
}

// Confirm moves a scheduled appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, id string) (*Appointment, error) {
	return s.transition(ctx, "confirm", "confirmed", id, []Status{StatusScheduled}, StatusConfirmed, "")
}

func (s *Service) CheckIn(ctx context.Context, id string) (*Appointment, error) {
	return s.transition(ctx, "check_in", "checked in", id,
		[]Status{StatusScheduled, StatusConfirmed}, StatusCheckedIn, notify.EventAppointmentCheckedIn)
}

func (s *Service) Complete(ctx context.Context, id string) (*Appointment, error) {
	return s.transition(ctx, "complete", "completed", id, []Status{StatusCheckedIn}, StatusCompleted, "")
}

func (s *Service) Cancel(ctx context.Context, id string) (*Appointment, error) {
	return s.transition(ctx, "cancel", "cancelled", id, ActiveStatuses, StatusCancelled, notify.EventAppointmentCancelled)
}

// Reschedule moves an active appointment to another date and slot with the
// same doctor and resets it to scheduled. On conflict the appointment is left
// as it was.
func (s *Service) Reschedule(ctx context.Context, id string, req RescheduleRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.reschedule")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.appointment_id", id),
		attribute.String("clinic.time_slot", req.TimeSlot),
	)

	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fail(span, fmt.Errorf("load appointment: %w", err))
	}
	if current.Status.Terminal() {
		s.metrics.ObserveBooking("reschedule", "invalid")
		return nil, fail(span, closedError("rescheduled", current.Status))
	}
	if err := s.validateSlot(req.AppointmentDate, req.TimeSlot); err != nil {
		s.metrics.ObserveBooking("reschedule", "invalid")
		return nil, fail(span, err)
	}

	date := timeslot.Date(req.AppointmentDate)
	var updated *Appointment
	err = s.withSlotLock(ctx, redisclient.SlotKey(current.DoctorID, date, req.TimeSlot), func(lockCtx context.Context) error {
		var err error
		updated, err = s.repo.RescheduleAppointment(lockCtx, id, date, req.TimeSlot)
		return err
	})
	if errors.Is(err, ErrAppointmentNotFound) {
		// Closed by a concurrent writer between the read and the update.
		err = s.closedOrMissing(ctx, id, "rescheduled")
	}
	if err != nil {
		return nil, fail(span, s.slotWriteError("reschedule", err))
	}

	s.metrics.ObserveBooking("reschedule", "ok")
	s.logger.Info().
		Str("appointment_id", id).
		Time("from_date", current.AppointmentDate).
		Str("from_slot", current.TimeSlot).
		Time("to_date", updated.AppointmentDate).
		Str("to_slot", updated.TimeSlot).
		Msg("appointment rescheduled")

	s.notify(ctx, notify.EventAppointmentRescheduled, updated, map[string]any{
		"previous_date":      current.AppointmentDate.Format("2006-01-02"),
		"previous_time_slot": current.TimeSlot,
	})
	return updated, nil
}

// UpdateNotes replaces the free-text notes of an active appointment.
func (s *Service) UpdateNotes(ctx context.Context, id, notes string) (*Appointment, error) {
	updated, err := s.repo.UpdateAppointmentNotes(ctx, id, notes)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, s.closedOrMissing(ctx, id, "edited")
	}
	if err != nil {
		return nil, fmt.Errorf("update notes: %w", err)
	}
	return updated, nil
}

// AvailableSlots is the clinic day's slot set minus the slots held by active
// appointments of the doctor on that date.
func (s *Service) AvailableSlots(ctx context.Context, doctorID string, date time.Time) ([]string, error) {
	if doctorID == "" {
		return nil, ErrMissingDoctor
	}
	if date.IsZero() {
		return nil, ErrMissingDate
	}
	day := timeslot.Date(date)

	held, err := s.repo.ListAppointments(ctx, Filter{
		DoctorID: doctorID,
		Statuses: ActiveStatuses,
		From:     day,
		To:       day,
	})
	if err != nil {
		return nil, fmt.Errorf("list held slots: %w", err)
	}

	taken := make(map[string]bool, len(held))
	for _, a := range held {
		taken[a.TimeSlot] = true
	}

	available := make([]string, 0)
	for _, slot := range s.slots.Slots() {
		if !taken[slot] {
			available = append(available, slot)
		}
	}
	return available, nil
}

func (s *Service) IsSlotAvailable(ctx context.Context, doctorID string, date time.Time, slot string) (bool, error) {
	if doctorID == "" {
		return false, ErrMissingDoctor
	}
	if date.IsZero() {
		return false, ErrMissingDate
	}
	if !s.slots.Contains(slot) {
		return false, ErrUnknownTimeSlot
	}
	taken, err := s.repo.SlotTaken(ctx, doctorID, timeslot.Date(date), slot)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// List applies f with paging limits: default 20, max 100.
func (s *Service) List(ctx context.Context, f Filter) ([]Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if !f.From.IsZero() {
		f.From = timeslot.Date(f.From)
	}
	if !f.To.IsZero() {
		f.To = timeslot.Date(f.To)
	}

	list, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return list, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]Appointment, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, ErrMissingParticipants
	}
	return s.List(ctx, Filter{PatientID: patientID, Limit: limit, Offset: offset})
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID string, limit, offset int) ([]Appointment, error) {
	if strings.TrimSpace(doctorID) == "" {
		return nil, ErrMissingDoctor
	}
	return s.List(ctx, Filter{DoctorID: doctorID, Limit: limit, Offset: offset})
}

// ListBetween returns every appointment dated within [start, end].
func (s *Service) ListBetween(ctx context.Context, start, end time.Time) ([]Appointment, error) {
	start, end = timeslot.Date(start), timeslot.Date(end)
	if end.Before(start) {
		return nil, ErrInvalidDateRange
	}
	list, err := s.repo.ListAppointmentsByDateRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list appointments by date range: %w", err)
	}
	return list, nil
}

func (s *Service) transition(ctx context.Context, op, verb, id string, from []Status, to Status, event notify.EventType) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment."+op)
	defer span.End()
	span.SetAttributes(attribute.String("clinic.appointment_id", id))

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fail(span, fmt.Errorf("load appointment: %w", err))
	}
	if !slices.Contains(from, appt.Status) {
		return nil, fail(span, transitionError(verb, appt.Status))
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, from, to)
	if errors.Is(err, ErrAppointmentNotFound) {
		// Lost a race: the status moved after we read it.
		current, getErr := s.repo.GetAppointmentByID(ctx, id)
		if getErr != nil {
			return nil, fail(span, fmt.Errorf("load appointment: %w", getErr))
		}
		return nil, fail(span, transitionError(verb, current.Status))
	}
	if err != nil {
		return nil, fail(span, fmt.Errorf("update appointment status: %w", err))
	}

	s.metrics.ObserveTransition(string(to))
	s.logger.Info().
		Str("appointment_id", id).
		Str("from", string(appt.Status)).
		Str("to", string(to)).
		Msg("appointment status changed")

	if event != "" {
		s.notify(ctx, event, updated, nil)
	}
	return updated, nil
}

func (s *Service) validateBooking(req BookRequest) error {
	if req.PatientID == "" || req.DoctorID == "" || req.DepartmentID == "" {
		return ErrMissingParticipants
	}
	if req.AppointmentDate.IsZero() {
		return ErrMissingDate
	}
	if req.TimeSlot == "" {
		return ErrMissingTimeSlot
	}
	if !s.slots.Contains(req.TimeSlot) {
		return ErrUnknownTimeSlot
	}
	if strings.TrimSpace(req.Reason) == "" {
		return ErrMissingReason
	}
	return s.notInPast(req.AppointmentDate, req.TimeSlot)
}

func (s *Service) validateSlot(date time.Time, slot string) error {
	if date.IsZero() {
		return ErrMissingDate
	}
	if slot == "" {
		return ErrMissingTimeSlot
	}
	if !s.slots.Contains(slot) {
		return ErrUnknownTimeSlot
	}
	return s.notInPast(date, slot)
}

func (s *Service) notInPast(date time.Time, slot string) error {
	start, err := s.slots.StartOf(timeslot.Date(date), slot)
	if err != nil {
		return ErrUnknownTimeSlot
	}
	if start.Before(s.now().Truncate(time.Second)) {
		return ErrDateInPast
	}
	return nil
}

// closedOrMissing explains why a conditional write on an active appointment
// matched nothing.
func (s *Service) closedOrMissing(ctx context.Context, id, verb string) error {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	return closedError(verb, current.Status)
}

// withSlotLock runs write under the slot lock. A lock still busy after the
// locker's wait does not decide the outcome: write then runs unlocked and the
// store's atomic slot check alone accepts or rejects it.
func (s *Service) withSlotLock(ctx context.Context, key string, write func(ctx context.Context) error) error {
	err := s.locker.WithLock(ctx, key, write)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		s.logger.Warn().Str("lock", key).Msg("slot lock busy, writing through the store check")
		return write(ctx)
	}
	return err
}

func (s *Service) slotWriteError(op string, err error) error {
	switch {
	case errors.Is(err, ErrSlotTaken):
		s.metrics.ObserveBooking(op, "conflict")
		return err
	case domainerr.KindOf(err) != domainerr.KindUnknown:
		s.metrics.ObserveBooking(op, "invalid")
		return err
	default:
		s.metrics.ObserveBooking(op, "error")
		return fmt.Errorf("%s appointment: %w", op, err)
	}
}

func (s *Service) notify(ctx context.Context, event notify.EventType, a *Appointment, extra map[string]any) {
	data := map[string]any{
		"doctor_id":        a.DoctorID,
		"department_id":    a.DepartmentID,
		"appointment_date": a.AppointmentDate.Format("2006-01-02"),
		"time_slot":        a.TimeSlot,
		"status":           string(a.Status),
	}
	for k, v := range extra {
		data[k] = v
	}
	s.sink.Notify(ctx, notify.Notification{
		Type:          event,
		PatientID:     a.PatientID,
		AppointmentID: a.ID,
		Data:          data,
		OccurredAt:    s.now(),
	})
}

func transitionError(verb string, status Status) error {
	return domainerr.Wrap(domainerr.KindValidation,
		fmt.Sprintf("appointment cannot be %s from status %s", verb, status),
		ErrInvalidStatusTransition)
}

func closedError(verb string, status Status) error {
	return domainerr.Wrap(domainerr.KindValidation,
		fmt.Sprintf("appointment cannot be %s from status %s", verb, status),
		ErrAppointmentClosed)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
