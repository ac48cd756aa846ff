package appointment

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps appointments in process. The slot check and the
// write happen under one lock, so it gives the same guarantee as the
// Postgres partial unique index.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Appointment
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items: make(map[string]*Appointment),
		now:   time.Now,
	}
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.items[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, f Filter) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.items {
		if f.PatientID != "" && a.PatientID != f.PatientID {
			continue
		}
		if f.DoctorID != "" && a.DoctorID != f.DoctorID {
			continue
		}
		if f.DepartmentID != "" && a.DepartmentID != f.DepartmentID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
			continue
		}
		if !f.From.IsZero() && a.AppointmentDate.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && a.AppointmentDate.After(f.To) {
			continue
		}
		out = append(out, *a)
	}
	sortAppointments(out)

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListAppointmentsByDateRange(ctx context.Context, start, end time.Time) ([]Appointment, error) {
	return r.ListAppointments(ctx, Filter{From: start, To: end})
}

func (r *MemoryRepository) SlotTaken(_ context.Context, doctorID string, date time.Time, slot string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.holderLocked(doctorID, date, slot, "") != nil, nil
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.Status.Active() && r.holderLocked(a.DoctorID, a.AppointmentDate, a.TimeSlot, "") != nil {
		return nil, ErrSlotTaken
	}

	now := r.now()
	cp := *a
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.items[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id string, from []Status, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[id]
	if !ok || !slices.Contains(from, a.Status) {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = r.now()

	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) RescheduleAppointment(_ context.Context, id string, date time.Time, slot string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[id]
	if !ok || !a.Status.Active() {
		return nil, ErrAppointmentNotFound
	}
	if r.holderLocked(a.DoctorID, date, slot, id) != nil {
		return nil, ErrSlotTaken
	}
	a.AppointmentDate = date
	a.TimeSlot = slot
	a.Status = StatusScheduled
	a.UpdatedAt = r.now()

	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) UpdateAppointmentNotes(_ context.Context, id, notes string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[id]
	if !ok || !a.Status.Active() {
		return nil, ErrAppointmentNotFound
	}
	a.Notes = notes
	a.UpdatedAt = r.now()

	cp := *a
	return &cp, nil
}

// holderLocked returns the active appointment on the slot, ignoring skipID.
func (r *MemoryRepository) holderLocked(doctorID string, date time.Time, slot, skipID string) *Appointment {
	for _, a := range r.items {
		if a.ID == skipID || !a.Status.Active() {
			continue
		}
		if a.DoctorID == doctorID && a.AppointmentDate.Equal(date) && a.TimeSlot == slot {
			return a
		}
	}
	return nil
}

func sortAppointments(list []Appointment) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.AppointmentDate.Equal(b.AppointmentDate) {
			return a.AppointmentDate.Before(b.AppointmentDate)
		}
		if a.TimeSlot != b.TimeSlot {
			return a.TimeSlot < b.TimeSlot
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
