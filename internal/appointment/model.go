package appointment

import (
	"slices"
	"time"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCheckedIn Status = "checked_in"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the statuses that hold a doctor's slot.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed, StatusCheckedIn}

func (s Status) Active() bool {
	return slices.Contains(ActiveStatuses, s)
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	return s.Active() || s.Terminal()
}

type Appointment struct {
	ID              string
	PatientID       string
	DoctorID        string
	DepartmentID    string
	AppointmentDate time.Time // civil date, midnight UTC
	TimeSlot        string
	Reason          string
	Notes           string
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type BookRequest struct {
	PatientID       string
	DoctorID        string
	DepartmentID    string
	AppointmentDate time.Time
	TimeSlot        string
	Reason          string
	Notes           string
}

type RescheduleRequest struct {
	AppointmentDate time.Time
	TimeSlot        string
}

// Filter narrows ListAppointments. Zero fields do not filter.
type Filter struct {
	PatientID    string
	DoctorID     string
	DepartmentID string
	Statuses     []Status
	From         time.Time // inclusive civil date
	To           time.Time // inclusive civil date
	Limit        int
	Offset       int
}
