package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinic-scheduling-billing/internal/appointment"
)

type AppointmentService interface {
	Book(ctx context.Context, req appointment.BookRequest) (*appointment.Appointment, error)
	Get(ctx context.Context, id string) (*appointment.Appointment, error)
	List(ctx context.Context, f appointment.Filter) ([]appointment.Appointment, error)
	Confirm(ctx context.Context, id string) (*appointment.Appointment, error)
	CheckIn(ctx context.Context, id string) (*appointment.Appointment, error)
	Complete(ctx context.Context, id string) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id string) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, id string, req appointment.RescheduleRequest) (*appointment.Appointment, error)
	UpdateNotes(ctx context.Context, id, notes string) (*appointment.Appointment, error)
	AvailableSlots(ctx context.Context, doctorID string, date time.Time) ([]string, error)
}

func bookAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		date, ok := parseDate(w, "appointment_date", req.AppointmentDate)
		if !ok {
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookRequest{
			PatientID:       req.PatientID,
			DoctorID:        req.DoctorID,
			DepartmentID:    req.DepartmentID,
			AppointmentDate: date,
			TimeSlot:        req.TimeSlot,
			Reason:          req.Reason,
			Notes:           req.Notes,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := appointment.Filter{
			PatientID:    q.Get("patient_id"),
			DoctorID:     q.Get("doctor_id"),
			DepartmentID: q.Get("department_id"),
		}

		if raw := q.Get("status"); raw != "" {
			for _, s := range strings.Split(raw, ",") {
				status := appointment.Status(strings.TrimSpace(s))
				if !status.Valid() {
					writeError(w, http.StatusBadRequest, "invalid_status", "unknown status "+string(status))
					return
				}
				f.Statuses = append(f.Statuses, status)
			}
		}

		var ok bool
		if raw := q.Get("from"); raw != "" {
			if f.From, ok = parseDate(w, "from", raw); !ok {
				return
			}
		}
		if raw := q.Get("to"); raw != "" {
			if f.To, ok = parseDate(w, "to", raw); !ok {
				return
			}
		}
		if f.Limit, ok = parseInt(w, "limit", q.Get("limit")); !ok {
			return
		}
		if f.Offset, ok = parseInt(w, "offset", q.Get("offset")); !ok {
			return
		}

		list, err := svc.List(r.Context(), f)
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(list))
		for i := range list {
			resp = append(resp, toAppointmentResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// transitionHandler serves the body-less lifecycle endpoints.
func transitionHandler(fn func(ctx context.Context, id string) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := fn(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RescheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		date, ok := parseDate(w, "appointment_date", req.AppointmentDate)
		if !ok {
			return
		}

		appt, err := svc.Reschedule(r.Context(), chi.URLParam(r, "id"), appointment.RescheduleRequest{
			AppointmentDate: date,
			TimeSlot:        req.TimeSlot,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateNotesHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateNotesRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.UpdateNotes(r.Context(), chi.URLParam(r, "id"), req.Notes)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func availableSlotsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID := chi.URLParam(r, "doctorID")
		raw := r.URL.Query().Get("date")
		if raw == "" {
			writeError(w, http.StatusBadRequest, "invalid_date", "date query parameter is required")
			return
		}
		date, ok := parseDate(w, "date", raw)
		if !ok {
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), doctorID, date)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, AvailableSlotsResponse{
			DoctorID: doctorID,
			Date:     date.Format(dateLayout),
			Slots:    slots,
		})
	}
}

// parseDate accepts YYYY-MM-DD. An empty value is left to the service to
// reject so its validation order is kept.
func parseDate(w http.ResponseWriter, field, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", field+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}

func parseInt(w http.ResponseWriter, field, raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
