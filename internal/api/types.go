package api

import (
	"time"

	"github.com/hackgods/clinic-scheduling-billing/internal/appointment"
	"github.com/hackgods/clinic-scheduling-billing/internal/billing"
)

const dateLayout = "2006-01-02"

type BookAppointmentRequest struct {
	PatientID       string `json:"patient_id"`
	DoctorID        string `json:"doctor_id"`
	DepartmentID    string `json:"department_id"`
	AppointmentDate string `json:"appointment_date"`
	TimeSlot        string `json:"time_slot"`
	Reason          string `json:"reason"`
	Notes           string `json:"notes,omitempty"`
}

type RescheduleRequest struct {
	AppointmentDate string `json:"appointment_date"`
	TimeSlot        string `json:"time_slot"`
}

type UpdateNotesRequest struct {
	Notes string `json:"notes"`
}

type AppointmentResponse struct {
	ID              string    `json:"id"`
	PatientID       string    `json:"patient_id"`
	DoctorID        string    `json:"doctor_id"`
	DepartmentID    string    `json:"department_id"`
	AppointmentDate string    `json:"appointment_date"`
	TimeSlot        string    `json:"time_slot"`
	Reason          string    `json:"reason"`
	Notes           string    `json:"notes,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type AvailableSlotsResponse struct {
	DoctorID string   `json:"doctor_id"`
	Date     string   `json:"date"`
	Slots    []string `json:"slots"`
}

type CalculateBillRequest struct {
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	BaseAmount    int64  `json:"base_amount"`
}

type BillResponse struct {
	AppointmentID      string  `json:"appointment_id"`
	PatientID          string  `json:"patient_id"`
	BaseAmount         int64   `json:"base_amount"`
	InsuranceCoverage  int64   `json:"insurance_coverage"`
	PatientPortion     int64   `json:"patient_portion"`
	CoveragePercentage float64 `json:"coverage_percentage"`
	Insured            bool    `json:"insured"`
	ClaimID            string  `json:"claim_id,omitempty"`
	PolicyNumber       string  `json:"policy_number,omitempty"`
}

type GenerateBillRequest struct {
	AppointmentID     string `json:"appointment_id"`
	PatientID         string `json:"patient_id"`
	Amount            int64  `json:"amount"`
	InsuranceCoverage int64  `json:"insurance_coverage"`
	PatientPortion    int64  `json:"patient_portion"`
	PaymentMethod     string `json:"payment_method,omitempty"`
	ClaimID           string `json:"claim_id,omitempty"`
}

type ProcessPaymentRequest struct {
	PaymentMethod string            `json:"payment_method"`
	Details       map[string]string `json:"details,omitempty"`
}

type PaymentFailureRequest struct {
	Reason string `json:"reason"`
}

type PaymentResponse struct {
	ID                string     `json:"id"`
	AppointmentID     string     `json:"appointment_id"`
	PatientID         string     `json:"patient_id"`
	Amount            int64      `json:"amount"`
	InsuranceCoverage int64      `json:"insurance_coverage"`
	PatientPortion    int64      `json:"patient_portion"`
	PaymentMethod     string     `json:"payment_method"`
	Status            string     `json:"status"`
	ClaimID           string     `json:"claim_id,omitempty"`
	TransactionID     string     `json:"transaction_id,omitempty"`
	FailureReason     string     `json:"failure_reason,omitempty"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		DoctorID:        a.DoctorID,
		DepartmentID:    a.DepartmentID,
		AppointmentDate: a.AppointmentDate.Format(dateLayout),
		TimeSlot:        a.TimeSlot,
		Reason:          a.Reason,
		Notes:           a.Notes,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toBillResponse(b *billing.Bill) BillResponse {
	return BillResponse{
		AppointmentID:      b.AppointmentID,
		PatientID:          b.PatientID,
		BaseAmount:         b.BaseAmount,
		InsuranceCoverage:  b.InsuranceCoverage,
		PatientPortion:     b.PatientPortion,
		CoveragePercentage: b.CoveragePercentage,
		Insured:            b.Insured,
		ClaimID:            b.ClaimID,
		PolicyNumber:       b.PolicyNumber,
	}
}

func toPaymentResponse(p *billing.Payment) PaymentResponse {
	return PaymentResponse{
		ID:                p.ID,
		AppointmentID:     p.AppointmentID,
		PatientID:         p.PatientID,
		Amount:            p.Amount,
		InsuranceCoverage: p.InsuranceCoverage,
		PatientPortion:    p.PatientPortion,
		PaymentMethod:     string(p.PaymentMethod),
		Status:            string(p.Status),
		ClaimID:           p.ClaimID,
		TransactionID:     p.TransactionID,
		FailureReason:     p.FailureReason,
		PaidAt:            p.PaidAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}
