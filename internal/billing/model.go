package billing

import "time"

type PaymentMethod string

const (
	MethodCash    PaymentMethod = "cash"
	MethodCard    PaymentMethod = "card"
	MethodMixed   PaymentMethod = "mixed"
	MethodPending PaymentMethod = "pending"
)

// Settleable reports whether m can be used to settle a payment.
func (m PaymentMethod) Settleable() bool {
	return m == MethodCash || m == MethodCard || m == MethodMixed
}

func (m PaymentMethod) Valid() bool {
	return m.Settleable() || m == MethodPending
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Settled payments never change again.
func (s PaymentStatus) Settled() bool {
	return s == PaymentCompleted || s == PaymentRefunded
}

// Payment amounts are in minor currency units.
// Amount always equals InsuranceCoverage + PatientPortion.
type Payment struct {
	ID                string
	AppointmentID     string
	PatientID         string
	Amount            int64
	InsuranceCoverage int64
	PatientPortion    int64
	PaymentMethod     PaymentMethod
	Status            PaymentStatus
	ClaimID           string
	TransactionID     string
	FailureReason     string
	PaidAt            *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Bill is a calculated split, not yet persisted.
type Bill struct {
	AppointmentID      string
	PatientID          string
	BaseAmount         int64
	InsuranceCoverage  int64
	PatientPortion     int64
	CoveragePercentage float64
	Insured            bool
	ClaimID            string
	PolicyNumber       string
}

type GenerateBillRequest struct {
	AppointmentID     string
	PatientID         string
	Amount            int64
	InsuranceCoverage int64
	PatientPortion    int64
	PaymentMethod     PaymentMethod
	ClaimID           string
}
