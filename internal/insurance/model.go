package insurance

import "time"

type PolicyStatus string

const (
	PolicyActive    PolicyStatus = "active"
	PolicyExpired   PolicyStatus = "expired"
	PolicyCancelled PolicyStatus = "cancelled"
)

// Policy is a patient's insurance policy. The engines only read policies,
// apart from the lapsed-policy sweep.
type Policy struct {
	ID                 string
	PatientID          string
	PolicyNumber       string
	Provider           string
	CoveragePercentage float64 // 0-100
	MaxCoverage        int64   // minor currency units
	StartDate          time.Time
	EndDate            time.Time
	Status             PolicyStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Eligibility is the outcome of checking a claim against a patient's policies.
type Eligibility struct {
	Eligible           bool
	CoveragePercentage float64
	ApprovedAmount     int64
	ClaimID            string
	PolicyID           string
	PolicyNumber       string
	Provider           string
}
