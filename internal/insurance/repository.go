package insurance

import (
	"context"
	"time"

	"github.com/hackgods/clinic-scheduling-billing/internal/domainerr"
)

var ErrPolicyExists = domainerr.Conflict("policy number already exists")

type PolicyStore interface {
	CreatePolicy(ctx context.Context, p *Policy) (*Policy, error)

	// ListActiveByPatient returns the patient's policies with status active,
	// regardless of their dates.
	ListActiveByPatient(ctx context.Context, patientID string) ([]Policy, error)

	// ExpireLapsed marks active policies that ended before today as expired
	// and returns how many changed.
	ExpireLapsed(ctx context.Context, today time.Time) (int64, error)
}
