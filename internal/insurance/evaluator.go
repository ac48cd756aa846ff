package insurance

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hackgods/clinic-scheduling-billing/internal/domainerr"
	"github.com/hackgods/clinic-scheduling-billing/internal/timeslot"
)

var tracer = otel.Tracer("clinic.internal.insurance")

var (
	ErrNoActivePolicy     = domainerr.NotFound("no active insurance policy covers this claim")
	ErrMissingPatient     = domainerr.Validation("patient_id is required")
	ErrInvalidClaimAmount = domainerr.Validation("claim amount must be positive")
)

// Evaluator decides whether a patient's policies cover a claim.
type Evaluator struct {
	store  PolicyStore
	logger zerolog.Logger
	now    func() time.Time
}

type Option func(*Evaluator)

func WithLogger(l zerolog.Logger) Option { return func(e *Evaluator) { e.logger = l } }

func WithClock(now func() time.Time) Option { return func(e *Evaluator) { e.now = now } }

func NewEvaluator(store PolicyStore, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:  store,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckEligibility picks the patient's policy that approves the most for
// claimAmount. Ties go to the later end date, then the lower policy number.
// ErrNoActivePolicy is returned when no policy is in force today.
func (e *Evaluator) CheckEligibility(ctx context.Context, patientID string, claimAmount int64) (*Eligibility, error) {
	ctx, span := tracer.Start(ctx, "insurance.check_eligibility")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.patient_id", patientID),
		attribute.Int64("clinic.claim_amount", claimAmount),
	)

	if patientID == "" {
		return nil, ErrMissingPatient
	}
	if claimAmount <= 0 {
		return nil, ErrInvalidClaimAmount
	}

	policies, err := e.store.ListActiveByPatient(ctx, patientID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("load policies: %w", err)
	}

	today := timeslot.Date(e.now())
	var (
		best     *Policy
		approved int64
	)
	for i := range policies {
		p := &policies[i]
		if !inForce(p, today) {
			continue
		}
		amount := ApprovedAmount(claimAmount, p.CoveragePercentage, p.MaxCoverage)
		if best == nil || better(p, amount, best, approved) {
			best, approved = p, amount
		}
	}

	if best == nil {
		span.SetAttributes(attribute.Bool("clinic.eligible", false))
		return nil, ErrNoActivePolicy
	}

	elig := &Eligibility{
		Eligible:           true,
		CoveragePercentage: best.CoveragePercentage,
		ApprovedAmount:     approved,
		ClaimID:            uuid.NewString(),
		PolicyID:           best.ID,
		PolicyNumber:       best.PolicyNumber,
		Provider:           best.Provider,
	}
	span.SetAttributes(
		attribute.Bool("clinic.eligible", true),
		attribute.Int64("clinic.approved_amount", approved),
	)
	e.logger.Debug().
		Str("patient_id", patientID).
		Str("policy_number", best.PolicyNumber).
		Int64("claim_amount", claimAmount).
		Int64("approved_amount", approved).
		Msg("eligibility checked")
	return elig, nil
}

// ExpireLapsedPolicies flips active policies that ended before today to
// expired.
func (e *Evaluator) ExpireLapsedPolicies(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "insurance.expire_lapsed")
	defer span.End()

	n, err := e.store.ExpireLapsed(ctx, timeslot.Date(e.now()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	span.SetAttributes(attribute.Int64("clinic.expired", n))
	return n, nil
}

// ApprovedAmount is floor(claim * pct / 100) capped at maxCoverage. The
// percentage is taken to hundredths and the product is computed in integers.
func ApprovedAmount(claim int64, pct float64, maxCoverage int64) int64 {
	bp := int64(math.Round(pct * 100))
	q, r := claim/10000, claim%10000
	amount := q*bp + r*bp/10000
	if amount > maxCoverage {
		amount = maxCoverage
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}

func inForce(p *Policy, today time.Time) bool {
	if p.Status != PolicyActive {
		return false
	}
	if p.CoveragePercentage < 0 || p.CoveragePercentage > 100 {
		return false
	}
	if timeslot.Date(p.EndDate).Before(today) {
		return false
	}
	return !timeslot.Date(p.StartDate).After(today)
}

func better(p *Policy, amount int64, cur *Policy, curAmount int64) bool {
	if amount != curAmount {
		return amount > curAmount
	}
	pe, ce := timeslot.Date(p.EndDate), timeslot.Date(cur.EndDate)
	if !pe.Equal(ce) {
		return pe.After(ce)
	}
	return p.PolicyNumber < cur.PolicyNumber
}
