package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/clinic-scheduling-billing/internal/domainerr"
	"github.com/hackgods/clinic-scheduling-billing/internal/insurance"
	"github.com/hackgods/clinic-scheduling-billing/internal/metrics"
	"github.com/hackgods/clinic-scheduling-billing/internal/notify"
	redisclient "github.com/hackgods/clinic-scheduling-billing/internal/redis"
)

var tracer = otel.Tracer("clinic.internal.billing")

var (
	ErrAlreadySettled     = domainerr.Validation("payment is already completed or refunded")
	ErrInvalidMethod      = domainerr.Validation("payment method must be cash, card or mixed")
	ErrPaymentDeclined    = domainerr.Validation("payment was declined")
	ErrPaymentInProgress  = domainerr.Conflict("payment is being processed, please retry")
	ErrMissingAppointment = domainerr.Validation("appointment_id is required")
	ErrMissingPatient     = domainerr.Validation("patient_id is required")
	ErrInvalidAmount      = domainerr.Validation("amount must be positive")
	ErrNegativeSplit      = domainerr.Validation("insurance coverage and patient portion must not be negative")
	ErrUnbalancedSplit    = domainerr.Validation("amount must equal insurance coverage plus patient portion")
)

// EligibilityChecker is the part of the insurance evaluator billing needs.
type EligibilityChecker interface {
	CheckEligibility(ctx context.Context, patientID string, claimAmount int64) (*insurance.Eligibility, error)
}

type Service struct {
	repo        Repository
	eligibility EligibilityChecker
	gateway     PaymentGateway
	locker      redisclient.Locker
	sink        notify.Sink
	metrics     *metrics.BillingMetrics
	logger      zerolog.Logger
	now         func() time.Time
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithMetrics(m *metrics.BillingMetrics) Option { return func(s *Service) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo Repository, eligibility EligibilityChecker, gateway PaymentGateway, locker redisclient.Locker, sink notify.Sink, opts ...Option) *Service {
	if locker == nil {
		locker = redisclient.NoopLocker{}
	}
	if sink == nil {
		sink = notify.Discard{}
	}
	s := &Service{
		repo:        repo,
		eligibility: eligibility,
		gateway:     gateway,
		locker:      locker,
		sink:        sink,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CalculateBill splits baseAmount between insurance and the patient. Having no
// eligible policy means zero coverage. Nothing is persisted.
func (s *Service) CalculateBill(ctx context.Context, appointmentID string, baseAmount int64, patientID string) (*Bill, error) {
	ctx, span := tracer.Start(ctx, "billing.calculate_bill")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.appointment_id", appointmentID),
		attribute.Int64("clinic.base_amount", baseAmount),
	)

	if patientID == "" {
		return nil, ErrMissingPatient
	}
	if baseAmount <= 0 {
		return nil, ErrInvalidAmount
	}

	bill := &Bill{
		AppointmentID:  appointmentID,
		PatientID:      patientID,
		BaseAmount:     baseAmount,
		PatientPortion: baseAmount,
	}

	elig, err := s.eligibility.CheckEligibility(ctx, patientID, baseAmount)
	switch {
	case domainerr.IsNotFound(err):
		// uninsured
	case err != nil:
		return nil, fail(span, fmt.Errorf("check eligibility: %w", err))
	case elig != nil && elig.Eligible:
		coverage := min(elig.ApprovedAmount, baseAmount)
		bill.InsuranceCoverage = coverage
		bill.PatientPortion = baseAmount - coverage
		bill.CoveragePercentage = elig.CoveragePercentage
		bill.Insured = true
		bill.ClaimID = elig.ClaimID
		bill.PolicyNumber = elig.PolicyNumber
	}

	s.metrics.ObserveBill(bill.BaseAmount, bill.InsuranceCoverage)
	span.SetAttributes(attribute.Int64("clinic.insurance_coverage", bill.InsuranceCoverage))
	return bill, nil
}

// GenerateBill persists a pending payment for a calculated split.
func (s *Service) GenerateBill(ctx context.Context, req GenerateBillRequest) (*Payment, error) {
	ctx, span := tracer.Start(ctx, "billing.generate_bill")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.appointment_id", req.AppointmentID))

	if err := validateBill(req); err != nil {
		return nil, fail(span, err)
	}

	method := req.PaymentMethod
	if method == "" {
		method = MethodPending
	}

	created, err := s.repo.CreatePayment(ctx, &Payment{
		ID:                uuid.NewString(),
		AppointmentID:     req.AppointmentID,
		PatientID:         req.PatientID,
		Amount:            req.Amount,
		InsuranceCoverage: req.InsuranceCoverage,
		PatientPortion:    req.PatientPortion,
		PaymentMethod:     method,
		Status:            PaymentPending,
		ClaimID:           req.ClaimID,
	})
	if err != nil {
		return nil, fail(span, fmt.Errorf("create payment: %w", err))
	}

	s.logger.Info().
		Str("payment_id", created.ID).
		Str("appointment_id", created.AppointmentID).
		Int64("amount", created.Amount).
		Int64("insurance_coverage", created.InsuranceCoverage).
		Msg("bill generated")

	if created.ClaimID != "" && created.InsuranceCoverage > 0 {
		s.sink.Notify(ctx, notify.Notification{
			Type:          notify.EventInsuranceClaimStatus,
			PatientID:     created.PatientID,
			AppointmentID: created.AppointmentID,
			PaymentID:     created.ID,
			Data: map[string]any{
				"claim_id": created.ClaimID,
				"status":   "submitted",
				"amount":   created.InsuranceCoverage,
			},
			OccurredAt: s.now(),
		})
	}
	return created, nil
}

// ProcessPayment settles a pending or failed payment. Settling a completed
// payment again is rejected and leaves it untouched.
func (s *Service) ProcessPayment(ctx context.Context, paymentID string, method PaymentMethod, details map[string]string) (*Payment, error) {
	ctx, span := tracer.Start(ctx, "billing.process_payment")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.payment_id", paymentID),
		attribute.String("clinic.payment_method", string(method)),
	)

	var settled *Payment
	err := s.locker.WithLock(ctx, redisclient.PaymentKey(paymentID), func(lockCtx context.Context) error {
		var err error
		settled, err = s.settle(lockCtx, paymentID, method, details)
		return err
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		err = s.lockBusy(ctx, paymentID)
	}
	if err != nil {
		return nil, fail(span, err)
	}
	return settled, nil
}

func (s *Service) settle(ctx context.Context, paymentID string, method PaymentMethod, details map[string]string) (*Payment, error) {
	p, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status.Settled() {
		s.metrics.ObserveSettlement(string(method), "rejected")
		return nil, alreadySettled(p)
	}
	if !method.Settleable() {
		s.metrics.ObserveSettlement(string(method), "rejected")
		return nil, ErrInvalidMethod
	}

	txnID := "local_" + uuid.NewString()
	if (method == MethodCard || method == MethodMixed) && p.PatientPortion > 0 && s.gateway != nil {
		res, err := s.gateway.Charge(ctx, ChargeRequest{
			PaymentID: p.ID,
			PatientID: p.PatientID,
			Amount:    p.PatientPortion,
			Method:    method,
			Details:   details,
		})
		reason := res.DeclineReason
		if err != nil {
			reason = "gateway error: " + err.Error()
		} else if !res.Approved && reason == "" {
			reason = "declined"
		}
		if err != nil || !res.Approved {
			s.metrics.ObserveSettlement(string(method), "declined")
			if _, ferr := s.markFailed(ctx, p.ID, reason); ferr != nil {
				return nil, ferr
			}
			return nil, domainerr.Wrap(domainerr.KindValidation, "payment declined: "+reason, ErrPaymentDeclined)
		}
		txnID = res.TransactionID
	}

	completed, err := s.repo.MarkCompleted(ctx, p.ID, method, txnID, s.now().UTC())
	if errors.Is(err, ErrPaymentNotFound) {
		// Settled by someone else after our read.
		current, getErr := s.repo.GetPayment(ctx, p.ID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, alreadySettled(current)
	}
	if err != nil {
		s.metrics.ObserveSettlement(string(method), "error")
		return nil, fmt.Errorf("complete payment: %w", err)
	}

	s.metrics.ObserveSettlement(string(method), "completed")
	s.logger.Info().
		Str("payment_id", completed.ID).
		Str("method", string(method)).
		Str("transaction_id", completed.TransactionID).
		Msg("payment completed")

	s.sink.Notify(ctx, notify.Notification{
		Type:          notify.EventPaymentSucceeded,
		PatientID:     completed.PatientID,
		AppointmentID: completed.AppointmentID,
		PaymentID:     completed.ID,
		Data: map[string]any{
			"amount":          completed.Amount,
			"patient_portion": completed.PatientPortion,
			"method":          string(completed.PaymentMethod),
			"transaction_id":  completed.TransactionID,
		},
		OccurredAt: s.now(),
	})
	return completed, nil
}

// HandlePaymentFailure records a failed settlement attempt.
func (s *Service) HandlePaymentFailure(ctx context.Context, paymentID, reason string) (*Payment, error) {
	ctx, span := tracer.Start(ctx, "billing.handle_payment_failure")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.payment_id", paymentID))

	var failed *Payment
	err := s.locker.WithLock(ctx, redisclient.PaymentKey(paymentID), func(lockCtx context.Context) error {
		var err error
		failed, err = s.markFailed(lockCtx, paymentID, reason)
		return err
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		err = s.lockBusy(ctx, paymentID)
	}
	if err != nil {
		return nil, fail(span, err)
	}
	return failed, nil
}

func (s *Service) markFailed(ctx context.Context, paymentID, reason string) (*Payment, error) {
	p, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status.Settled() {
		return nil, alreadySettled(p)
	}

	failed, err := s.repo.MarkFailed(ctx, paymentID, reason)
	if errors.Is(err, ErrPaymentNotFound) {
		current, getErr := s.repo.GetPayment(ctx, paymentID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, alreadySettled(current)
	}
	if err != nil {
		return nil, fmt.Errorf("fail payment: %w", err)
	}

	s.logger.Warn().
		Str("payment_id", paymentID).
		Str("reason", reason).
		Msg("payment failed")

	s.sink.Notify(ctx, notify.Notification{
		Type:          notify.EventPaymentFailed,
		PatientID:     failed.PatientID,
		AppointmentID: failed.AppointmentID,
		PaymentID:     failed.ID,
		Data: map[string]any{
			"amount": failed.PatientPortion,
			"reason": reason,
		},
		OccurredAt: s.now(),
	})
	return failed, nil
}

func (s *Service) GetPayment(ctx context.Context, id string) (*Payment, error) {
	p, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (s *Service) ListByAppointment(ctx context.Context, appointmentID string) ([]Payment, error) {
	if appointmentID == "" {
		return nil, ErrMissingAppointment
	}
	list, err := s.repo.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return list, nil
}

func validateBill(req GenerateBillRequest) error {
	if req.AppointmentID == "" {
		return ErrMissingAppointment
	}
	if req.PatientID == "" {
		return ErrMissingPatient
	}
	if req.Amount <= 0 {
		return ErrInvalidAmount
	}
	if req.InsuranceCoverage < 0 || req.PatientPortion < 0 {
		return ErrNegativeSplit
	}
	if req.Amount != req.InsuranceCoverage+req.PatientPortion {
		return ErrUnbalancedSplit
	}
	if req.PaymentMethod != "" && !req.PaymentMethod.Valid() {
		return domainerr.Validation(fmt.Sprintf("unknown payment method %q", req.PaymentMethod))
	}
	return nil
}

// lockBusy explains a payment lock that stayed held past the locker's wait.
// A settlement that finished meanwhile is reported like any settled payment.
func (s *Service) lockBusy(ctx context.Context, paymentID string) error {
	p, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if p.Status.Settled() {
		return alreadySettled(p)
	}
	return ErrPaymentInProgress
}

func alreadySettled(p *Payment) error {
	return domainerr.Wrap(domainerr.KindValidation,
		fmt.Sprintf("payment %s is already %s", p.ID, p.Status),
		ErrAlreadySettled)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
