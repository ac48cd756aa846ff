package billing

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling-billing/internal/domainerr"
	"github.com/hackgods/clinic-scheduling-billing/internal/insurance"
	"github.com/hackgods/clinic-scheduling-billing/internal/notify"
	redisclient "github.com/hackgods/clinic-scheduling-billing/internal/redis"
)

var testNow = time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recordingSink) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recordingSink) count(t notify.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.got {
		if e.Type == t {
			n++
		}
	}
	return n
}

func newEvaluator(t *testing.T, pct float64, maxCov int64) *insurance.Evaluator {
	t.Helper()
	store := insurance.NewMemoryRepository()
	_, err := store.CreatePolicy(context.Background(), &insurance.Policy{
		ID:                 "pol-1",
		PatientID:          "p1",
		PolicyNumber:       "POL-1",
		Provider:           "Acme Health",
		CoveragePercentage: pct,
		MaxCoverage:        maxCov,
		StartDate:          testNow.AddDate(-1, 0, 0),
		EndDate:            testNow.AddDate(1, 0, 0),
		Status:             insurance.PolicyActive,
	})
	require.NoError(t, err)
	return insurance.NewEvaluator(store, insurance.WithClock(func() time.Time { return testNow }))
}

type fixture struct {
	svc     *Service
	repo    *MemoryRepository
	sink    *recordingSink
	gateway *StaticGateway
}

func newFixture(t *testing.T, elig EligibilityChecker) fixture {
	t.Helper()
	if elig == nil {
		elig = newEvaluator(t, 70, 100000)
	}
	f := fixture{
		repo:    NewMemoryRepository(),
		sink:    &recordingSink{},
		gateway: &StaticGateway{Result: ChargeResult{Approved: true, TransactionID: "txn_gateway"}},
	}
	f.svc = NewService(f.repo, elig, f.gateway, nil, f.sink, WithClock(func() time.Time { return testNow }))
	return f
}

func (f fixture) pendingPayment(t *testing.T, amount, coverage int64) *Payment {
	t.Helper()
	p, err := f.svc.GenerateBill(context.Background(), GenerateBillRequest{
		AppointmentID:     "a1",
		PatientID:         "p1",
		Amount:            amount,
		InsuranceCoverage: coverage,
		PatientPortion:    amount - coverage,
	})
	require.NoError(t, err)
	return p
}

func TestCalculateBillWithInsurance(t *testing.T) {
	tests := []struct {
		name     string
		pct      float64
		maxCov   int64
		coverage int64
		portion  int64
	}{
		{"seventy percent", 70, 100000, 3500, 1500},
		{"full coverage", 100, 100000, 5000, 0},
		{"capped", 70, 1000, 1000, 4000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, newEvaluator(t, tt.pct, tt.maxCov))

			bill, err := f.svc.CalculateBill(context.Background(), "a1", 5000, "p1")

			require.NoError(t, err)
			assert.Equal(t, tt.coverage, bill.InsuranceCoverage)
			assert.Equal(t, tt.portion, bill.PatientPortion)
			assert.Equal(t, bill.BaseAmount, bill.InsuranceCoverage+bill.PatientPortion)
			assert.True(t, bill.Insured)
			assert.NotEmpty(t, bill.ClaimID)
			assert.Empty(t, f.sink.got, "calculation has no side effects")
		})
	}
}

func TestCalculateBillUninsured(t *testing.T) {
	f := newFixture(t, nil)

	bill, err := f.svc.CalculateBill(context.Background(), "a1", 5000, "p-uninsured")

	require.NoError(t, err)
	assert.Zero(t, bill.InsuranceCoverage)
	assert.Equal(t, int64(5000), bill.PatientPortion)
	assert.False(t, bill.Insured)
}

type erroringChecker struct{ err error }

func (e erroringChecker) CheckEligibility(context.Context, string, int64) (*insurance.Eligibility, error) {
	return nil, e.err
}

type overgenerousChecker struct{}

func (overgenerousChecker) CheckEligibility(context.Context, string, int64) (*insurance.Eligibility, error) {
	return &insurance.Eligibility{Eligible: true, CoveragePercentage: 100, ApprovedAmount: 1 << 30, ClaimID: "c1"}, nil
}

func TestCalculateBillPropagatesOtherErrors(t *testing.T) {
	boom := errors.New("policy store unavailable")
	f := newFixture(t, erroringChecker{err: boom})

	_, err := f.svc.CalculateBill(context.Background(), "a1", 5000, "p1")

	assert.ErrorIs(t, err, boom)
}

func TestCalculateBillNeverCoversMoreThanBase(t *testing.T) {
	f := newFixture(t, overgenerousChecker{})

	bill, err := f.svc.CalculateBill(context.Background(), "a1", 5000, "p1")

	require.NoError(t, err)
	assert.Equal(t, int64(5000), bill.InsuranceCoverage)
	assert.Zero(t, bill.PatientPortion)
}

func TestCalculateBillValidation(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.CalculateBill(context.Background(), "a1", 0, "p1")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.svc.CalculateBill(context.Background(), "a1", 100, "")
	assert.ErrorIs(t, err, ErrMissingPatient)
}

func TestGenerateBill(t *testing.T) {
	f := newFixture(t, nil)

	p, err := f.svc.GenerateBill(context.Background(), GenerateBillRequest{
		AppointmentID:     "a1",
		PatientID:         "p1",
		Amount:            5000,
		InsuranceCoverage: 3500,
		PatientPortion:    1500,
		ClaimID:           "claim-1",
	})

	require.NoError(t, err)
	assert.Equal(t, PaymentPending, p.Status)
	assert.Equal(t, MethodPending, p.PaymentMethod)
	assert.Nil(t, p.PaidAt)
	require.Len(t, f.sink.got, 1)
	assert.Equal(t, notify.EventInsuranceClaimStatus, f.sink.got[0].Type)
	assert.Equal(t, "submitted", f.sink.got[0].Data["status"])
}

func TestGenerateBillWithoutClaimSendsNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.pendingPayment(t, 5000, 0)
	assert.Empty(t, f.sink.got)
}

func TestGenerateBillValidation(t *testing.T) {
	valid := GenerateBillRequest{AppointmentID: "a1", PatientID: "p1", Amount: 100, InsuranceCoverage: 40, PatientPortion: 60}
	tests := []struct {
		name string
		mut  func(*GenerateBillRequest)
		want error
	}{
		{"missing appointment", func(r *GenerateBillRequest) { r.AppointmentID = "" }, ErrMissingAppointment},
		{"missing patient", func(r *GenerateBillRequest) { r.PatientID = "" }, ErrMissingPatient},
		{"zero amount", func(r *GenerateBillRequest) { r.Amount = 0 }, ErrInvalidAmount},
		{"negative coverage", func(r *GenerateBillRequest) { r.InsuranceCoverage = -40; r.PatientPortion = 140 }, ErrNegativeSplit},
		{"unbalanced", func(r *GenerateBillRequest) { r.PatientPortion = 59 }, ErrUnbalancedSplit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			req := valid
			tt.mut(&req)

			_, err := f.svc.GenerateBill(context.Background(), req)

			assert.ErrorIs(t, err, tt.want)
			assert.True(t, domainerr.IsValidation(err))
		})
	}

	f := newFixture(t, nil)
	req := valid
	req.PaymentMethod = "crypto"
	_, err := f.svc.GenerateBill(context.Background(), req)
	assert.True(t, domainerr.IsValidation(err))
}

func TestProcessPaymentCash(t *testing.T) {
	f := newFixture(t, nil)
	p := f.pendingPayment(t, 5000, 3500)

	done, err := f.svc.ProcessPayment(context.Background(), p.ID, MethodCash, nil)

	require.NoError(t, err)
	assert.Equal(t, PaymentCompleted, done.Status)
	assert.Equal(t, MethodCash, done.PaymentMethod)
	assert.NotEmpty(t, done.TransactionID)
	require.NotNil(t, done.PaidAt)
	assert.Equal(t, testNow, *done.PaidAt)
	assert.Empty(t, f.gateway.Requests(), "cash settles without the gateway")
	assert.Equal(t, 1, f.sink.count(notify.EventPaymentSucceeded))
}

func TestProcessPaymentCardUsesGateway(t *testing.T) {
	f := newFixture(t, nil)
	p := f.pendingPayment(t, 5000, 3500)

	done, err := f.svc.ProcessPayment(context.Background(), p.ID, MethodCard, map[string]string{"last4": "4242"})

	require.NoError(t, err)
	assert.Equal(t, "txn_gateway", done.TransactionID)
	reqs := f.gateway.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, int64(1500), reqs[0].Amount)
	assert.Equal(t, "4242", reqs[0].Details["last4"])
}

func TestProcessPaymentFullyCoveredSkipsGateway(t *testing.T) {
	f := newFixture(t, nil)
	p := f.pendingPayment(t, 5000, 5000)

	_, err := f.svc.ProcessPayment(context.Background(), p.ID, MethodMixed, nil)

	require.NoError(t, err)
	assert.Empty(t, f.gateway.Requests())
}

func TestProcessPaymentIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	p := f.pendingPayment(t, 5000, 3500)
	ctx := context.Background()

	first, err := f.svc.ProcessPayment(ctx, p.ID, MethodCash, nil)
	require.NoError(t, err)

	_, err = f.svc.ProcessPayment(ctx, p.ID, MethodCard, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadySettled)
	assert.True(t, domainerr.IsValidation(err))

	after, err := f.svc.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, after.TransactionID)
	assert.Equal(t, *first.PaidAt, *after.PaidAt)
	assert.Equal(t, MethodCash, after.PaymentMethod)
	assert.Equal(t, 1, f.sink.count(notify.EventPaymentSucceeded))
	assert.Empty(t, f.gateway.Requests())
}

func TestProcessPaymentUnknown(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.ProcessPayment(context.Background(), "missing", MethodCash, nil)

	assert.True(t, domainerr.IsNotFound(err))
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestProcessPaymentInvalidMethod(t *testing.T) {
	f := newFixture(t, nil)
	p := f.pendingPayment(t, 5000, 0)

	for _, m := range []PaymentMethod{MethodPending, "bitcoin", ""} {
		_, err := f.svc.ProcessPayment(context.Background(), p.ID, m, nil)
		assert.ErrorIs(t, err, ErrInvalidMethod)
	}

	got, _ := f.svc.GetPayment(context.Background(), p.ID)
	assert.Equal(t, PaymentPending, got.Status)
}

func TestProcessPaymentDeclinedThenRetried(t *testing.T) {
	f := newFixture(t, nil)
	p := f.pendingPayment(t, 5000, 0)
	ctx := context.Background()

	f.gateway.Result = ChargeResult{DeclineReason: "insufficient funds"}
	_, err := f.svc.ProcessPayment(ctx, p.ID, MethodCard, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPaymentDeclined)
	assert.True(t, domainerr.IsValidation(err))

	failed, err := f.svc.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentFailed, failed.Status)
	assert.Equal(t, "insufficient funds", failed.FailureReason)
	assert.Equal(t, 1, f.sink.count(notify.EventPaymentFailed))

	done, err := f.svc.ProcessPayment(ctx, p.ID, MethodCash, nil)
	require.NoError(t, err)
	assert.Equal(t, PaymentCompleted, done.Status)
	assert.Empty(t, done.FailureReason)
}

func TestProcessPaymentGatewayError(t *testing.T) {
	f := newFixture(t, nil)
	p := f.pendingPayment(t, 5000, 0)
	f.gateway.Err = errors.New("timeout")

	_, err := f.svc.ProcessPayment(context.Background(), p.ID, MethodCard, nil)

	assert.ErrorIs(t, err, ErrPaymentDeclined)
	got, _ := f.svc.GetPayment(context.Background(), p.ID)
	assert.Equal(t, PaymentFailed, got.Status)
	assert.Contains(t, got.FailureReason, "timeout")
}

func TestConcurrentProcessPaymentSettlesOnce(t *testing.T) {
	f := newFixture(t, nil)
	p := f.pendingPayment(t, 5000, 0)

	const n = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.ProcessPayment(context.Background(), p.ID, MethodCash, nil); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, f.sink.count(notify.EventPaymentSucceeded))
}

type busyLocker struct{}

func (busyLocker) WithLock(context.Context, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestProcessPaymentLockBusy(t *testing.T) {
	f := newFixture(t, nil)
	p := f.pendingPayment(t, 5000, 0)
	svc := NewService(f.repo, newEvaluator(t, 70, 1000), f.gateway, busyLocker{}, f.sink)

	_, err := svc.ProcessPayment(context.Background(), p.ID, MethodCash, nil)

	assert.ErrorIs(t, err, ErrPaymentInProgress)
	assert.True(t, domainerr.IsConflict(err))
}

func TestProcessPaymentLockBusyAfterSettlement(t *testing.T) {
	f := newFixture(t, nil)
	p := f.pendingPayment(t, 5000, 0)
	_, err := f.svc.ProcessPayment(context.Background(), p.ID, MethodCash, nil)
	require.NoError(t, err)

	svc := NewService(f.repo, newEvaluator(t, 70, 1000), f.gateway, busyLocker{}, f.sink)

	_, err = svc.ProcessPayment(context.Background(), p.ID, MethodCash, nil)
	assert.ErrorIs(t, err, ErrAlreadySettled)
	assert.True(t, domainerr.IsValidation(err))

	_, err = svc.HandlePaymentFailure(context.Background(), p.ID, "late decline")
	assert.ErrorIs(t, err, ErrAlreadySettled)

	_, err = svc.ProcessPayment(context.Background(), "missing", MethodCash, nil)
	assert.True(t, domainerr.IsNotFound(err))
}

func TestHandlePaymentFailure(t *testing.T) {
	f := newFixture(t, nil)
	p := f.pendingPayment(t, 5000, 0)
	ctx := context.Background()

	failed, err := f.svc.HandlePaymentFailure(ctx, p.ID, "card expired")
	require.NoError(t, err)
	assert.Equal(t, PaymentFailed, failed.Status)
	assert.Equal(t, "card expired", failed.FailureReason)

	_, err = f.svc.HandlePaymentFailure(ctx, "missing", "x")
	assert.True(t, domainerr.IsNotFound(err))

	_, err = f.svc.ProcessPayment(ctx, p.ID, MethodCash, nil)
	require.NoError(t, err)
	_, err = f.svc.HandlePaymentFailure(ctx, p.ID, "late failure")
	assert.ErrorIs(t, err, ErrAlreadySettled)

	got, _ := f.svc.GetPayment(ctx, p.ID)
	assert.Equal(t, PaymentCompleted, got.Status)
}

func TestListByAppointment(t *testing.T) {
	f := newFixture(t, nil)
	f.pendingPayment(t, 5000, 0)
	f.pendingPayment(t, 2000, 0)

	list, err := f.svc.ListByAppointment(context.Background(), "a1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = f.svc.ListByAppointment(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingAppointment)
}

func TestSimulatedGatewayApprovalRate(t *testing.T) {
	always := NewSimulatedGateway(1, rand.New(rand.NewPCG(1, 2)))
	never := NewSimulatedGateway(0, rand.New(rand.NewPCG(1, 2)))

	for i := 0; i < 50; i++ {
		res, err := always.Charge(context.Background(), ChargeRequest{Amount: 100})
		require.NoError(t, err)
		assert.True(t, res.Approved)
		assert.NotEmpty(t, res.TransactionID)

		res, err = never.Charge(context.Background(), ChargeRequest{Amount: 100})
		require.NoError(t, err)
		assert.False(t, res.Approved)
		assert.NotEmpty(t, res.DeclineReason)
	}
}

func TestSimulatedGatewayHonoursContext(t *testing.T) {
	g := NewSimulatedGateway(1, nil)
	g.Latency = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Charge(ctx, ChargeRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}
