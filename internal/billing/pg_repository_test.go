package billing

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paymentCols = []string{
	"id", "appointment_id", "patient_id", "amount", "insurance_coverage", "patient_portion",
	"payment_method", "status", "claim_id", "transaction_id", "failure_reason", "paid_at", "created_at", "updated_at",
}

func paymentRow(status PaymentStatus, method PaymentMethod, txn string, paidAt any) *pgxmock.Rows {
	return pgxmock.NewRows(paymentCols).AddRow(
		"pay-1", "a1", "p1", int64(5000), int64(3500), int64(1500),
		method, status, "claim-1", txn, "", paidAt, testNow, testNow,
	)
}

func TestPgGetPaymentNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM payments\s+WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = NewPgRepository(mock).GetPayment(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestPgMarkCompletedIsConditional(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewPgRepository(mock)

	paidAt := testNow
	mock.ExpectQuery(`(?s)UPDATE payments\s+SET status = 'completed'.*AND status IN \('pending', 'failed'\)`).
		WithArgs("pay-1", MethodCash, "local_1", paidAt).
		WillReturnRows(paymentRow(PaymentCompleted, MethodCash, "local_1", &paidAt))

	got, err := repo.MarkCompleted(context.Background(), "pay-1", MethodCash, "local_1", paidAt)
	require.NoError(t, err)
	assert.Equal(t, PaymentCompleted, got.Status)
	require.NotNil(t, got.PaidAt)

	mock.ExpectQuery(`UPDATE payments`).
		WithArgs("pay-1", MethodCash, "local_2", paidAt).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.MarkCompleted(context.Background(), "pay-1", MethodCash, "local_2", paidAt)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreatePayment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := &Payment{
		ID: "pay-1", AppointmentID: "a1", PatientID: "p1", Amount: 5000, InsuranceCoverage: 3500,
		PatientPortion: 1500, PaymentMethod: MethodPending, Status: PaymentPending, ClaimID: "claim-1",
	}
	mock.ExpectQuery(`INSERT INTO payments`).
		WithArgs(p.ID, p.AppointmentID, p.PatientID, p.Amount, p.InsuranceCoverage, p.PatientPortion, p.PaymentMethod, p.Status, p.ClaimID).
		WillReturnRows(paymentRow(PaymentPending, MethodPending, "", nil))

	got, err := NewPgRepository(mock).CreatePayment(context.Background(), p)
	require.NoError(t, err)
	assert.Nil(t, got.PaidAt)
	assert.Equal(t, got.Amount, got.InsuranceCoverage+got.PatientPortion)
	assert.NoError(t, mock.ExpectationsWereMet())
}
