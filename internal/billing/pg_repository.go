package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-scheduling-billing/internal/db"
)

const paymentColumns = `id, appointment_id, patient_id, amount, insurance_coverage, patient_portion, payment_method, status, claim_id, transaction_id, failure_reason, paid_at, created_at, updated_at`

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&p.PatientID,
		&p.Amount,
		&p.InsuranceCoverage,
		&p.PatientPortion,
		&p.PaymentMethod,
		&p.Status,
		&p.ClaimID,
		&p.TransactionID,
		&p.FailureReason,
		&p.PaidAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) CreatePayment(ctx context.Context, p *Payment) (*Payment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO payments (id, appointment_id, patient_id, amount, insurance_coverage, patient_portion, payment_method, status, claim_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+paymentColumns,
		p.ID, p.AppointmentID, p.PatientID, p.Amount, p.InsuranceCoverage, p.PatientPortion, p.PaymentMethod, p.Status, p.ClaimID)

	created, err := scanPayment(row)
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetPayment(ctx context.Context, id string) (*Payment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = $1
	`, id)
	return scanPayment(row)
}

func (r *PgRepository) ListByAppointment(ctx context.Context, appointmentID string) ([]Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE appointment_id = $1
		ORDER BY created_at
	`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var result []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) MarkCompleted(ctx context.Context, id string, method PaymentMethod, transactionID string, paidAt time.Time) (*Payment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE payments
		SET status = 'completed',
		    payment_method = $2,
		    transaction_id = $3,
		    paid_at = $4,
		    failure_reason = '',
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'failed')
		RETURNING `+paymentColumns,
		id, method, transactionID, paidAt)
	return scanPayment(row)
}

func (r *PgRepository) MarkFailed(ctx context.Context, id, reason string) (*Payment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE payments
		SET status = 'failed',
		    failure_reason = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'failed')
		RETURNING `+paymentColumns,
		id, reason)
	return scanPayment(row)
}
