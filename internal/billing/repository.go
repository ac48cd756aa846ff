package billing

import (
	"context"
	"time"

	"github.com/hackgods/clinic-scheduling-billing/internal/domainerr"
)

var ErrPaymentNotFound = domainerr.NotFound("payment not found")

type Repository interface {
	CreatePayment(ctx context.Context, p *Payment) (*Payment, error)
	GetPayment(ctx context.Context, id string) (*Payment, error)
	ListByAppointment(ctx context.Context, appointmentID string) ([]Payment, error)

	// MarkCompleted and MarkFailed only apply to pending or failed payments.
	// ErrPaymentNotFound means no such payment was in a settleable state.
	MarkCompleted(ctx context.Context, id string, method PaymentMethod, transactionID string, paidAt time.Time) (*Payment, error)
	MarkFailed(ctx context.Context, id, reason string) (*Payment, error)
}
