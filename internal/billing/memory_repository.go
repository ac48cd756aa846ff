package billing

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryRepository struct {
	mu       sync.RWMutex
	payments map[string]*Payment
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		payments: make(map[string]*Payment),
		now:      time.Now,
	}
}

func clonePayment(p *Payment) *Payment {
	cp := *p
	if p.PaidAt != nil {
		t := *p.PaidAt
		cp.PaidAt = &t
	}
	return &cp
}

func (r *MemoryRepository) CreatePayment(_ context.Context, p *Payment) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := clonePayment(p)
	now := r.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.payments[stored.ID] = stored
	return clonePayment(stored), nil
}

func (r *MemoryRepository) GetPayment(_ context.Context, id string) (*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (r *MemoryRepository) ListByAppointment(_ context.Context, appointmentID string) ([]Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Payment
	for _, p := range r.payments {
		if p.AppointmentID == appointmentID {
			out = append(out, *clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) MarkCompleted(_ context.Context, id string, method PaymentMethod, transactionID string, paidAt time.Time) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok || p.Status.Settled() {
		return nil, ErrPaymentNotFound
	}
	p.Status = PaymentCompleted
	p.PaymentMethod = method
	p.TransactionID = transactionID
	p.PaidAt = &paidAt
	p.FailureReason = ""
	p.UpdatedAt = r.now()
	return clonePayment(p), nil
}

func (r *MemoryRepository) MarkFailed(_ context.Context, id, reason string) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok || p.Status.Settled() {
		return nil, ErrPaymentNotFound
	}
	p.Status = PaymentFailed
	p.FailureReason = reason
	p.UpdatedAt = r.now()
	return clonePayment(p), nil
}
