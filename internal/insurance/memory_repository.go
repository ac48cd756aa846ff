package insurance

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryRepository struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		policies: make(map[string]*Policy),
		now:      time.Now,
	}
}

func (r *MemoryRepository) CreatePolicy(_ context.Context, p *Policy) (*Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.policies {
		if existing.PolicyNumber == p.PolicyNumber {
			return nil, ErrPolicyExists
		}
	}

	now := r.now()
	cp := *p
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.policies[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (r *MemoryRepository) ListActiveByPatient(_ context.Context, patientID string) ([]Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Policy
	for _, p := range r.policies {
		if p.PatientID == patientID && p.Status == PolicyActive {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndDate.Equal(out[j].EndDate) {
			return out[i].EndDate.After(out[j].EndDate)
		}
		return out[i].PolicyNumber < out[j].PolicyNumber
	})
	return out, nil
}

func (r *MemoryRepository) ExpireLapsed(_ context.Context, today time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, p := range r.policies {
		if p.Status == PolicyActive && p.EndDate.Before(today) {
			p.Status = PolicyExpired
			p.UpdatedAt = r.now()
			n++
		}
	}
	return n, nil
}
