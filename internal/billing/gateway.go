package billing

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ChargeRequest struct {
	PaymentID string
	PatientID string
	Amount    int64
	Method    PaymentMethod
	Details   map[string]string
}

type ChargeResult struct {
	Approved      bool
	TransactionID string
	DeclineReason string
}

// PaymentGateway charges the patient's share of a bill. A declined charge is
// a result, not an error; errors mean the gateway could not be reached.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// SimulatedGateway approves charges with probability ApprovalRate.
type SimulatedGateway struct {
	ApprovalRate float64
	Latency      time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSimulatedGateway uses rnd for approval draws; nil seeds from the clock.
func NewSimulatedGateway(approvalRate float64, rnd *rand.Rand) *SimulatedGateway {
	if rnd == nil {
		seed := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &SimulatedGateway{ApprovalRate: approvalRate, rnd: rnd}
}

func (g *SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if g.Latency > 0 {
		select {
		case <-time.After(g.Latency):
		case <-ctx.Done():
			return ChargeResult{}, ctx.Err()
		}
	}

	g.mu.Lock()
	draw := g.rnd.Float64()
	g.mu.Unlock()

	if draw >= g.ApprovalRate {
		return ChargeResult{DeclineReason: "card declined by issuer"}, nil
	}
	return ChargeResult{Approved: true, TransactionID: "txn_" + uuid.NewString()}, nil
}

// StaticGateway returns the same answer for every charge and records requests.
type StaticGateway struct {
	Result ChargeResult
	Err    error

	mu       sync.Mutex
	requests []ChargeRequest
}

func (g *StaticGateway) Charge(_ context.Context, req ChargeRequest) (ChargeResult, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	return g.Result, g.Err
}

func (g *StaticGateway) Requests() []ChargeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ChargeRequest(nil), g.requests...)
}
