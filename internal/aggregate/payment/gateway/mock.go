package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockGateway simulates a payment processor for tests and load runs,
// grounded on the same shape as the Stripe gateway (success rate plus
// a simulated delay) without any real network dependency.
type MockGateway struct {
	mu             sync.Mutex
	successRate    float64
	delay          time.Duration
	failureReasons []string
	transactions   map[string]bool // transactionID -> captured
}

func NewMockGateway(successRate float64, delay time.Duration) *MockGateway {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	return &MockGateway{
		successRate: successRate,
		delay:       delay,
		failureReasons: []string{
			"insufficient_funds", "card_declined", "expired_card", "processing_error",
		},
		transactions: make(map[string]bool),
	}
}

func (g *MockGateway) Capture(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if g.delay > 0 {
		select {
		case <-ctx.Done():
			return ChargeResult{}, ctx.Err()
		case <-time.After(g.delay):
		}
	}

	if rand.Float64() >= g.successRate {
		reason := g.failureReasons[rand.Intn(len(g.failureReasons))]
		return ChargeResult{}, fmt.Errorf("mock gateway: %s", reason)
	}

	txnID := "mock_txn_" + uuid.New().String()[:12]
	g.mu.Lock()
	g.transactions[txnID] = true
	g.mu.Unlock()
	return ChargeResult{TransactionID: txnID, Status: "succeeded"}, nil
}

func (g *MockGateway) Refund(ctx context.Context, transactionID string, amount int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.transactions[transactionID] {
		return fmt.Errorf("mock gateway: unknown transaction %s", transactionID)
	}
	return nil
}

func (g *MockGateway) Name() string { return "mock" }

// SetSuccessRate adjusts the simulated success rate, used by tests
// that need to force a decline.
func (g *MockGateway) SetSuccessRate(rate float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	g.successRate = rate
}
