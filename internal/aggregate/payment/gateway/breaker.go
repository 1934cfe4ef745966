package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned in place of the gateway's own error once
// the breaker has tripped, so callers can tell a declined charge apart
// from a gateway outage without inspecting gobreaker internals.
var ErrCircuitOpen = errors.New("payment gateway circuit is open")

// BreakerGateway wraps a PaymentGateway with a circuit breaker: 5
// consecutive failures opens the circuit, it stays open 30s, and 2
// consecutive half-open successes close it again.
type BreakerGateway struct {
	inner PaymentGateway
	cb    *gobreaker.CircuitBreaker[ChargeResult]
}

func NewBreakerGateway(inner PaymentGateway) *BreakerGateway {
	settings := gobreaker.Settings{
		Name:        "payment-gateway-" + inner.Name(),
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerGateway{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[ChargeResult](settings),
	}
}

func (g *BreakerGateway) Capture(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	result, err := g.cb.Execute(func() (ChargeResult, error) {
		return g.inner.Capture(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ChargeResult{}, ErrCircuitOpen
		}
		return ChargeResult{}, err
	}
	return result, nil
}

func (g *BreakerGateway) Refund(ctx context.Context, transactionID string, amount int64) error {
	// Refunds are an admin-initiated, low-volume path; they ride
	// through uncounted so a spike of declined captures doesn't block
	// an unrelated refund.
	return g.inner.Refund(ctx, transactionID, amount)
}

func (g *BreakerGateway) Name() string { return g.inner.Name() }
