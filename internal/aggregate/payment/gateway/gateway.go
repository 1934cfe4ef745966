// Package gateway wraps external payment processors behind a single
// interface so the payment aggregate's reducer can treat a charge as
// an opaque async effect dependency.
package gateway

import "context"

// ChargeRequest describes a charge to submit to the gateway. Amount is
// in the currency's smallest unit (e.g. cents), matching how the
// reservation saga carries amounts.
type ChargeRequest struct {
	PaymentID     string
	Amount        int64
	Currency      string
	Method        string
	CorrelationID string
}

// ChargeResult is returned on a successful charge.
type ChargeResult struct {
	TransactionID string
	Status        string
}

// PaymentGateway is the boundary the payment aggregate's Future effect
// calls through; Capture returning an error is a gateway failure (the
// circuit breaker may be the source), not necessarily a card decline.
type PaymentGateway interface {
	Capture(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, transactionID string, amount int64) error
	Name() string
}
