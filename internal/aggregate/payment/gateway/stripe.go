package gateway

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/refund"
)

// StripeGateway implements PaymentGateway through Stripe's
// PaymentIntent API.
type StripeGateway struct {
	currency string
}

// StripeConfig configures the Stripe gateway.
type StripeConfig struct {
	SecretKey string
	Currency  string
}

func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "usd"
	}
	stripe.Key = cfg.SecretKey
	return &StripeGateway{currency: currency}, nil
}

func (g *StripeGateway) Capture(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	currency := req.Currency
	if currency == "" {
		currency = g.currency
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Confirm: stripe.Bool(true),
		Metadata: map[string]string{
			"payment_id":     req.PaymentID,
			"correlation_id": req.CorrelationID,
		},
	}
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return ChargeResult{TransactionID: pi.ID, Status: string(pi.Status)}, nil
	default:
		return ChargeResult{}, fmt.Errorf("stripe: payment intent %s not captured (status=%s)", pi.ID, pi.Status)
	}
}

func (g *StripeGateway) Refund(ctx context.Context, transactionID string, amount int64) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(transactionID),
	}
	if amount > 0 {
		params.Amount = stripe.Int64(amount)
	}
	params.Context = ctx

	if _, err := refund.New(params); err != nil {
		return fmt.Errorf("stripe: refund: %w", err)
	}
	return nil
}

func (g *StripeGateway) Name() string { return "stripe" }
