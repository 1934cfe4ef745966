package payment

import "github.com/prohmpiriya/ticketcore/internal/eventstore"

// Action is the payment aggregate's sum type: external commands, the
// gateway's resolving signals, and the internal step-continuation kind
// used to gate a reaction on its append having durably succeeded.
type Action struct {
	Kind string

	ProcessPayment *ProcessPaymentCmd
	RefundPayment  *RefundPaymentCmd

	GatewayCaptured *GatewayCapturedSignal
	GatewayFailed   *GatewayFailedSignal

	step             *stepAppended
	ValidationFailed *ValidationFailedEvt
}

const (
	KindProcessPayment = "ProcessPayment"
	KindRefundPayment  = "RefundPayment"

	KindGatewayCaptured = "GatewayCaptured"
	KindGatewayFailed   = "GatewayFailed"

	KindValidationFailed = "ValidationFailed"

	kindStepAppended = "stepAppended"
)

// stepAppended carries the version and next reaction once a step's
// event has durably landed, the same chained-continuation shape the
// reservation saga uses for the same reason: a flat effects list
// doesn't gate "publish only if the append above it succeeded".
type stepAppended struct {
	Version eventstore.Version
	Next    string
}

const (
	nextAfterInitiated = "after_initiated"
	nextAfterCaptured  = "after_captured"
	nextAfterFailed    = "after_failed"
	nextAfterRefunded  = "after_refunded"
)

type ProcessPaymentCmd struct {
	PaymentID     string
	ReservationID string
	Amount        int64
	Method        string
	CorrelationID string
}

type RefundPaymentCmd struct {
	PaymentID string
	Reason    string
}

type GatewayCapturedSignal struct{ TransactionID string }
type GatewayFailedSignal struct{ Reason string }

type ValidationFailedEvt struct{ Error string }
