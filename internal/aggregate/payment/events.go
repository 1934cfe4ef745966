package payment

const SchemaVersion = 1

type PaymentInitiated struct {
	ReservationID string `json:"reservation_id"`
	Amount        int64  `json:"amount"`
	Method        string `json:"method"`
	CorrelationID string `json:"correlation_id"`
}

type PaymentCaptured struct {
	TransactionID string `json:"transaction_id"`
}

type PaymentFailed struct {
	Reason string `json:"reason"`
}

type PaymentRefunded struct {
	Reason string `json:"reason"`
}

const (
	EventTypePaymentInitiated = "PaymentInitiated"
	EventTypePaymentCaptured  = "PaymentCaptured"
	EventTypePaymentFailed    = "PaymentFailed"
	EventTypePaymentRefunded  = "PaymentRefunded"
)
