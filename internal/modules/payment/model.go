// README: Payment settlement contract used to gate booking confirmation.
package payment

import (
	"context"

	"carpool/internal/apperr"
	"carpool/internal/types"
)

type Method string

const (
	MethodCash Method = "cash"
	MethodCard Method = "card"
)

type Request struct {
	BookingID types.ID
	PayerID   types.ID
	Amount    types.Money
	Method    Method
	// PaymentMethodID is the card token; required for MethodCard.
	PaymentMethodID string
	// AttemptID is chosen by the client per payment attempt. Resending the
	// same attempt never charges twice; a new one retries after a decline.
	AttemptID string
}

type Receipt struct {
	Method    Method `json:"method"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// Settler collects payment for a booking. A nil error means the booking may
// be confirmed.
type Settler interface {
	Settle(ctx context.Context, req Request) (Receipt, error)
}

var (
	ErrUnknownMethod     = apperr.Validation("invalid_payment_method", "payment method must be cash or card")
	ErrMissingCard       = apperr.Validation("missing_payment_method_id", "payment_method_id is required for card payments")
	ErrMethodUnavailable = apperr.Upstream("payment_method_unavailable", "card payments are not configured")
	ErrDeclined          = apperr.Upstream("payment_declined", "payment was declined")
	ErrProvider          = apperr.Upstream("payment_provider_error", "payment provider is unavailable")
)
