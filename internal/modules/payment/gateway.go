// README: Settlement gateway: cash is recorded as-is, cards are charged through Stripe.
package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// IntentCreator is the subset of the Stripe PaymentIntents client used here.
type IntentCreator interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type Gateway struct {
	intents IntentCreator
	log     logrus.FieldLogger
}

// NewStripeIntents returns the PaymentIntents client for secretKey, or nil
// when card payments are not configured.
func NewStripeIntents(secretKey string) IntentCreator {
	if secretKey == "" {
		return nil
	}
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return sc.PaymentIntents
}

// NewGateway builds the settler. intents may be nil, in which case card
// payments fail with ErrMethodUnavailable.
func NewGateway(intents IntentCreator, log logrus.FieldLogger) *Gateway {
	return &Gateway{intents: intents, log: log}
}

func (g *Gateway) Settle(ctx context.Context, req Request) (Receipt, error) {
	switch req.Method {
	case MethodCash:
		// Cash is handed to the driver; nothing to collect up front.
		return Receipt{Method: MethodCash, Reference: "cash:" + string(req.BookingID), Status: "pending_collection"}, nil
	case MethodCard:
		return g.chargeCard(ctx, req)
	default:
		return Receipt{}, ErrUnknownMethod
	}
}

func (g *Gateway) chargeCard(ctx context.Context, req Request) (Receipt, error) {
	if req.PaymentMethodID == "" {
		return Receipt{}, ErrMissingCard
	}
	if g.intents == nil {
		return Receipt{}, ErrMethodUnavailable
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount.Amount),
		Currency:           stripe.String(strings.ToLower(req.Amount.Currency)),
		PaymentMethod:      stripe.String(req.PaymentMethodID),
		Description:        stripe.String("Carpool booking " + string(req.BookingID)),
		ConfirmationMethod: stripe.String("manual"),
		Confirm:            stripe.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey(req))
	params.AddMetadata("booking_id", string(req.BookingID))
	params.AddMetadata("payer_id", string(req.PayerID))

	log := g.log.WithFields(logrus.Fields{"booking_id": req.BookingID, "amount": req.Amount.String()})
	pi, err := g.intents.New(params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard {
			log.WithField("code", se.Code).Info("card declined")
			return Receipt{}, ErrDeclined.WithMessage(se.Msg)
		}
		log.WithError(err).Warn("stripe payment intent failed")
		return Receipt{}, ErrProvider
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		log.WithField("status", pi.Status).Info("payment intent not settled")
		return Receipt{}, ErrDeclined.WithMessage("payment requires further action: " + string(pi.Status))
	}
	return Receipt{Method: MethodCard, Reference: pi.ID, Status: string(pi.Status)}, nil
}

// idempotencyKey scopes a charge to the booking, the card and the client's
// attempt. Stripe replays stored results, declines included, for a reused key.
func idempotencyKey(req Request) string {
	key := "booking-" + string(req.BookingID) + "-" + req.PaymentMethodID
	if req.AttemptID != "" {
		key += "-" + req.AttemptID
	}
	return key
}
