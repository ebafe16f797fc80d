package payments

import (
	"context"
	"fmt"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeClient implements Holder and Settler on manual-capture
// PaymentIntents: a hold is placed when a card payment is registered,
// captured when the payment surface reports success and released when it
// reports failure.
type StripeClient struct{}

// NewStripeClient wires the package-level stripe key. A nil client on the
// payment service means card holds are disabled entirely.
func NewStripeClient(apiKey string) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{}
}

// Hold places a manual-capture intent for amount cents. The trip id rides
// in the intent metadata and derives the idempotency key, so a retried
// registration cannot hold the rider's card twice.
func (s *StripeClient) Hold(ctx context.Context, tripID string, amount int64, currency, customerID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Description:   stripe.String(fmt.Sprintf("trip %s fare hold", tripID)),
	}
	params.Context = ctx
	params.SetIdempotencyKey("trip-hold-" + tripID)
	params.AddMetadata("trip_id", tripID)
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Capture collects the held amount once the payment settled.
func (s *StripeClient) Capture(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	_, err := paymentintent.Capture(paymentIntentID, params)
	return err
}

// Cancel releases the hold back to the rider's card.
func (s *StripeClient) Cancel(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	_, err := paymentintent.Cancel(paymentIntentID, params)
	return err
}
