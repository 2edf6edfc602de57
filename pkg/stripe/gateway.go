package stripe

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
)

// Intent statuses the checkout flow cares about.
const (
	IntentStatusSucceeded = "succeeded"
	IntentStatusCanceled  = "canceled"
)

// Intent is the slim view of a payment intent returned to callers.
type Intent struct {
	Ref          string
	ClientSecret string
	Status       string
}

// Gateway exposes the payment intent operations used by checkout.
type Gateway struct {
	client *Client
}

// NewGateway wraps the initialized Stripe client.
func NewGateway(client *Client) (*Gateway, error) {
	if client == nil {
		return nil, errors.New("stripe client is required")
	}
	return &Gateway{client: client}, nil
}

// CreateIntent opens a payment intent for the given amount. Metadata keys are
// carried onto the intent so webhooks can find their way back to the lock.
func (g *Gateway) CreateIntent(ctx context.Context, amountCents int, currency string, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(amountCents)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, err
	}
	return &Intent{Ref: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

// RetrieveStatus fetches the current status of a payment intent.
func (g *Gateway) RetrieveStatus(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", errors.New("payment intent ref is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(ref, params)
	if err != nil {
		return "", err
	}
	return string(pi.Status), nil
}

// CancelIntent voids an open payment intent. Already-terminal intents return
// an error from the API which callers may treat as non-fatal.
func (g *Gateway) CancelIntent(ctx context.Context, ref string) error {
	if ref == "" {
		return errors.New("payment intent ref is required")
	}
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	_, err := paymentintent.Cancel(ref, params)
	return err
}
