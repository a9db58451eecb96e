package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// ErrIntentNotSucceeded indicates the payment intent has not completed.
var ErrIntentNotSucceeded = errors.New("stripe: payment intent has not succeeded")

// StripeLogger defines the logging contract for Stripe operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeVerifierConfig configures the StripeVerifier.
type StripeVerifierConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	Intents   stripePaymentIntentAPI
}

// StripeVerifier confirms that a Stripe payment intent reference has
// succeeded before an invoice is settled against it.
type StripeVerifier struct {
	intents stripePaymentIntentAPI
	account string
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeVerifier constructs a StripeVerifier using the given configuration.
func NewStripeVerifier(cfg StripeVerifierConfig) (*StripeVerifier, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Intents == nil {
		return nil, errors.New("stripe: api key is required")
	}

	intents := cfg.Intents
	if intents == nil {
		sc := client.New(apiKey, cfg.Backends)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeVerifier{
		intents: intents,
		account: strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// VerifyPaymentReference looks up the payment intent and requires a
// succeeded status. Any other status, including processing, is rejected so
// the invoice stays unpaid until Stripe settles the charge.
func (v *StripeVerifier) VerifyPaymentReference(ctx context.Context, reference string) error {
	if v == nil {
		return errors.New("stripe: verifier is nil")
	}
	reference = strings.TrimSpace(reference)
	if !strings.HasPrefix(reference, "pi_") {
		return fmt.Errorf("stripe: reference %q is not a payment intent", reference)
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if v.account != "" {
		params.SetStripeAccount(v.account)
	}

	intent, err := v.intents.Get(reference, params)
	if err != nil {
		return fmt.Errorf("stripe: lookup payment intent: %w", err)
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		v.logger(ctx, "payments.stripe.intent.rejected", map[string]any{
			"paymentIntent": intent.ID,
			"status":        intent.Status,
		})
		return fmt.Errorf("%w: status %s", ErrIntentNotSucceeded, intent.Status)
	}

	v.logger(ctx, "payments.stripe.intent.verified", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      strings.ToUpper(string(intent.Currency)),
	})
	return nil
}
