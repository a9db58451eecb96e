package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"
)

type stubIntentAPI struct {
	getFunc func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (s *stubIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if s.getFunc != nil {
		return s.getFunc(id, params)
	}
	return nil, errors.New("not implemented")
}

func TestStripeVerifierAcceptsSucceededIntent(t *testing.T) {
	intents := &stubIntentAPI{
		getFunc: func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			if id != "pi_123" {
				t.Fatalf("unexpected intent id %q", id)
			}
			return &stripe.PaymentIntent{
				ID:       id,
				Status:   stripe.PaymentIntentStatusSucceeded,
				Amount:   2500,
				Currency: stripe.CurrencyUSD,
			}, nil
		},
	}
	verifier, err := NewStripeVerifier(StripeVerifierConfig{Intents: intents})
	if err != nil {
		t.Fatalf("NewStripeVerifier: %v", err)
	}

	if err := verifier.VerifyPaymentReference(context.Background(), " pi_123 "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStripeVerifierRejectsPendingIntent(t *testing.T) {
	intents := &stubIntentAPI{
		getFunc: func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{
				ID:     id,
				Status: stripe.PaymentIntentStatusProcessing,
			}, nil
		},
	}
	verifier, err := NewStripeVerifier(StripeVerifierConfig{Intents: intents})
	if err != nil {
		t.Fatalf("NewStripeVerifier: %v", err)
	}

	err = verifier.VerifyPaymentReference(context.Background(), "pi_pending")
	if !errors.Is(err, ErrIntentNotSucceeded) {
		t.Fatalf("expected ErrIntentNotSucceeded, got %v", err)
	}
}

func TestStripeVerifierRejectsNonIntentReference(t *testing.T) {
	verifier, err := NewStripeVerifier(StripeVerifierConfig{Intents: &stubIntentAPI{}})
	if err != nil {
		t.Fatalf("NewStripeVerifier: %v", err)
	}

	if err := verifier.VerifyPaymentReference(context.Background(), "ch_123"); err == nil {
		t.Fatalf("expected error for non payment intent reference")
	}
}

func TestNewStripeVerifierRequiresKeyOrClient(t *testing.T) {
	if _, err := NewStripeVerifier(StripeVerifierConfig{}); err == nil {
		t.Fatalf("expected error without api key or client")
	}
}
