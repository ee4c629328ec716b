package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// CheckoutSession is the provider-side session created for an escrow payment.
type CheckoutSession struct {
	SessionID   string
	CheckoutURL string
}

// CheckoutGateway represents the external checkout provider interface.
// Funds are captured out-of-band and confirmed back via webhook.
type CheckoutGateway interface {
	// CreateCheckout opens a hosted checkout session for the given reference
	// and total amount (minor units). The returned URL is handed to the payer.
	CreateCheckout(ctx context.Context, referenceID string, totalAmount int64) (*CheckoutSession, error)
}

// MockCheckout simulates a hosted checkout provider for local development.
// It introduces a short random delay and fails a configurable fraction of calls.
type MockCheckout struct {
	// FailureRate is the probability of failure (0.0 to 1.0). Default: 0.05.
	FailureRate float64
	// BaseURL is the fake hosted checkout origin.
	BaseURL string
}

// NewMockCheckout creates a MockCheckout with default settings.
func NewMockCheckout() *MockCheckout {
	return &MockCheckout{
		FailureRate: 0.05,
		BaseURL:     "https://checkout.example.test",
	}
}

// CreateCheckout simulates opening a checkout session. It sleeps briefly to
// simulate network latency, then randomly fails based on FailureRate.
func (g *MockCheckout) CreateCheckout(ctx context.Context, referenceID string, totalAmount int64) (*CheckoutSession, error) {
	delayMs := time.Duration(100+rand.Intn(400)) * time.Millisecond

	select {
	case <-time.After(delayMs):
	case <-ctx.Done():
		return nil, fmt.Errorf("gateway call canceled: %w", ctx.Err())
	}

	if rand.Float64() < g.FailureRate {
		return nil, fmt.Errorf("checkout provider temporarily unavailable")
	}

	sessionID := fmt.Sprintf("MOCK-%s-%05d", time.Now().Format("20060102-150405"), rand.Intn(100000))
	return &CheckoutSession{
		SessionID:   sessionID,
		CheckoutURL: fmt.Sprintf("%s/pay/%s?ref=%s&amount=%d", g.BaseURL, sessionID, referenceID, totalAmount),
	}, nil
}
