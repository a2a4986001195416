package payments

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
)

// CheckoutRequest is what the ledger asks the processor for.
type CheckoutRequest struct {
	PaymentID     string
	Description   string
	Currency      string
	AmountMinor   int64
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// SessionInfo is the processor's view of a checkout session.
type SessionInfo struct {
	ID        string
	URL       string
	Open      bool
	Paid      bool
	Expired   bool
	Reference string // payment intent id when paid
}

// Provider is the external checkout processor.
type Provider interface {
	Name() string
	// CreateCheckout opens a hosted checkout session. Never retried.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (SessionInfo, error)
	// Session looks a session up. Read-only, so implementations may retry.
	Session(ctx context.Context, id string) (SessionInfo, error)
	// Expire closes an open session so it can no longer be paid.
	// It fails for sessions that are already complete.
	Expire(ctx context.Context, id string) error
}

// MinorUnits converts an amount to the processor's smallest currency unit (amount × 100).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

/* ============================== Mock ==================================== */

// MockProvider is the dev provider: the "checkout page" is the success page itself,
// so a live mock session counts as open and paid at once.
type MockProvider struct {
	mu       sync.Mutex
	sessions map[string]string // id -> url
	expired  map[string]bool
}

func NewMockProvider() *MockProvider {
	return &MockProvider{sessions: map[string]string{}, expired: map[string]bool{}}
}

func (*MockProvider) Name() string { return "mock" }

func (m *MockProvider) CreateCheckout(_ context.Context, req CheckoutRequest) (SessionInfo, error) {
	id := "mock_" + uuid.NewString()
	info := SessionInfo{
		ID:   id,
		URL:  strings.ReplaceAll(req.SuccessURL, sessionPlaceholder, id),
		Open: true,
	}
	m.mu.Lock()
	m.sessions[id] = info.URL
	m.mu.Unlock()
	return info, nil
}

// Session reports unknown ids (for example from before a restart) as paid.
func (m *MockProvider) Session(_ context.Context, id string) (SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired[id] {
		return SessionInfo{ID: id, Expired: true}, nil
	}
	u, live := m.sessions[id]
	return SessionInfo{ID: id, URL: u, Open: live, Paid: true, Reference: id}, nil
}

func (m *MockProvider) Expire(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	m.expired[id] = true
	return nil
}

/* ============================== Stripe ================================== */

// StripeProvider talks to Stripe Checkout.
type StripeProvider struct {
	sessions *session.Client
	timeout  time.Duration
	retries  uint64
}

func NewStripeProvider(secretKey string, timeout time.Duration) *StripeProvider {
	return &StripeProvider{
		sessions: &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		timeout:  timeout,
		retries:  3,
	}
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (SessionInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.PaymentID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
				UnitAmount: stripe.Int64(req.AmountMinor),
			},
			Quantity: stripe.Int64(1),
		}},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := p.sessions.New(params)
	if err != nil {
		return SessionInfo{}, err
	}
	return toSessionInfo(s), nil
}

// Session retrieves a checkout session with a bounded exponential retry.
func (p *StripeProvider) Session(ctx context.Context, id string) (SessionInfo, error) {
	var out SessionInfo
	backoff := retry.WithMaxRetries(p.retries, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		params := &stripe.CheckoutSessionParams{}
		params.Context = callCtx
		s, err := p.sessions.Get(id, params)
		if err != nil {
			var se *stripe.Error
			if errors.As(err, &se) && se.HTTPStatusCode > 0 && se.HTTPStatusCode < 500 && se.HTTPStatusCode != 429 {
				return err
			}
			return retry.RetryableError(err)
		}
		out = toSessionInfo(s)
		return nil
	})
	return out, err
}

// Expire is a write, so it is not retried.
func (p *StripeProvider) Expire(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	_, err := p.sessions.Expire(id, params)
	return err
}

func toSessionInfo(s *stripe.CheckoutSession) SessionInfo {
	info := SessionInfo{
		ID:      s.ID,
		URL:     s.URL,
		Open:    s.Status == stripe.CheckoutSessionStatusOpen,
		Paid:    s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Expired: s.Status == stripe.CheckoutSessionStatusExpired,
	}
	if s.PaymentIntent != nil {
		info.Reference = s.PaymentIntent.ID
	}
	if info.Reference == "" {
		info.Reference = s.ID
	}
	return info
}
