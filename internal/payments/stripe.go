package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kixikila/internal/config"
	"kixikila/internal/resilience"

	"github.com/goccy/go-json"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	ErrDisabled         = errors.New("payments are not configured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrNotCancelable    = errors.New("payment intent can no longer be cancelled")
)

const (
	EventPaymentSucceeded    = "payment_intent.succeeded"
	EventPaymentFailed       = "payment_intent.payment_failed"
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

type IntentRequest struct {
	Amount         int64
	Currency       string
	CustomerID     string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

type Intent struct {
	ID           string
	ClientSecret string
}

type CheckoutRequest struct {
	UserID     string
	CustomerID string
	Email      string
}

type Checkout struct {
	ID  string
	URL string
}

// Event is a verified webhook delivery; Object holds the raw data.object.
type Event struct {
	ID     string
	Type   string
	Object []byte
}

type Stripe struct {
	secretKey     string
	webhookSecret string
	cfg           config.StripeConfig
	intents       *paymentintent.Client
	sessions      *session.Client
	breaker       *resilience.Breaker
}

func NewStripe(cfg config.StripeConfig) *Stripe {
	backend := stripe.GetBackend(stripe.APIBackend)
	return &Stripe{
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		cfg:           cfg,
		intents:       &paymentintent.Client{B: backend, Key: cfg.SecretKey},
		sessions:      &session.Client{B: backend, Key: cfg.SecretKey},
		breaker:       resilience.NewBreaker(resilience.Settings{Name: "stripe"}),
	}
}

func (s *Stripe) Enabled() bool {
	return s.secretKey != ""
}

func (s *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if !s.Enabled() {
		return Intent{}, ErrDisabled
	}
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(req.Currency),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	pi, err := resilience.Call(s.breaker, func() (*stripe.PaymentIntent, error) {
		return s.intents.New(params)
	})
	if err != nil {
		return Intent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// CancelIntent abandons an intent the customer never finished. Cancelling an
// intent that is already cancelled succeeds; one that succeeded or is still
// processing yields ErrNotCancelable.
func (s *Stripe) CancelIntent(ctx context.Context, intentID string) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String("abandoned"),
	}
	params.Context = ctx
	_, err := resilience.Call(s.breaker, func() (*stripe.PaymentIntent, error) {
		return s.intents.Cancel(intentID, params)
	})
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) || stripeErr.Code != stripe.ErrorCodePaymentIntentUnexpectedState {
		return fmt.Errorf("cancel payment intent: %w", err)
	}

	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx
	pi, err := resilience.Call(s.breaker, func() (*stripe.PaymentIntent, error) {
		return s.intents.Get(intentID, getParams)
	})
	if err != nil {
		return fmt.Errorf("read payment intent: %w", err)
	}
	if pi.Status == stripe.PaymentIntentStatusCanceled {
		return nil
	}
	return ErrNotCancelable
}

func (s *Stripe) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	if !s.Enabled() || s.cfg.VIPPriceID == "" {
		return Checkout{}, ErrDisabled
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(s.cfg.VIPPriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": req.UserID},
		},
	}
	switch {
	case req.CustomerID != "":
		params.Customer = stripe.String(req.CustomerID)
	case req.Email != "":
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.AddMetadata("user_id", req.UserID)
	params.Context = ctx
	sess, err := resilience.Call(s.breaker, func() (*stripe.CheckoutSession, error) {
		return s.sessions.New(params)
	})
	if err != nil {
		return Checkout{}, fmt.Errorf("create checkout session: %w", err)
	}
	return Checkout{ID: sess.ID, URL: sess.URL}, nil
}

// ParseWebhook verifies the Stripe-Signature header and returns the event.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (Event, error) {
	if s.webhookSecret == "" {
		return Event{}, ErrDisabled
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := Event{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data != nil {
		out.Object = evt.Data.Raw
	}
	return out, nil
}

type PaymentIntentObject struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
	LastErr  *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func (p PaymentIntentObject) FailureMessage() string {
	if p.LastErr == nil || p.LastErr.Message == "" {
		return "payment failed"
	}
	return p.LastErr.Message
}

func DecodePaymentIntent(raw []byte) (PaymentIntentObject, error) {
	var pi PaymentIntentObject
	err := json.Unmarshal(raw, &pi)
	return pi, err
}

type SubscriptionObject struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

// Active follows Stripe's definition of a paying subscription.
func (s SubscriptionObject) Active() bool {
	return s.Status == "active" || s.Status == "trialing"
}

// PeriodEnd reads the period end from the subscription or, on newer API
// versions, from its first item.
func (s SubscriptionObject) PeriodEnd() *time.Time {
	end := s.CurrentPeriodEnd
	if end == 0 && len(s.Items.Data) > 0 {
		end = s.Items.Data[0].CurrentPeriodEnd
	}
	if end == 0 {
		return nil
	}
	t := time.Unix(end, 0).UTC()
	return &t
}

func DecodeSubscription(raw []byte) (SubscriptionObject, error) {
	var sub SubscriptionObject
	err := json.Unmarshal(raw, &sub)
	return sub, err
}

type CheckoutSessionObject struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

func DecodeCheckoutSession(raw []byte) (CheckoutSessionObject, error) {
	var cs CheckoutSessionObject
	err := json.Unmarshal(raw, &cs)
	return cs, err
}
