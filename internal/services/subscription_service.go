package services

import (
	"context"
	"errors"
	"time"

	"kixikila/internal/db"
	"kixikila/internal/payments"
	"kixikila/internal/resilience"

	"github.com/jmoiron/sqlx"
)

type SubscriptionService struct {
	txRunner db.TxRunner
	users    UserStore
	gateway  PaymentGateway
	now      func() time.Time
}

func NewSubscriptionService(txRunner db.TxRunner, users UserStore, gateway PaymentGateway) *SubscriptionService {
	return &SubscriptionService{txRunner: txRunner, users: users, gateway: gateway, now: time.Now}
}

func (s *SubscriptionService) Checkout(ctx context.Context, userID string) (payments.Checkout, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return payments.Checkout{}, notFound(err)
	}
	checkout, err := s.gateway.CreateCheckout(ctx, payments.CheckoutRequest{
		UserID:     user.ID,
		CustomerID: derefOr(user.StripeCustomerID, ""),
		Email:      derefOr(user.Email, ""),
	})
	if errors.Is(err, payments.ErrDisabled) || errors.Is(err, resilience.ErrUnavailable) {
		return payments.Checkout{}, ErrPaymentsUnavailable
	}
	return checkout, err
}

type SubscriptionStatus struct {
	IsVIP        bool       `json:"is_vip"`
	VIPExpiresAt *time.Time `json:"vip_expires_at,omitempty"`
}

// Status reports the VIP flag, clearing it first when the paid period is over.
func (s *SubscriptionService) Status(ctx context.Context, userID string) (SubscriptionStatus, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return SubscriptionStatus{}, notFound(err)
	}
	if user.IsVIP && !user.VIPActive(s.now()) {
		err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			return s.users.SetVIP(ctx, tx, userID, false, user.VIPExpiresAt)
		})
		if err != nil {
			return SubscriptionStatus{}, err
		}
		user.IsVIP = false
	}
	return SubscriptionStatus{IsVIP: user.IsVIP, VIPExpiresAt: user.VIPExpiresAt}, nil
}
