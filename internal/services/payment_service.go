package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kixikila/internal/db"
	"kixikila/internal/events"
	"kixikila/internal/logging"
	"kixikila/internal/metrics"
	"kixikila/internal/models"
	"kixikila/internal/payments"
	"kixikila/internal/resilience"
	"kixikila/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PaymentGateway is the card processor.
type PaymentGateway interface {
	Enabled() bool
	CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error)
	CreateCheckout(ctx context.Context, req payments.CheckoutRequest) (payments.Checkout, error)
	CancelIntent(ctx context.Context, intentID string) error
}

type WebhookStore interface {
	Record(ctx context.Context, tx store.Execer, eventID, eventType string) (bool, error)
}

const (
	redirectReason  = "group no longer accepting contributions"
	cancelledReason = "cancelled by customer"
	expiredReason   = "payment not completed in time"

	stalePaymentBatch = 100
)

type PaymentService struct {
	txRunner     db.TxRunner
	users        UserStore
	groups       GroupStore
	members      MemberStore
	transactions TransactionStore
	ledger       LedgerStore
	webhooks     WebhookStore
	audit        AuditStore
	gateway      PaymentGateway
	publisher    Publisher
	currency     string
}

type PaymentDeps struct {
	TxRunner     db.TxRunner
	Users        UserStore
	Groups       GroupStore
	Members      MemberStore
	Transactions TransactionStore
	Ledger       LedgerStore
	Webhooks     WebhookStore
	Audit        AuditStore
	Gateway      PaymentGateway
	Publisher    Publisher
	Currency     string
}

func NewPaymentService(deps PaymentDeps) *PaymentService {
	return &PaymentService{
		txRunner:     deps.TxRunner,
		users:        deps.Users,
		groups:       deps.Groups,
		members:      deps.Members,
		transactions: deps.Transactions,
		ledger:       deps.Ledger,
		webhooks:     deps.Webhooks,
		audit:        deps.Audit,
		gateway:      deps.Gateway,
		publisher:    deps.Publisher,
		currency:     deps.Currency,
	}
}

type InitiationResult struct {
	TransactionID string  `json:"transaction_id"`
	Reference     string  `json:"reference"`
	Status        string  `json:"status"`
	Amount        int64   `json:"amount"`
	ClientSecret  *string `json:"client_secret,omitempty"`
}

type published struct {
	topic   string
	payload any
}

func (s *PaymentService) flush(ctx context.Context, out []published) {
	for _, p := range out {
		s.publisher.Publish(ctx, p.topic, p.payload)
	}
}

// InitiateContribution pays amount towards the caller's share of the current
// cycle. Wallet contributions settle at once; card contributions stay pending
// until the processor confirms them.
func (s *PaymentService) InitiateContribution(ctx context.Context, userID, groupID string, amount int64, method string) (InitiationResult, error) {
	if amount <= 0 {
		return InitiationResult{}, ErrInvalidAmount
	}
	switch method {
	case models.MethodWallet:
		return s.contributeFromWallet(ctx, userID, groupID, amount)
	case models.MethodCard:
		return s.contributeByCard(ctx, userID, groupID, amount)
	}
	return InitiationResult{}, ErrUnsupportedMethod
}

// checkDue locks the group and membership and verifies amount fits what is
// still owed this cycle, counting card payments in flight.
func (s *PaymentService) checkDue(ctx context.Context, tx *sqlx.Tx, userID, groupID string, amount int64) (models.Group, models.GroupMember, error) {
	group, err := s.groups.GetForUpdate(ctx, tx, groupID)
	if err != nil {
		return models.Group{}, models.GroupMember{}, notFound(err)
	}
	member, err := s.members.GetForUpdate(ctx, tx, groupID, userID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && member.Status != models.MemberActive) {
		return models.Group{}, models.GroupMember{}, ErrNotGroupMember
	}
	if err != nil {
		return models.Group{}, models.GroupMember{}, err
	}
	if group.Status != models.GroupActive {
		return models.Group{}, models.GroupMember{}, ErrInvalidGroupState
	}
	pending, err := s.transactions.SumPendingContributions(ctx, tx, groupID, userID, group.CurrentCycle)
	if err != nil {
		return models.Group{}, models.GroupMember{}, err
	}
	if amount > group.ContributionAmount-member.CurrentBalance-pending {
		return models.Group{}, models.GroupMember{}, ErrContributionExceedsDue
	}
	return group, member, nil
}

func (s *PaymentService) contributeFromWallet(ctx context.Context, userID, groupID string, amount int64) (InitiationResult, error) {
	var result InitiationResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		group, member, err := s.checkDue(ctx, tx, userID, groupID, amount)
		if err != nil {
			return err
		}
		user, err := s.users.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return notFound(err)
		}
		if user.WalletBalance < amount {
			return ErrInsufficientFunds
		}
		result = InitiationResult{
			TransactionID: uuid.NewString(),
			Reference:     newReference(),
			Status:        models.TxCompleted,
			Amount:        amount,
		}
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:            result.TransactionID,
			UserID:        userID,
			GroupID:       stringPtr(groupID),
			Cycle:         intPtr(group.CurrentCycle),
			Type:          models.TxGroupContribution,
			Amount:        amount,
			Currency:      s.currency,
			Status:        models.TxCompleted,
			PaymentMethod: models.MethodWallet,
			Reference:     result.Reference,
			Description:   fmt.Sprintf("Contribution to %s, cycle %d", group.Name, group.CurrentCycle),
		}); err != nil {
			return err
		}
		if err := post(ctx, tx, s.ledger, result.TransactionID, "group contribution",
			wallet(userID, -amount), pool(groupID, amount)); err != nil {
			return err
		}
		if _, err := s.users.ApplyWallet(ctx, tx, userID, store.WalletDelta{Wallet: -amount, Saved: amount}); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrInsufficientFunds
			}
			return err
		}
		if err := s.members.Contribute(ctx, tx, member.ID, amount); err != nil {
			return err
		}
		if err := s.groups.AddToPool(ctx, tx, groupID, amount); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, userID, "contribution.completed", "transaction", result.TransactionID,
			jsonString(map[string]any{"group_id": groupID, "amount": amount, "method": models.MethodWallet}))
	})
	if err != nil {
		return InitiationResult{}, err
	}
	s.publisher.Publish(ctx, events.TopicPaymentSettled, events.PaymentSettled{
		UserID:        userID,
		TransactionID: result.TransactionID,
		Type:          models.TxGroupContribution,
		Amount:        amount,
		GroupID:       stringPtr(groupID),
	})
	return result, nil
}

func (s *PaymentService) contributeByCard(ctx context.Context, userID, groupID string, amount int64) (InitiationResult, error) {
	var group models.Group
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		group, _, err = s.checkDue(ctx, tx, userID, groupID, amount)
		return err
	})
	if err != nil {
		return InitiationResult{}, err
	}
	description := fmt.Sprintf("Contribution to %s, cycle %d", group.Name, group.CurrentCycle)
	return s.startCardPayment(ctx, userID, amount, models.TxGroupContribution, description, func(tx *sqlx.Tx, input *store.TransactionInput) error {
		// recheck under lock: another payment may have started meanwhile
		g, _, err := s.checkDue(ctx, tx, userID, groupID, amount)
		if err != nil {
			return err
		}
		input.GroupID = stringPtr(groupID)
		input.Cycle = intPtr(g.CurrentCycle)
		return nil
	})
}

// InitiateDeposit tops up the wallet by card.
func (s *PaymentService) InitiateDeposit(ctx context.Context, userID string, amount int64) (InitiationResult, error) {
	if amount <= 0 {
		return InitiationResult{}, ErrInvalidAmount
	}
	return s.startCardPayment(ctx, userID, amount, models.TxDeposit, "Wallet deposit", nil)
}

func (s *PaymentService) startCardPayment(ctx context.Context, userID string, amount int64, txType, description string, prepare func(tx *sqlx.Tx, input *store.TransactionInput) error) (InitiationResult, error) {
	if !s.gateway.Enabled() {
		return InitiationResult{}, ErrPaymentsUnavailable
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return InitiationResult{}, notFound(err)
	}
	transactionID := uuid.NewString()
	intent, err := s.gateway.CreateIntent(ctx, payments.IntentRequest{
		Amount:         amount,
		Currency:       s.currency,
		CustomerID:     derefOr(user.StripeCustomerID, ""),
		Description:    description,
		IdempotencyKey: transactionID,
		Metadata: map[string]string{
			"transaction_id": transactionID,
			"user_id":        userID,
			"type":           txType,
		},
	})
	if err != nil {
		if errors.Is(err, resilience.ErrUnavailable) || errors.Is(err, payments.ErrDisabled) {
			return InitiationResult{}, ErrPaymentsUnavailable
		}
		return InitiationResult{}, err
	}
	result := InitiationResult{
		TransactionID: transactionID,
		Reference:     newReference(),
		Status:        models.TxPending,
		Amount:        amount,
		ClientSecret:  stringPtr(intent.ClientSecret),
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		input := store.TransactionInput{
			ID:               transactionID,
			UserID:           userID,
			Type:             txType,
			Amount:           amount,
			Currency:         s.currency,
			Status:           models.TxPending,
			PaymentMethod:    models.MethodCard,
			PaymentReference: stringPtr(intent.ID),
			Reference:        result.Reference,
			Description:      description,
		}
		if prepare != nil {
			if err := prepare(tx, &input); err != nil {
				return err
			}
		}
		if err := s.transactions.Create(ctx, tx, input); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, userID, txType+".initiated", "transaction", transactionID,
			jsonString(map[string]any{"amount": amount, "payment_reference": intent.ID}))
	})
	if err != nil {
		return InitiationResult{}, err
	}
	logging.Ctx(ctx).Info().Str("transaction_id", transactionID).Str("type", txType).Msg("card payment initiated")
	return result, nil
}

// CancelPayment abandons one of the caller's pending card payments. The
// amount stops counting against what the member owes this cycle.
func (s *PaymentService) CancelPayment(ctx context.Context, userID, transactionID string) (models.Transaction, error) {
	txn, err := s.transactions.GetForUser(ctx, userID, transactionID)
	if err != nil {
		return models.Transaction{}, notFound(err)
	}
	if txn.Status != models.TxPending || txn.PaymentMethod != models.MethodCard {
		return models.Transaction{}, ErrInvalidTransition
	}
	if err := s.abandon(ctx, txn, userID, cancelledReason); err != nil {
		return models.Transaction{}, err
	}
	txn.Status = models.TxFailed
	txn.FailureReason = stringPtr(cancelledReason)
	return txn, nil
}

// ExpireStalePayments abandons card payments still pending at cutoff. The
// processor sends no event for a checkout the customer walks away from.
// Payments the processor has already taken are left for their webhook.
func (s *PaymentService) ExpireStalePayments(ctx context.Context, cutoff time.Time) (int64, error) {
	stale, err := s.transactions.ListStalePending(ctx, cutoff, stalePaymentBatch)
	if err != nil {
		return 0, err
	}
	var expired int64
	for _, txn := range stale {
		err := s.abandon(ctx, txn, "", expiredReason)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, ErrInvalidTransition):
			logging.Ctx(ctx).Info().Str("transaction_id", txn.ID).Msg("stale payment already with processor")
		default:
			logging.Ctx(ctx).Warn().Err(err).Str("transaction_id", txn.ID).Msg("expire stale payment")
		}
	}
	return expired, nil
}

// abandon cancels the intent with the processor first, so a payment can
// never be both failed here and captured there.
func (s *PaymentService) abandon(ctx context.Context, txn models.Transaction, actorID, reason string) error {
	if txn.PaymentReference != nil && s.gateway.Enabled() {
		err := s.gateway.CancelIntent(ctx, *txn.PaymentReference)
		switch {
		case errors.Is(err, payments.ErrNotCancelable):
			return ErrInvalidTransition
		case errors.Is(err, resilience.ErrUnavailable):
			return ErrPaymentsUnavailable
		case err != nil:
			return err
		}
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.transactions.UpdateStatus(ctx, tx, txn.ID, models.TxFailed, stringPtr(reason))
		if err != nil {
			return err
		}
		if rows != 1 {
			return ErrInvalidTransition
		}
		return s.audit.Log(ctx, tx, actorID, txn.Type+".cancelled", "transaction", txn.ID,
			jsonString(map[string]any{"amount": txn.Amount, "reason": reason}))
	})
	if err != nil {
		return err
	}
	metrics.PaymentsAbandoned.WithLabelValues(txn.Type).Inc()
	s.publisher.Publish(ctx, events.TopicPaymentFailed, events.PaymentFailed{
		UserID: txn.UserID, TransactionID: txn.ID, Amount: txn.Amount, Reason: reason,
	})
	return nil
}

// HandleEvent applies a verified processor event exactly once.
func (s *PaymentService) HandleEvent(ctx context.Context, evt payments.Event) error {
	var (
		out     []published
		outcome string
	)
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		out, outcome = nil, "processed"
		fresh, err := s.webhooks.Record(ctx, tx, evt.ID, evt.Type)
		if err != nil {
			return err
		}
		if !fresh {
			outcome = "duplicate"
			return nil
		}
		switch evt.Type {
		case payments.EventPaymentSucceeded:
			out, err = s.paymentSucceeded(ctx, tx, evt)
		case payments.EventPaymentFailed:
			out, err = s.paymentFailed(ctx, tx, evt)
		case payments.EventSubscriptionCreated, payments.EventSubscriptionUpdated, payments.EventSubscriptionDeleted:
			err = s.subscriptionChanged(ctx, tx, evt)
		case payments.EventCheckoutCompleted:
			err = s.checkoutCompleted(ctx, tx, evt)
		default:
			outcome = "ignored"
		}
		return err
	})
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(evt.Type, "error").Inc()
		return err
	}
	metrics.WebhookEvents.WithLabelValues(evt.Type, outcome).Inc()
	logging.Ctx(ctx).Info().Str("event_id", evt.ID).Str("type", evt.Type).Str("outcome", outcome).Msg("webhook handled")
	s.flush(ctx, out)
	return nil
}

// pendingByIntent locks the transaction behind an intent. ok is false when
// there is nothing left to settle.
func (s *PaymentService) pendingByIntent(ctx context.Context, tx *sqlx.Tx, intentID string) (models.Transaction, bool, error) {
	txn, err := s.transactions.GetForUpdateByPaymentReference(ctx, tx, intentID)
	if errors.Is(err, sql.ErrNoRows) {
		logging.Ctx(ctx).Warn().Str("intent", intentID).Msg("webhook for unknown payment intent")
		return models.Transaction{}, false, nil
	}
	if err != nil {
		return models.Transaction{}, false, err
	}
	return txn, txn.Status == models.TxPending, nil
}

func (s *PaymentService) paymentSucceeded(ctx context.Context, tx *sqlx.Tx, evt payments.Event) ([]published, error) {
	pi, err := payments.DecodePaymentIntent(evt.Object)
	if err != nil {
		return nil, err
	}
	txn, ok, err := s.pendingByIntent(ctx, tx, pi.ID)
	if err != nil || !ok {
		return nil, err
	}
	if pi.Amount != 0 && pi.Amount != txn.Amount {
		logging.Ctx(ctx).Warn().Str("transaction_id", txn.ID).Int64("charged", pi.Amount).Int64("expected", txn.Amount).Msg("payment amount mismatch")
	}
	switch txn.Type {
	case models.TxDeposit:
		if err := s.complete(ctx, tx, txn.ID); err != nil {
			return nil, err
		}
		if err := s.creditWallet(ctx, tx, txn.ID, txn.UserID, txn.Amount, "card deposit"); err != nil {
			return nil, err
		}
		return []published{{events.TopicPaymentSettled, events.PaymentSettled{
			UserID: txn.UserID, TransactionID: txn.ID, Type: txn.Type, Amount: txn.Amount,
		}}}, nil
	case models.TxGroupContribution:
		return s.settleContribution(ctx, tx, txn)
	}
	return nil, fmt.Errorf("unexpected card transaction type %q", txn.Type)
}

func (s *PaymentService) settleContribution(ctx context.Context, tx *sqlx.Tx, txn models.Transaction) ([]published, error) {
	groupID := derefOr(txn.GroupID, "")
	group, err := s.groups.GetForUpdate(ctx, tx, groupID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	accepting := err == nil && group.Status == models.GroupActive
	var member models.GroupMember
	if accepting {
		member, err = s.members.GetForUpdate(ctx, tx, groupID, txn.UserID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		accepting = err == nil &&
			member.Status == models.MemberActive &&
			txn.Cycle != nil && *txn.Cycle == group.CurrentCycle &&
			member.CurrentBalance+txn.Amount <= group.ContributionAmount
	}

	if !accepting {
		return s.redirectToWallet(ctx, tx, txn)
	}
	if err := s.complete(ctx, tx, txn.ID); err != nil {
		return nil, err
	}
	if err := post(ctx, tx, s.ledger, txn.ID, "card contribution",
		clearing(clearingStripe, -txn.Amount), pool(groupID, txn.Amount)); err != nil {
		return nil, err
	}
	if _, err := s.users.ApplyWallet(ctx, tx, txn.UserID, store.WalletDelta{Saved: txn.Amount}); err != nil {
		return nil, err
	}
	if err := s.members.Contribute(ctx, tx, member.ID, txn.Amount); err != nil {
		return nil, err
	}
	if err := s.groups.AddToPool(ctx, tx, groupID, txn.Amount); err != nil {
		return nil, err
	}
	if err := s.audit.Log(ctx, tx, "", "contribution.completed", "transaction", txn.ID,
		jsonString(map[string]any{"group_id": groupID, "amount": txn.Amount, "method": models.MethodCard})); err != nil {
		return nil, err
	}
	return []published{{events.TopicPaymentSettled, events.PaymentSettled{
		UserID: txn.UserID, TransactionID: txn.ID, Type: txn.Type, Amount: txn.Amount, GroupID: txn.GroupID,
	}}}, nil
}

// redirectToWallet fails a contribution the group can no longer take and
// credits the captured money to the payer's wallet as a deposit.
func (s *PaymentService) redirectToWallet(ctx context.Context, tx *sqlx.Tx, txn models.Transaction) ([]published, error) {
	rows, err := s.transactions.UpdateStatus(ctx, tx, txn.ID, models.TxFailed, stringPtr(redirectReason))
	if err != nil {
		return nil, err
	}
	if rows != 1 {
		return nil, nil
	}
	depositID := uuid.NewString()
	if err := s.transactions.Create(ctx, tx, store.TransactionInput{
		ID:            depositID,
		UserID:        txn.UserID,
		Type:          models.TxDeposit,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		Status:        models.TxCompleted,
		PaymentMethod: models.MethodCard,
		Reference:     newReference(),
		Description:   "Redirected contribution",
		Metadata:      jsonString(map[string]string{"redirected_from": txn.ID}),
	}); err != nil {
		return nil, err
	}
	if err := s.creditWallet(ctx, tx, depositID, txn.UserID, txn.Amount, "redirected contribution"); err != nil {
		return nil, err
	}
	if err := s.audit.Log(ctx, tx, "", "contribution.redirected", "transaction", txn.ID,
		jsonString(map[string]any{"deposit_id": depositID, "amount": txn.Amount})); err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Str("transaction_id", txn.ID).Msg("contribution redirected to wallet")
	return []published{{events.TopicPaymentSettled, events.PaymentSettled{
		UserID: txn.UserID, TransactionID: depositID, Type: models.TxDeposit, Amount: txn.Amount,
		GroupID: txn.GroupID, Redirected: true,
	}}}, nil
}

func (s *PaymentService) creditWallet(ctx context.Context, tx *sqlx.Tx, transactionID, userID string, amount int64, description string) error {
	if err := post(ctx, tx, s.ledger, transactionID, description,
		clearing(clearingStripe, -amount), wallet(userID, amount)); err != nil {
		return err
	}
	_, err := s.users.ApplyWallet(ctx, tx, userID, store.WalletDelta{Wallet: amount})
	return err
}

func (s *PaymentService) complete(ctx context.Context, tx *sqlx.Tx, transactionID string) error {
	rows, err := s.transactions.UpdateStatus(ctx, tx, transactionID, models.TxCompleted, nil)
	if err != nil {
		return err
	}
	if rows != 1 {
		return ErrInvalidTransition
	}
	return nil
}

func (s *PaymentService) paymentFailed(ctx context.Context, tx *sqlx.Tx, evt payments.Event) ([]published, error) {
	pi, err := payments.DecodePaymentIntent(evt.Object)
	if err != nil {
		return nil, err
	}
	txn, ok, err := s.pendingByIntent(ctx, tx, pi.ID)
	if err != nil || !ok {
		return nil, err
	}
	reason := pi.FailureMessage()
	if _, err := s.transactions.UpdateStatus(ctx, tx, txn.ID, models.TxFailed, stringPtr(reason)); err != nil {
		return nil, err
	}
	return []published{{events.TopicPaymentFailed, events.PaymentFailed{
		UserID: txn.UserID, TransactionID: txn.ID, Amount: txn.Amount, Reason: reason,
	}}}, nil
}

func (s *PaymentService) subscriptionChanged(ctx context.Context, tx *sqlx.Tx, evt payments.Event) error {
	sub, err := payments.DecodeSubscription(evt.Object)
	if err != nil {
		return err
	}
	var user models.User
	if userID := sub.Metadata["user_id"]; userID != "" {
		user, err = s.users.GetForUpdate(ctx, tx, userID)
	} else {
		user, err = s.users.GetByStripeCustomer(ctx, tx, sub.Customer)
	}
	if errors.Is(err, sql.ErrNoRows) {
		logging.Ctx(ctx).Warn().Str("subscription", sub.ID).Msg("subscription for unknown user")
		return nil
	}
	if err != nil {
		return err
	}
	active := sub.Active() && evt.Type != payments.EventSubscriptionDeleted
	if err := s.users.SetVIP(ctx, tx, user.ID, active, sub.PeriodEnd()); err != nil {
		return err
	}
	if sub.Customer != "" && user.StripeCustomerID == nil {
		if err := s.users.SetStripeCustomer(ctx, tx, user.ID, sub.Customer); err != nil {
			return err
		}
	}
	return s.audit.Log(ctx, tx, "", "subscription.updated", "user", user.ID,
		jsonString(map[string]any{"status": sub.Status, "vip": active}))
}

func (s *PaymentService) checkoutCompleted(ctx context.Context, tx *sqlx.Tx, evt payments.Event) error {
	cs, err := payments.DecodeCheckoutSession(evt.Object)
	if err != nil {
		return err
	}
	userID := cs.ClientReferenceID
	if userID == "" {
		userID = cs.Metadata["user_id"]
	}
	if userID == "" || cs.Customer == "" {
		return nil
	}
	return s.users.SetStripeCustomer(ctx, tx, userID, cs.Customer)
}

func derefOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return *value
}
