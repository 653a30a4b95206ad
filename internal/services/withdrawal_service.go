package services

import (
	"context"
	"database/sql"
	"errors"

	"kixikila/internal/db"
	"kixikila/internal/events"
	"kixikila/internal/logging"
	"kixikila/internal/metrics"
	"kixikila/internal/models"
	"kixikila/internal/store"
	"kixikila/internal/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type WithdrawalStore interface {
	Create(ctx context.Context, tx store.Execer, input store.WithdrawalInput) error
	GetForUpdate(ctx context.Context, tx store.Getter, withdrawalID string) (models.Withdrawal, error)
	Transition(ctx context.Context, tx store.Execer, withdrawalID, from, to string, reason, processedBy *string) (int64, error)
	List(ctx context.Context, userID, status string, limit, offset int) ([]models.Withdrawal, error)
	HasOpenForAccount(ctx context.Context, payoutAccountID string) (bool, error)
}

type PayoutAccountStore interface {
	Create(ctx context.Context, input store.PayoutAccountInput) (models.PayoutAccount, error)
	Get(ctx context.Context, userID, accountID string) (models.PayoutAccount, error)
	List(ctx context.Context, userID string) ([]models.PayoutAccount, error)
	Delete(ctx context.Context, userID, accountID string) (int64, error)
}

type WithdrawalService struct {
	txRunner     db.TxRunner
	users        UserStore
	withdrawals  WithdrawalStore
	accounts     PayoutAccountStore
	transactions TransactionStore
	ledger       LedgerStore
	config       ConfigStore
	audit        AuditStore
	publisher    Publisher
	currency     string
}

type WithdrawalDeps struct {
	TxRunner     db.TxRunner
	Users        UserStore
	Withdrawals  WithdrawalStore
	Accounts     PayoutAccountStore
	Transactions TransactionStore
	Ledger       LedgerStore
	Config       ConfigStore
	Audit        AuditStore
	Publisher    Publisher
	Currency     string
}

func NewWithdrawalService(deps WithdrawalDeps) *WithdrawalService {
	return &WithdrawalService{
		txRunner:     deps.TxRunner,
		users:        deps.Users,
		withdrawals:  deps.Withdrawals,
		accounts:     deps.Accounts,
		transactions: deps.Transactions,
		ledger:       deps.Ledger,
		config:       deps.Config,
		audit:        deps.Audit,
		publisher:    deps.Publisher,
		currency:     deps.Currency,
	}
}

// Request holds amount out of the wallet until an operator settles the
// withdrawal. Nothing is written when the wallet cannot cover it.
func (s *WithdrawalService) Request(ctx context.Context, userID string, amount int64, payoutAccountID string) (models.Withdrawal, error) {
	if amount <= 0 {
		return models.Withdrawal{}, ErrInvalidAmount
	}
	account, err := s.accounts.Get(ctx, userID, payoutAccountID)
	if err != nil {
		return models.Withdrawal{}, notFound(err)
	}
	withdrawalID := uuid.NewString()
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		minimum, err := s.config.Int(ctx, tx, store.ConfigMinWithdrawalAmount, 100)
		if err != nil {
			return err
		}
		if amount < minimum {
			return ErrBelowMinimum
		}
		user, err := s.users.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return notFound(err)
		}
		if amount > user.WalletBalance {
			return ErrInsufficientFunds
		}
		transactionID := uuid.NewString()
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:            transactionID,
			UserID:        userID,
			Type:          models.TxWithdrawal,
			Amount:        amount,
			Currency:      s.currency,
			Status:        models.TxPending,
			PaymentMethod: models.MethodBankTransfer,
			Reference:     newReference(),
			Description:   "Withdrawal to " + account.BankName,
			Metadata:      jsonString(map[string]string{"withdrawal_id": withdrawalID, "iban": account.IBAN}),
		}); err != nil {
			return err
		}
		if err := post(ctx, tx, s.ledger, transactionID, "withdrawal hold",
			wallet(userID, -amount), clearing(clearingWithdrawals, amount)); err != nil {
			return err
		}
		if _, err := s.users.ApplyWallet(ctx, tx, userID, store.WalletDelta{Wallet: -amount}); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrInsufficientFunds
			}
			return err
		}
		if err := s.withdrawals.Create(ctx, tx, store.WithdrawalInput{
			ID:              withdrawalID,
			UserID:          userID,
			PayoutAccountID: account.ID,
			TransactionID:   transactionID,
			Amount:          amount,
		}); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, userID, "withdrawal.requested", "withdrawal", withdrawalID,
			jsonString(map[string]any{"amount": amount, "payout_account_id": account.ID}))
	})
	if err != nil {
		return models.Withdrawal{}, err
	}
	metrics.Withdrawals.WithLabelValues(models.WithdrawalPending).Inc()
	logging.Ctx(ctx).Info().Str("withdrawal_id", withdrawalID).Int64("amount", amount).Msg("withdrawal requested")
	return models.Withdrawal{
		ID:              withdrawalID,
		UserID:          userID,
		PayoutAccountID: stringPtr(account.ID),
		Amount:          amount,
		Status:          models.WithdrawalPending,
	}, nil
}

func (s *WithdrawalService) List(ctx context.Context, userID, status string, limit, offset int) ([]models.Withdrawal, error) {
	return s.withdrawals.List(ctx, userID, status, limit, offset)
}

// Cancel lets the owner take back a withdrawal nobody has started processing.
func (s *WithdrawalService) Cancel(ctx context.Context, userID, withdrawalID string) (models.Withdrawal, error) {
	return s.transition(ctx, withdrawalID, models.WithdrawalCancelled, nil, userID, func(w models.Withdrawal) error {
		if w.UserID != userID {
			return ErrNotFound
		}
		if w.Status != models.WithdrawalPending {
			return ErrInvalidTransition
		}
		return nil
	})
}

// UpdateStatus is the operator side of settlement.
func (s *WithdrawalService) UpdateStatus(ctx context.Context, adminID, withdrawalID, status string, reason *string) (models.Withdrawal, error) {
	if status == models.WithdrawalCancelled {
		return models.Withdrawal{}, ErrInvalidTransition
	}
	return s.transition(ctx, withdrawalID, status, reason, adminID, nil)
}

func (s *WithdrawalService) transition(ctx context.Context, withdrawalID, to string, reason *string, actorID string, check func(models.Withdrawal) error) (models.Withdrawal, error) {
	var w models.Withdrawal
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		w, err = s.withdrawals.GetForUpdate(ctx, tx, withdrawalID)
		if err != nil {
			return notFound(err)
		}
		if check != nil {
			if err := check(w); err != nil {
				return err
			}
		}
		if !models.CanTransitionWithdrawal(w.Status, to) {
			return ErrInvalidTransition
		}
		var processedBy *string
		if check == nil {
			processedBy = stringPtr(actorID)
		}
		rows, err := s.withdrawals.Transition(ctx, tx, w.ID, w.Status, to, reason, processedBy)
		if err != nil {
			return err
		}
		if rows != 1 {
			return ErrInvalidTransition
		}
		switch to {
		case models.WithdrawalCompleted:
			if err := s.settle(ctx, tx, w); err != nil {
				return err
			}
		case models.WithdrawalFailed, models.WithdrawalCancelled:
			failure := "withdrawal " + to
			if reason != nil && *reason != "" {
				failure = *reason
			}
			if err := s.reverse(ctx, tx, w, failure); err != nil {
				return err
			}
		}
		from := w.Status
		w.Status = to
		w.FailureReason = reason
		return s.audit.Log(ctx, tx, actorID, "withdrawal."+to, "withdrawal", w.ID,
			jsonString(map[string]any{"from": from, "to": to, "reason": reason}))
	})
	if err != nil {
		return models.Withdrawal{}, err
	}
	metrics.Withdrawals.WithLabelValues(to).Inc()
	s.publisher.Publish(ctx, events.TopicWithdrawalUpdated, events.WithdrawalUpdated{
		UserID:       w.UserID,
		WithdrawalID: w.ID,
		Status:       to,
		Amount:       w.Amount,
		Reason:       reason,
	})
	return w, nil
}

func (s *WithdrawalService) settle(ctx context.Context, tx *sqlx.Tx, w models.Withdrawal) error {
	rows, err := s.transactions.UpdateStatus(ctx, tx, w.TransactionID, models.TxCompleted, nil)
	if err != nil {
		return err
	}
	if rows != 1 {
		return ErrInvalidTransition
	}
	if err := post(ctx, tx, s.ledger, w.TransactionID, "withdrawal paid out",
		clearing(clearingWithdrawals, -w.Amount), external(w.Amount)); err != nil {
		return err
	}
	_, err = s.users.ApplyWallet(ctx, tx, w.UserID, store.WalletDelta{Withdrawn: w.Amount})
	return err
}

// reverse returns the held amount to the wallet.
func (s *WithdrawalService) reverse(ctx context.Context, tx *sqlx.Tx, w models.Withdrawal, reason string) error {
	rows, err := s.transactions.UpdateStatus(ctx, tx, w.TransactionID, models.TxFailed, stringPtr(reason))
	if err != nil {
		return err
	}
	if rows != 1 {
		return ErrInvalidTransition
	}
	if err := post(ctx, tx, s.ledger, w.TransactionID, "withdrawal reversed",
		clearing(clearingWithdrawals, -w.Amount), wallet(w.UserID, w.Amount)); err != nil {
		return err
	}
	_, err = s.users.ApplyWallet(ctx, tx, w.UserID, store.WalletDelta{Wallet: w.Amount})
	return err
}

type PayoutAccountRequest struct {
	HolderName string
	IBAN       string
	BankName   string
}

func (s *WithdrawalService) Accounts(ctx context.Context, userID string) ([]models.PayoutAccount, error) {
	return s.accounts.List(ctx, userID)
}

func (s *WithdrawalService) AddAccount(ctx context.Context, userID string, req PayoutAccountRequest) (models.PayoutAccount, error) {
	iban := validator.NormalizeIBAN(req.IBAN)
	if !validator.ValidIBAN(iban) {
		return models.PayoutAccount{}, ErrInvalidIBAN
	}
	return s.accounts.Create(ctx, store.PayoutAccountInput{
		ID:         uuid.NewString(),
		UserID:     userID,
		HolderName: req.HolderName,
		IBAN:       iban,
		BankName:   req.BankName,
	})
}

func (s *WithdrawalService) DeleteAccount(ctx context.Context, userID, accountID string) error {
	if _, err := s.accounts.Get(ctx, userID, accountID); err != nil {
		return notFound(err)
	}
	open, err := s.withdrawals.HasOpenForAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if open {
		return ErrAccountInUse
	}
	rows, err := s.accounts.Delete(ctx, userID, accountID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
