package store

import (
	"context"

	"kixikila/internal/models"
)

type WithdrawalStore struct {
	db DB
}

func NewWithdrawalStore(db DB) *WithdrawalStore {
	return &WithdrawalStore{db: db}
}

const withdrawalColumns = `id, user_id, payout_account_id, transaction_id, amount, status, failure_reason,
	processed_by, processed_at, created_at, updated_at`

type WithdrawalInput struct {
	ID              string
	UserID          string
	PayoutAccountID string
	TransactionID   string
	Amount          int64
}

func (s *WithdrawalStore) Create(ctx context.Context, tx Execer, input WithdrawalInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO withdrawals (id, user_id, payout_account_id, transaction_id, amount, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
	`, input.ID, input.UserID, input.PayoutAccountID, input.TransactionID, input.Amount)
	return err
}

func (s *WithdrawalStore) GetForUpdate(ctx context.Context, tx Getter, withdrawalID string) (models.Withdrawal, error) {
	var w models.Withdrawal
	err := tx.GetContext(ctx, &w, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, withdrawalID)
	return w, err
}

// Transition moves the row only if it is still in from.
func (s *WithdrawalStore) Transition(ctx context.Context, tx Execer, withdrawalID, from, to string, reason, processedBy *string) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE withdrawals
		SET status = $3, failure_reason = $4, processed_by = COALESCE($5, processed_by),
		    processed_at = CASE WHEN $3 IN ('completed', 'failed') THEN NOW() ELSE processed_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, withdrawalID, from, to, reason, processedBy))
}

func (s *WithdrawalStore) List(ctx context.Context, userID, status string, limit, offset int) ([]models.Withdrawal, error) {
	f := &filter{}
	if userID != "" {
		f.add("user_id = ?", userID)
	}
	if status != "" {
		f.add("status = ?", status)
	}
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals` + f.where() + ` ORDER BY created_at DESC` + f.page(limit, offset)
	var rows []models.Withdrawal
	if err := s.db.SelectContext(ctx, &rows, query, f.args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *WithdrawalStore) HasOpenForAccount(ctx context.Context, payoutAccountID string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(1) FROM withdrawals WHERE payout_account_id = $1 AND status IN ('pending', 'processing')
	`, payoutAccountID)
	return count > 0, err
}
