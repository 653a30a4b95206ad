package store

import (
	"context"

	"kixikila/internal/models"
)

type PayoutAccountStore struct {
	db DB
}

func NewPayoutAccountStore(db DB) *PayoutAccountStore {
	return &PayoutAccountStore{db: db}
}

type PayoutAccountInput struct {
	ID         string
	UserID     string
	HolderName string
	IBAN       string
	BankName   string
}

// Create makes the account the default when the user has no other.
func (s *PayoutAccountStore) Create(ctx context.Context, input PayoutAccountInput) (models.PayoutAccount, error) {
	var account models.PayoutAccount
	err := s.db.GetContext(ctx, &account, `
		INSERT INTO payout_accounts (id, user_id, holder_name, iban, bank_name, is_default)
		VALUES ($1, $2, $3, $4, $5, NOT EXISTS (SELECT 1 FROM payout_accounts WHERE user_id = $2))
		RETURNING id, user_id, holder_name, iban, bank_name, is_default, created_at
	`, input.ID, input.UserID, input.HolderName, input.IBAN, input.BankName)
	return account, err
}

func (s *PayoutAccountStore) Get(ctx context.Context, userID, accountID string) (models.PayoutAccount, error) {
	var account models.PayoutAccount
	err := s.db.GetContext(ctx, &account, `
		SELECT id, user_id, holder_name, iban, bank_name, is_default, created_at
		FROM payout_accounts WHERE id = $1 AND user_id = $2
	`, accountID, userID)
	return account, err
}

func (s *PayoutAccountStore) List(ctx context.Context, userID string) ([]models.PayoutAccount, error) {
	var accounts []models.PayoutAccount
	err := s.db.SelectContext(ctx, &accounts, `
		SELECT id, user_id, holder_name, iban, bank_name, is_default, created_at
		FROM payout_accounts WHERE user_id = $1
		ORDER BY is_default DESC, created_at
	`, userID)
	return accounts, err
}

func (s *PayoutAccountStore) Delete(ctx context.Context, userID, accountID string) (int64, error) {
	return rowsAffected(s.db.ExecContext(ctx, `
		DELETE FROM payout_accounts WHERE id = $1 AND user_id = $2
	`, accountID, userID))
}
