package store

import (
	"context"
	"time"

	"kixikila/internal/models"
)

type TransactionStore struct {
	db DB
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

const transactionColumns = `id, user_id, group_id, cycle, type, amount, currency, status, payment_method,
	payment_reference, reference, description, failure_reason, metadata, created_at, completed_at`

type TransactionInput struct {
	ID               string
	UserID           string
	GroupID          *string
	Cycle            *int
	Type             string
	Amount           int64
	Currency         string
	Status           string
	PaymentMethod    string
	PaymentReference *string
	Reference        string
	Description      string
	Metadata         string
}

func (s *TransactionStore) Create(ctx context.Context, tx Execer, input TransactionInput) error {
	metadata := input.Metadata
	if metadata == "" {
		metadata = "{}"
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, group_id, cycle, type, amount, currency, status, payment_method,
		                          payment_reference, reference, description, metadata, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        CASE WHEN $8 = 'completed' THEN NOW() END)
	`,
		input.ID, input.UserID, input.GroupID, input.Cycle, input.Type, input.Amount, input.Currency,
		input.Status, input.PaymentMethod, input.PaymentReference, input.Reference, input.Description, metadata,
	)
	return err
}

// SetPaymentReference attaches the external reference once the provider has
// issued it.
func (s *TransactionStore) SetPaymentReference(ctx context.Context, tx Execer, transactionID, reference string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE transactions SET payment_reference = $2 WHERE id = $1 AND payment_reference IS NULL
	`, transactionID, reference)
	return err
}

// UpdateStatus moves a pending transaction to a terminal status. Terminal
// rows are never touched, so zero rows affected means it was already settled.
func (s *TransactionStore) UpdateStatus(ctx context.Context, tx Execer, transactionID, status string, failureReason *string) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, failure_reason = $3, completed_at = CASE WHEN $2 = 'completed' THEN NOW() END
		WHERE id = $1 AND status = 'pending'
	`, transactionID, status, failureReason))
}

func (s *TransactionStore) GetForUpdateByPaymentReference(ctx context.Context, tx Getter, reference string) (models.Transaction, error) {
	var t models.Transaction
	err := tx.GetContext(ctx, &t, `
		SELECT `+transactionColumns+` FROM transactions WHERE payment_reference = $1 FOR UPDATE
	`, reference)
	return t, err
}

func (s *TransactionStore) GetForUpdate(ctx context.Context, tx Getter, transactionID string) (models.Transaction, error) {
	var t models.Transaction
	err := tx.GetContext(ctx, &t, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, transactionID)
	return t, err
}

func (s *TransactionStore) GetForUser(ctx context.Context, userID, transactionID string) (models.Transaction, error) {
	var t models.Transaction
	err := s.db.GetContext(ctx, &t, `
		SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND user_id = $2
	`, transactionID, userID)
	return t, err
}

// SumPendingContributions totals card contributions still awaiting the
// provider for one member and cycle.
func (s *TransactionStore) SumPendingContributions(ctx context.Context, tx Getter, groupID, userID string, cycle int) (int64, error) {
	var sum int64
	err := tx.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE group_id = $1 AND user_id = $2 AND cycle = $3
		  AND type = 'group_contribution' AND status = 'pending'
	`, groupID, userID, cycle)
	return sum, err
}

// ListStalePending returns card payments created before cutoff that are
// still waiting for the provider, oldest first.
func (s *TransactionStore) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = 'pending' AND payment_method = 'card' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, cutoff, limit)
	return rows, err
}

type TransactionFilter struct {
	UserID  string
	Type    string
	Status  string
	GroupID string
	Since   *time.Time
}

func (s *TransactionStore) List(ctx context.Context, tf TransactionFilter, limit, offset int) ([]models.Transaction, error) {
	f := &filter{}
	if tf.UserID != "" {
		f.add("user_id = ?", tf.UserID)
	}
	if tf.Type != "" {
		f.add("type = ?", tf.Type)
	}
	if tf.Status != "" {
		f.add("status = ?", tf.Status)
	}
	if tf.GroupID != "" {
		f.add("group_id = ?", tf.GroupID)
	}
	if tf.Since != nil {
		f.add("created_at >= ?", *tf.Since)
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions` + f.where() + ` ORDER BY created_at DESC` + f.page(limit, offset)
	var rows []models.Transaction
	if err := s.db.SelectContext(ctx, &rows, query, f.args...); err != nil {
		return nil, err
	}
	return rows, nil
}
