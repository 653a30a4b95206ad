package store

import (
	"context"
	"time"

	"kixikila/internal/models"
)

type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, phone, email, full_name, password_hash, role, kyc_status, phone_verified,
	is_vip, vip_expires_at, stripe_customer_id, wallet_balance, total_saved, total_earned,
	total_withdrawn, trust_score, created_at, updated_at`

type UserInput struct {
	ID            string
	Phone         string
	Email         *string
	FullName      string
	PasswordHash  string
	Role          string
	PhoneVerified bool
}

func (s *UserStore) Create(ctx context.Context, tx Execer, input UserInput) error {
	role := input.Role
	if role == "" {
		role = models.RoleUser
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, phone, email, full_name, password_hash, role, phone_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, input.ID, input.Phone, input.Email, input.FullName, input.PasswordHash, role, input.PhoneVerified)
	return err
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return user, err
}

func (s *UserStore) GetByPhone(ctx context.Context, phone string) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
	return user, err
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return user, err
}

func (s *UserStore) GetByStripeCustomer(ctx context.Context, tx Getter, customerID string) (models.User, error) {
	var user models.User
	err := tx.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE stripe_customer_id = $1`, customerID)
	return user, err
}

// GetForUpdate locks the user row; every wallet mutation goes through it.
func (s *UserStore) GetForUpdate(ctx context.Context, tx Getter, userID string) (models.User, error) {
	var user models.User
	err := tx.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID)
	return user, err
}

type WalletDelta struct {
	Wallet    int64
	Saved     int64
	Earned    int64
	Withdrawn int64
}

// ApplyWallet adds the deltas and returns the new wallet balance. The
// non-negative guard makes an over-debit affect zero rows.
func (s *UserStore) ApplyWallet(ctx context.Context, tx Getter, userID string, delta WalletDelta) (int64, error) {
	var balance int64
	err := tx.GetContext(ctx, &balance, `
		UPDATE users
		SET wallet_balance = wallet_balance + $2,
		    total_saved = total_saved + $3,
		    total_earned = total_earned + $4,
		    total_withdrawn = total_withdrawn + $5,
		    updated_at = NOW()
		WHERE id = $1 AND wallet_balance + $2 >= 0
		RETURNING wallet_balance
	`, userID, delta.Wallet, delta.Saved, delta.Earned, delta.Withdrawn)
	return balance, err
}

func (s *UserStore) MarkPhoneVerified(ctx context.Context, tx Execer, userID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE users SET phone_verified = TRUE, updated_at = NOW() WHERE id = $1`, userID)
	return err
}

func (s *UserStore) UpdateProfile(ctx context.Context, userID, fullName string, email *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET full_name = $2, email = $3, updated_at = NOW() WHERE id = $1
	`, userID, fullName, email)
	return err
}

func (s *UserStore) SetKYCStatus(ctx context.Context, tx Execer, userID, status string) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE users SET kyc_status = $2, updated_at = NOW() WHERE id = $1
	`, userID, status))
}

func (s *UserStore) SetRole(ctx context.Context, tx Execer, userID, role string) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1
	`, userID, role))
}

func (s *UserStore) SetVIP(ctx context.Context, tx Execer, userID string, active bool, expiresAt *time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users SET is_vip = $2, vip_expires_at = $3, updated_at = NOW() WHERE id = $1
	`, userID, active, expiresAt)
	return err
}

func (s *UserStore) SetStripeCustomer(ctx context.Context, tx Execer, userID, customerID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users SET stripe_customer_id = $2, updated_at = NOW()
		WHERE id = $1 AND stripe_customer_id IS NULL
	`, userID, customerID)
	return err
}

// ExpireVIP clears lapsed subscriptions and reports how many were cleared.
func (s *UserStore) ExpireVIP(ctx context.Context, now time.Time) (int64, error) {
	return rowsAffected(s.db.ExecContext(ctx, `
		UPDATE users SET is_vip = FALSE, updated_at = NOW()
		WHERE is_vip = TRUE AND vip_expires_at IS NOT NULL AND vip_expires_at <= $1
	`, now))
}

func (s *UserStore) List(ctx context.Context, search string, limit, offset int) ([]models.User, error) {
	f := &filter{}
	if search != "" {
		f.add("(full_name ILIKE ? OR phone ILIKE ? OR email ILIKE ?)", "%"+search+"%")
	}
	query := `SELECT ` + userColumns + ` FROM users` + f.where() + ` ORDER BY created_at DESC` + f.page(limit, offset)
	var users []models.User
	if err := s.db.SelectContext(ctx, &users, query, f.args...); err != nil {
		return nil, err
	}
	return users, nil
}
