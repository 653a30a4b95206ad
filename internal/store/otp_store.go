package store

import (
	"context"
	"time"

	"kixikila/internal/models"
)

type OTPStore struct {
	db DB
}

func NewOTPStore(db DB) *OTPStore {
	return &OTPStore{db: db}
}

type OTPInput struct {
	ID        string
	Phone     string
	CodeHash  string
	Type      string
	ExpiresAt time.Time
}

// Issue retires any pending code for (phone, type) and stores the new one.
func (s *OTPStore) Issue(ctx context.Context, tx Execer, input OTPInput) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE otp_codes SET status = 'used' WHERE phone = $1 AND type = $2 AND status = 'pending'
	`, input.Phone, input.Type); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO otp_codes (id, phone, code_hash, type, status, expires_at)
		VALUES ($1, $2, $3, $4, 'pending', $5)
	`, input.ID, input.Phone, input.CodeHash, input.Type, input.ExpiresAt)
	return err
}

func (s *OTPStore) LatestPendingForUpdate(ctx context.Context, tx Getter, phone, otpType string) (models.OTPCode, error) {
	var code models.OTPCode
	err := tx.GetContext(ctx, &code, `
		SELECT id, phone, code_hash, type, status, attempts, expires_at, verified_at, created_at
		FROM otp_codes
		WHERE phone = $1 AND type = $2 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, phone, otpType)
	return code, err
}

// RecordFailure bumps the attempt counter and fails the code once it
// reaches maxAttempts. It returns the new attempt count.
func (s *OTPStore) RecordFailure(ctx context.Context, tx Getter, codeID string, maxAttempts int) (int, error) {
	var attempts int
	err := tx.GetContext(ctx, &attempts, `
		UPDATE otp_codes
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE status END
		WHERE id = $1
		RETURNING attempts
	`, codeID, maxAttempts)
	return attempts, err
}

// Consume flips a live pending code to verified. One row affected means
// this caller won.
func (s *OTPStore) Consume(ctx context.Context, tx Execer, codeID string) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE otp_codes
		SET status = 'verified', verified_at = NOW()
		WHERE id = $1 AND status = 'pending' AND expires_at > NOW()
	`, codeID))
}

func (s *OTPStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return rowsAffected(s.db.ExecContext(ctx, `DELETE FROM otp_codes WHERE expires_at < $1`, cutoff))
}
