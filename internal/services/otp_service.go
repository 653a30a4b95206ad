package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"kixikila/internal/auth"
	"kixikila/internal/config"
	"kixikila/internal/db"
	"kixikila/internal/logging"
	"kixikila/internal/messaging"
	"kixikila/internal/metrics"
	"kixikila/internal/models"
	"kixikila/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type OTPStore interface {
	Issue(ctx context.Context, tx store.Execer, input store.OTPInput) error
	LatestPendingForUpdate(ctx context.Context, tx store.Getter, phone, otpType string) (models.OTPCode, error)
	RecordFailure(ctx context.Context, tx store.Getter, codeID string, maxAttempts int) (int, error)
	Consume(ctx context.Context, tx store.Execer, codeID string) (int64, error)
}

// Throttle is an expiring per-subject flag shared across instances.
type Throttle interface {
	Claim(ctx context.Context, subject string, d time.Duration) (bool, time.Duration, error)
	Set(ctx context.Context, subject string, d time.Duration) error
	Active(ctx context.Context, subject string) (bool, time.Duration, error)
	Clear(ctx context.Context, subject string) error
}

type OTPService struct {
	txRunner db.TxRunner
	otps     OTPStore
	sms      messaging.Sender
	cooldown Throttle
	lockout  Throttle
	cfg      config.OTPConfig
	now      func() time.Time
}

func NewOTPService(txRunner db.TxRunner, otps OTPStore, sms messaging.Sender, cooldown, lockout Throttle, cfg config.OTPConfig) *OTPService {
	return &OTPService{
		txRunner: txRunner,
		otps:     otps,
		sms:      sms,
		cooldown: cooldown,
		lockout:  lockout,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Issue sends a fresh code to phone and returns its expiry. Earlier pending
// codes of the same type stop working.
func (s *OTPService) Issue(ctx context.Context, phone, otpType string) (time.Time, error) {
	if err := s.checkLockout(ctx, phone); err != nil {
		metrics.OTP.WithLabelValues("issue", "locked").Inc()
		return time.Time{}, err
	}
	ok, wait, err := s.cooldown.Claim(ctx, phone, s.cfg.ResendCooldown)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("otp cooldown unavailable")
	} else if !ok {
		metrics.OTP.WithLabelValues("issue", "throttled").Inc()
		return time.Time{}, &RateLimitError{RetryAfter: wait}
	}

	code, err := generateCode(s.cfg.Length)
	if err != nil {
		return time.Time{}, err
	}
	hash, err := auth.HashPassword(code)
	if err != nil {
		return time.Time{}, err
	}
	expiresAt := s.now().Add(s.cfg.TTL)
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.otps.Issue(ctx, tx, store.OTPInput{
			ID:        uuid.NewString(),
			Phone:     phone,
			CodeHash:  hash,
			Type:      otpType,
			ExpiresAt: expiresAt,
		})
	})
	if err != nil {
		return time.Time{}, err
	}

	body := fmt.Sprintf("KIXIKILA: your verification code is %s. It expires in %d minutes.", code, int(s.cfg.TTL.Minutes()))
	if err := s.sms.SendSMS(ctx, phone, body); err != nil {
		_ = s.cooldown.Clear(ctx, phone)
		metrics.OTP.WithLabelValues("issue", "sms_failed").Inc()
		return time.Time{}, fmt.Errorf("deliver otp: %w", err)
	}
	metrics.OTP.WithLabelValues("issue", "ok").Inc()
	return expiresAt, nil
}

// Verify checks code against the latest pending code for (phone, type).
// onSuccess runs in the same transaction that consumes the code. Wrong
// codes still commit their attempt count.
func (s *OTPService) Verify(ctx context.Context, phone, code, otpType string, onSuccess func(tx *sqlx.Tx) error) error {
	if err := s.checkLockout(ctx, phone); err != nil {
		metrics.OTP.WithLabelValues("verify", "locked").Inc()
		return err
	}
	var verifyErr error
	var exhausted bool
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		verifyErr, exhausted = nil, false
		otp, err := s.otps.LatestPendingForUpdate(ctx, tx, phone, otpType)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidOrExpiredOtp
		}
		if err != nil {
			return err
		}
		if !s.now().Before(otp.ExpiresAt) {
			return ErrInvalidOrExpiredOtp
		}
		if !auth.CheckPassword(otp.CodeHash, code) {
			attempts, err := s.otps.RecordFailure(ctx, tx, otp.ID, s.cfg.MaxAttempts)
			if err != nil {
				return err
			}
			exhausted = attempts >= s.cfg.MaxAttempts
			verifyErr = ErrInvalidOrExpiredOtp
			return nil
		}
		consumed, err := s.otps.Consume(ctx, tx, otp.ID)
		if err != nil {
			return err
		}
		if consumed != 1 {
			return ErrInvalidOrExpiredOtp
		}
		if onSuccess != nil {
			return onSuccess(tx)
		}
		return nil
	})
	if err != nil {
		metrics.OTP.WithLabelValues("verify", "rejected").Inc()
		return err
	}
	if exhausted {
		if err := s.lockout.Set(ctx, phone, s.cfg.BlockDuration); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("otp lockout unavailable")
		}
		logging.Ctx(ctx).Warn().Str("phone", messaging.MaskPhone(phone)).Msg("otp attempts exhausted, phone locked")
	}
	if verifyErr != nil {
		metrics.OTP.WithLabelValues("verify", "wrong_code").Inc()
		return verifyErr
	}
	if err := s.lockout.Clear(ctx, phone); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("otp lockout clear failed")
	}
	metrics.OTP.WithLabelValues("verify", "ok").Inc()
	return nil
}

func (s *OTPService) checkLockout(ctx context.Context, phone string) error {
	locked, wait, err := s.lockout.Active(ctx, phone)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("otp lockout unavailable")
		return nil
	}
	if locked {
		return &RateLimitError{RetryAfter: wait}
	}
	return nil
}

func generateCode(length int) (string, error) {
	if length <= 0 {
		length = 6
	}
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate otp: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
