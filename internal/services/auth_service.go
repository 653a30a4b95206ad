package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"kixikila/internal/auth"
	"kixikila/internal/config"
	"kixikila/internal/db"
	"kixikila/internal/logging"
	"kixikila/internal/models"
	"kixikila/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// OTPIssuer is the slice of OTPService the auth flow needs.
type OTPIssuer interface {
	Issue(ctx context.Context, phone, otpType string) (time.Time, error)
	Verify(ctx context.Context, phone, code, otpType string, onSuccess func(tx *sqlx.Tx) error) error
}

type AuthService struct {
	txRunner db.TxRunner
	users    UserStore
	audit    AuditStore
	otp      OTPIssuer
	cfg      config.AuthConfig
}

func NewAuthService(txRunner db.TxRunner, users UserStore, audit AuditStore, otp OTPIssuer, cfg config.AuthConfig) *AuthService {
	return &AuthService{txRunner: txRunner, users: users, audit: audit, otp: otp, cfg: cfg}
}

type RegisterRequest struct {
	FullName string
	Phone    string
	Email    *string
	Password string
}

type RegisterResult struct {
	UserID       string    `json:"user_id"`
	OTPExpiresAt time.Time `json:"otp_expires_at"`
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	if _, err := s.users.GetByPhone(ctx, req.Phone); err == nil {
		return RegisterResult{}, ErrPhoneTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return RegisterResult{}, err
	}
	if req.Email != nil {
		if _, err := s.users.GetByEmail(ctx, *req.Email); err == nil {
			return RegisterResult{}, ErrEmailTaken
		} else if !errors.Is(err, sql.ErrNoRows) {
			return RegisterResult{}, err
		}
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return RegisterResult{}, err
	}
	userID := uuid.NewString()
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.users.Create(ctx, tx, store.UserInput{
			ID:           userID,
			Phone:        req.Phone,
			Email:        req.Email,
			FullName:     strings.TrimSpace(req.FullName),
			PasswordHash: hash,
		}); err != nil {
			if store.IsUniqueViolation(err) {
				return ErrPhoneTaken
			}
			return err
		}
		return s.audit.Log(ctx, tx, userID, "user.registered", "user", userID, "{}")
	})
	if err != nil {
		return RegisterResult{}, err
	}
	expiresAt, err := s.otp.Issue(ctx, req.Phone, models.OTPRegistration)
	if err != nil {
		return RegisterResult{}, err
	}
	logging.Ctx(ctx).Info().Str("user_id", userID).Msg("user registered")
	return RegisterResult{UserID: userID, OTPExpiresAt: expiresAt}, nil
}

type LoginResult struct {
	OTPRequired bool      `json:"otp_required"`
	OTPType     string    `json:"otp_type"`
	Phone       string    `json:"phone"`
	ExpiresAt   time.Time `json:"otp_expires_at"`
}

// Login checks the password and sends a second-factor code. The identifier
// is a phone number or an email address.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (LoginResult, error) {
	var (
		user models.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.users.GetByEmail(ctx, identifier)
	} else {
		user, err = s.users.GetByPhone(ctx, identifier)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return LoginResult{}, ErrInvalidCredentials
	}
	otpType := models.OTPLogin
	if !user.PhoneVerified {
		otpType = models.OTPRegistration
	}
	expiresAt, err := s.otp.Issue(ctx, user.Phone, otpType)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{OTPRequired: true, OTPType: otpType, Phone: user.Phone, ExpiresAt: expiresAt}, nil
}

type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

func (s *AuthService) VerifyOTP(ctx context.Context, phone, code, otpType string) (Session, error) {
	user, err := s.users.GetByPhone(ctx, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrInvalidOrExpiredOtp
	}
	if err != nil {
		return Session{}, err
	}
	err = s.otp.Verify(ctx, phone, code, otpType, func(tx *sqlx.Tx) error {
		if otpType == models.OTPRegistration && !user.PhoneVerified {
			if err := s.users.MarkPhoneVerified(ctx, tx, user.ID); err != nil {
				return err
			}
		}
		return s.audit.Log(ctx, tx, user.ID, "auth.otp_verified", "user", user.ID, jsonString(map[string]string{"type": otpType}))
	})
	if err != nil {
		return Session{}, err
	}
	if otpType == models.OTPRegistration {
		user.PhoneVerified = true
	}
	token, err := auth.GenerateToken(s.cfg.JWTSecret, user.ID, user.Role, s.cfg.TokenTTL)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: time.Now().Add(s.cfg.TokenTTL), User: user}, nil
}

func (s *AuthService) ResendOTP(ctx context.Context, phone, otpType string) (time.Time, error) {
	if _, err := s.users.GetByPhone(ctx, phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, err
	}
	return s.otp.Issue(ctx, phone, otpType)
}

func (s *AuthService) Profile(ctx context.Context, userID string) (models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return user, err
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID, fullName string, email *string) (models.User, error) {
	if email != nil {
		existing, err := s.users.GetByEmail(ctx, *email)
		if err == nil && existing.ID != userID {
			return models.User{}, ErrEmailTaken
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return models.User{}, err
		}
	}
	if err := s.users.UpdateProfile(ctx, userID, strings.TrimSpace(fullName), email); err != nil {
		if store.IsUniqueViolation(err) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, err
	}
	return s.Profile(ctx, userID)
}

// CreateAdmin provisions an operator account with a verified phone. actorID
// is empty when called from the CLI.
func (s *AuthService) CreateAdmin(ctx context.Context, actorID string, req RegisterRequest) (models.User, error) {
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return models.User{}, err
	}
	userID := uuid.NewString()
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.users.Create(ctx, tx, store.UserInput{
			ID:            userID,
			Phone:         req.Phone,
			Email:         req.Email,
			FullName:      strings.TrimSpace(req.FullName),
			PasswordHash:  hash,
			Role:          models.RoleAdmin,
			PhoneVerified: true,
		}); err != nil {
			if store.IsUniqueViolation(err) {
				return ErrPhoneTaken
			}
			return err
		}
		return s.audit.Log(ctx, tx, actorID, "admin.created", "user", userID, jsonString(map[string]string{"phone": req.Phone}))
	})
	if err != nil {
		return models.User{}, err
	}
	return s.Profile(ctx, userID)
}
