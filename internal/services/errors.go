package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrPhoneTaken             = errors.New("phone already registered")
	ErrEmailTaken             = errors.New("email already registered")
	ErrInvalidOrExpiredOtp    = errors.New("invalid or expired code")
	ErrOTPRateLimited         = errors.New("too many requests")
	ErrIncompleteCycle        = errors.New("not every member has contributed for this cycle")
	ErrInvalidGroupState      = errors.New("group is not in a valid state for this operation")
	ErrDrawInProgress         = errors.New("a draw is already in progress for this group")
	ErrGroupFull              = errors.New("group is full")
	ErrAlreadyMember          = errors.New("already a member of this group")
	ErrNotGroupMember         = errors.New("not a member of this group")
	ErrMemberHasBalance       = errors.New("member has contributions in the current cycle")
	ErrContributionExceedsDue = errors.New("amount exceeds what is due this cycle")
	ErrGroupHasFunds          = errors.New("group still holds funds")
	ErrGroupLimitReached      = errors.New("free plan group limit reached")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrNotEnoughMembers       = errors.New("group needs at least two active members")
	ErrInvalidPositions       = errors.New("positions must be a permutation of 1..N")
	ErrBelowMinimum           = errors.New("amount is below the minimum")
	ErrAccountInUse           = errors.New("payout account has an open withdrawal")
	ErrUnsupportedMethod      = errors.New("unsupported payment method")
	ErrPaymentsUnavailable    = errors.New("card payments are unavailable")
	ErrUnknownConfigKey       = errors.New("unknown configuration key")
	ErrInvalidConfigValue     = errors.New("invalid configuration value")
	ErrInvalidIBAN            = errors.New("invalid IBAN")
)

// RateLimitError carries how long the caller must wait. It matches
// ErrOTPRateLimited under errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many requests, retry in %ds", int(e.RetryAfter.Seconds()))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrOTPRateLimited
}
