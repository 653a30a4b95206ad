package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"kixikila/internal/logging"
	"kixikila/internal/services"
	"kixikila/internal/validator"

	"github.com/goccy/go-json"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Success    bool                   `json:"success"`
	Data       any                    `json:"data,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Code       string                 `json:"code,omitempty"`
	Errors     []validator.FieldError `json:"errors,omitempty"`
	RetryAfter int                    `json:"retry_after,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondOK(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, envelope{Success: true, Data: data})
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, envelope{Success: true, Message: message})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, envelope{Message: message, Code: code})
}

type errorMapping struct {
	status int
	code   string
}

var serviceErrors = []struct {
	err error
	errorMapping
}{
	{services.ErrIncompleteCycle, errorMapping{http.StatusConflict, "incomplete_cycle"}},
	{services.ErrInvalidGroupState, errorMapping{http.StatusConflict, "invalid_group_state"}},
	{services.ErrDrawInProgress, errorMapping{http.StatusConflict, "draw_in_progress"}},
	{services.ErrInsufficientFunds, errorMapping{http.StatusUnprocessableEntity, "insufficient_funds"}},
	{services.ErrInvalidOrExpiredOtp, errorMapping{http.StatusBadRequest, "invalid_or_expired_otp"}},
	{services.ErrOTPRateLimited, errorMapping{http.StatusTooManyRequests, "rate_limited"}},
	{services.ErrGroupFull, errorMapping{http.StatusConflict, "group_full"}},
	{services.ErrAlreadyMember, errorMapping{http.StatusConflict, "already_member"}},
	{services.ErrNotGroupMember, errorMapping{http.StatusForbidden, "forbidden"}},
	{services.ErrForbidden, errorMapping{http.StatusForbidden, "forbidden"}},
	{services.ErrNotFound, errorMapping{http.StatusNotFound, "not_found"}},
	{services.ErrContributionExceedsDue, errorMapping{http.StatusUnprocessableEntity, "contribution_exceeds_due"}},
	{services.ErrGroupHasFunds, errorMapping{http.StatusConflict, "group_has_funds"}},
	{services.ErrMemberHasBalance, errorMapping{http.StatusConflict, "member_has_balance"}},
	{services.ErrGroupLimitReached, errorMapping{http.StatusForbidden, "group_limit_reached"}},
	{services.ErrInvalidTransition, errorMapping{http.StatusConflict, "invalid_transition"}},
	{services.ErrInvalidCredentials, errorMapping{http.StatusUnauthorized, "invalid_credentials"}},
	{services.ErrPhoneTaken, errorMapping{http.StatusConflict, "phone_taken"}},
	{services.ErrEmailTaken, errorMapping{http.StatusConflict, "email_taken"}},
	{services.ErrNotEnoughMembers, errorMapping{http.StatusConflict, "not_enough_members"}},
	{services.ErrInvalidPositions, errorMapping{http.StatusBadRequest, "invalid_positions"}},
	{services.ErrBelowMinimum, errorMapping{http.StatusUnprocessableEntity, "below_minimum"}},
	{services.ErrAccountInUse, errorMapping{http.StatusConflict, "account_in_use"}},
	{services.ErrInvalidAmount, errorMapping{http.StatusBadRequest, "invalid_amount"}},
	{services.ErrUnsupportedMethod, errorMapping{http.StatusBadRequest, "unsupported_method"}},
	{services.ErrPaymentsUnavailable, errorMapping{http.StatusServiceUnavailable, "payments_unavailable"}},
	{services.ErrUnknownConfigKey, errorMapping{http.StatusBadRequest, "unknown_config_key"}},
	{services.ErrInvalidConfigValue, errorMapping{http.StatusBadRequest, "invalid_config_value"}},
	{services.ErrInvalidIBAN, errorMapping{http.StatusBadRequest, "invalid_iban"}},
}

// respondErr maps a service error to its status and code. Unknown errors
// are logged and reported as a generic 500 so internals never leak.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validator.Error
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusBadRequest, envelope{Message: "validation failed", Code: "validation_error", Errors: verr.Fields})
		return
	}
	var limited *services.RateLimitError
	if errors.As(err, &limited) {
		retry := int(limited.RetryAfter.Seconds())
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		respondJSON(w, http.StatusTooManyRequests, envelope{Message: err.Error(), Code: "rate_limited", RetryAfter: retry})
		return
	}
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			respondError(w, m.status, m.code, m.err.Error())
			return
		}
	}
	logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	respondError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
}

var errInvalidPayload = errors.New("invalid payload")

// decode reads a JSON body into dst and runs the struct validator.
func decode(r *http.Request, dst any) error {
	if err := decodeJSON(r, dst); err != nil {
		return err
	}
	return validator.Struct(dst)
}

func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errInvalidPayload
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errInvalidPayload
	}
	return nil
}

// decodeOrRespond writes the error response itself and reports whether the
// handler may continue.
func decodeOrRespond(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := decode(r, dst)
	if err == nil {
		return true
	}
	if errors.Is(err, errInvalidPayload) {
		respondError(w, http.StatusBadRequest, "invalid_payload", "invalid payload")
		return false
	}
	respondErr(w, r, err)
	return false
}
