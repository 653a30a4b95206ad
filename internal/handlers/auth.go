package handlers

import (
	"net/http"
	"strings"
	"time"

	"kixikila/internal/middleware"
	"kixikila/internal/models"
	"kixikila/internal/services"
	"kixikila/internal/validator"
)

type registerRequest struct {
	FullName string  `json:"full_name" validate:"required,min=2,max=120"`
	Phone    string  `json:"phone" validate:"required,phone"`
	Email    *string `json:"email" validate:"omitempty,email,max=254"`
	Password string  `json:"password" validate:"required,min=8,max=72"`
}

func (req *registerRequest) normalize() {
	req.Phone = validator.NormalizePhone(req.Phone)
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email == "" {
			req.Email = nil
		} else {
			req.Email = &email
		}
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decodeNormalized(w, r, &req, req.normalize) {
		return
	}
	result, err := h.auth.Register(r.Context(), services.RegisterRequest{
		FullName: req.FullName,
		Phone:    req.Phone,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, result)
}

// decodeNormalized decodes, normalizes, then validates so that formatting
// noise such as spaces in phone numbers is not reported as invalid.
func (h *Handler) decodeNormalized(w http.ResponseWriter, r *http.Request, dst any, normalize func()) bool {
	if err := decodeJSON(r, dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload", "invalid payload")
		return false
	}
	normalize()
	if err := validator.Struct(dst); err != nil {
		respondErr(w, r, err)
		return false
	}
	return true
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password" validate:"required"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	identifier := strings.TrimSpace(req.Identifier)
	if !strings.Contains(identifier, "@") {
		identifier = validator.NormalizePhone(identifier)
	}
	result, err := h.auth.Login(r.Context(), identifier, req.Password)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, result)
}

type verifyOTPRequest struct {
	Phone string `json:"phone" validate:"required,phone"`
	Code  string `json:"code" validate:"required,numeric,min=4,max=10"`
	Type  string `json:"type" validate:"required,oneof=registration login phone_change"`
}

func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !h.decodeNormalized(w, r, &req, func() { req.Phone = validator.NormalizePhone(req.Phone) }) {
		return
	}
	session, err := h.auth.VerifyOTP(r.Context(), req.Phone, req.Code, req.Type)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]any{
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
		"user":       newUserView(session.User),
	})
}

type resendOTPRequest struct {
	Phone string `json:"phone" validate:"required,phone"`
	Type  string `json:"type" validate:"omitempty,oneof=registration login phone_change"`
}

func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req resendOTPRequest
	if !h.decodeNormalized(w, r, &req, func() { req.Phone = validator.NormalizePhone(req.Phone) }) {
		return
	}
	if req.Type == "" {
		req.Type = models.OTPLogin
	}
	expiresAt, err := h.auth.ResendOTP(r.Context(), req.Phone, req.Type)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]time.Time{"otp_expires_at": expiresAt})
}

// Me is the profile under the auth prefix.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	h.GetProfile(w, r)
}

func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	}
	return userID, ok
}
