package handlers

import (
	"net/http"
	"strings"
)

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := h.auth.Profile(r.Context(), userID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, newUserView(user))
}

type updateProfileRequest struct {
	FullName string  `json:"full_name" validate:"required,min=2,max=120"`
	Email    *string `json:"email" validate:"omitempty,email,max=254"`
}

// UpdateProfile only touches name and email; role, KYC and balances are not
// writable here.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	normalize := func() {
		req.FullName = strings.TrimSpace(req.FullName)
		if req.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*req.Email))
			req.Email = &email
			if email == "" {
				req.Email = nil
			}
		}
	}
	if !h.decodeNormalized(w, r, &req, normalize) {
		return
	}
	user, err := h.auth.UpdateProfile(r.Context(), userID, req.FullName, req.Email)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, newUserView(user))
}
