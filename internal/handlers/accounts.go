package handlers

import (
	"net/http"
	"strings"

	"kixikila/internal/services"
	"kixikila/internal/validator"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListPayoutAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	accounts, err := h.withdrawals.Accounts(r.Context(), userID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if accounts == nil {
		respondOK(w, http.StatusOK, []any{})
		return
	}
	respondOK(w, http.StatusOK, accounts)
}

type payoutAccountRequest struct {
	HolderName string `json:"holder_name" validate:"required,min=2,max=120"`
	IBAN       string `json:"iban" validate:"required,iban"`
	BankName   string `json:"bank_name" validate:"required,max=120"`
}

func (h *Handler) CreatePayoutAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req payoutAccountRequest
	normalize := func() {
		req.IBAN = validator.NormalizeIBAN(req.IBAN)
		req.HolderName = strings.TrimSpace(req.HolderName)
		req.BankName = strings.TrimSpace(req.BankName)
	}
	if !h.decodeNormalized(w, r, &req, normalize) {
		return
	}
	account, err := h.withdrawals.AddAccount(r.Context(), userID, services.PayoutAccountRequest{
		HolderName: req.HolderName,
		IBAN:       req.IBAN,
		BankName:   req.BankName,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, account)
}

func (h *Handler) DeletePayoutAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.withdrawals.DeleteAccount(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		respondErr(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "payout account deleted")
}

type withdrawalRequest struct {
	Amount          string `json:"amount" validate:"required,money"`
	PayoutAccountID string `json:"payout_account_id" validate:"required"`
}

func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req withdrawalRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	amount, err := parseAmountMinor("amount", req.Amount)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	withdrawal, err := h.withdrawals.Request(r.Context(), userID, amount, req.PayoutAccountID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, newWithdrawalView(withdrawal))
}

func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, offset := page(r)
	withdrawals, err := h.withdrawals.List(r.Context(), userID, r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, newWithdrawalViews(withdrawals))
}

func (h *Handler) CancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	withdrawal, err := h.withdrawals.Cancel(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, newWithdrawalView(withdrawal))
}
