package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"kixikila/internal/models"
	"kixikila/internal/services"
	"kixikila/internal/store"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, offset := page(r)
	txs, err := h.transactions.List(r.Context(), store.TransactionFilter{
		UserID:  userID,
		Type:    q.Get("type"),
		Status:  q.Get("status"),
		GroupID: q.Get("group_id"),
	}, limit, offset)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, newTransactionViews(txs))
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	tx, err := h.transactions.GetForUser(r.Context(), userID, chi.URLParam(r, "id"))
	if errors.Is(err, sql.ErrNoRows) {
		respondErr(w, r, services.ErrNotFound)
		return
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, newTransactionView(tx))
}

type createTransactionRequest struct {
	Type          string `json:"type" validate:"required"`
	Amount        string `json:"amount" validate:"required,money"`
	GroupID       string `json:"group_id" validate:"required_if=Type group_contribution"`
	PaymentMethod string `json:"payment_method" validate:"omitempty,oneof=wallet card"`
}

// CreateTransaction starts a deposit or a group contribution. Every other
// transaction type is produced by the backend itself.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req createTransactionRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	amount, err := parseAmountMinor("amount", req.Amount)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	var result services.InitiationResult
	switch req.Type {
	case models.TxDeposit:
		if req.PaymentMethod != "" && req.PaymentMethod != models.MethodCard {
			respondErr(w, r, fieldError("payment_method", "deposits are card only"))
			return
		}
		result, err = h.payments.InitiateDeposit(r.Context(), userID, amount)
	case models.TxGroupContribution:
		method := req.PaymentMethod
		if method == "" {
			method = models.MethodWallet
		}
		result, err = h.payments.InitiateContribution(r.Context(), userID, req.GroupID, amount, method)
	default:
		respondErr(w, r, fieldError("type", "must be one of: deposit group_contribution"))
		return
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Status == models.TxPending {
		status = http.StatusAccepted
	}
	respondOK(w, status, newInitiationView(result))
}

// CancelTransaction abandons one of the caller's pending card payments.
func (h *Handler) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	tx, err := h.payments.CancelPayment(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, newTransactionView(tx))
}
