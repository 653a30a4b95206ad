package handlers

import (
	"errors"
	"io"
	"net/http"

	"kixikila/internal/logging"
	"kixikila/internal/payments"
)

const maxWebhookBytes = 64 << 10

// StripeWebhook verifies the signature and hands the event to the payment
// service. Duplicates are acknowledged with 200 so Stripe stops retrying.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		logging.Ctx(r.Context()).Warn().Int64("limit", tooLarge.Limit).Msg("oversized webhook")
		respondError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "payload too large")
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload", "invalid payload")
		return
	}
	evt, err := h.webhooks.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if errors.Is(err, payments.ErrDisabled) {
		respondError(w, http.StatusServiceUnavailable, "payments_unavailable", "webhooks are not configured")
		return
	}
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("rejected webhook")
		respondError(w, http.StatusBadRequest, "invalid_signature", "invalid signature")
		return
	}
	if err := h.payments.HandleEvent(r.Context(), evt); err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) SubscriptionCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	checkout, err := h.subscriptions.Checkout(r.Context(), userID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, map[string]string{"session_id": checkout.ID, "url": checkout.URL})
}

func (h *Handler) SubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	status, err := h.subscriptions.Status(r.Context(), userID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, status)
}
