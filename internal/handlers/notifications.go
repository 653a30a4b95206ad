package handlers

import (
	"net/http"
	"strconv"

	"kixikila/internal/services"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread_only"))
	limit, offset := page(r)
	result, err := h.notifications.List(r.Context(), userID, unreadOnly, limit, offset)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, result)
}

type createNotificationRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	Type    string `json:"type" validate:"omitempty,max=50"`
	Title   string `json:"title" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=2000"`
}

func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	id, err := h.notifications.Create(r.Context(), services.CreateNotificationRequest{
		UserID:  req.UserID,
		Type:    req.Type,
		Title:   req.Title,
		Message: req.Message,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	h.setNotificationRead(w, r, true)
}

func (h *Handler) MarkNotificationUnread(w http.ResponseWriter, r *http.Request) {
	h.setNotificationRead(w, r, false)
}

func (h *Handler) setNotificationRead(w http.ResponseWriter, r *http.Request, read bool) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.notifications.SetRead(r.Context(), userID, chi.URLParam(r, "id"), read); err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]bool{"is_read": read})
}

func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	n, err := h.notifications.MarkAllRead(r.Context(), userID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]int64{"updated": n})
}
