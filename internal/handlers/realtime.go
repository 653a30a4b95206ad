package handlers

import (
	"net/http"
	"strings"

	"kixikila/internal/auth"
	"kixikila/internal/websocket"
)

// NotificationsSocket upgrades to a websocket that receives the caller's
// notifications. Browsers cannot set headers on the handshake, so the token
// may come as ?token=.
func (h *Handler) NotificationsSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	}
	claims, err := auth.ParseToken(h.cfg.Auth.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return
	}
	websocket.ServeWS(w, r, websocket.Upgrader(h.cfg.Security.AllowedOrigins), h.hub, claims.UserID)
}
