package handlers

import (
	"net/http"
	"strings"

	"kixikila/internal/middleware"
	"kixikila/internal/models"
	"kixikila/internal/services"
	"kixikila/internal/store"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	users, err := h.admin.Users(r.Context(), strings.TrimSpace(r.URL.Query().Get("search")), limit, offset)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, newUserView(u))
	}
	respondOK(w, http.StatusOK, out)
}

func (h *Handler) AdminCreateUser(w http.ResponseWriter, r *http.Request) {
	adminID, _ := middleware.UserIDFromContext(r.Context())
	var req registerRequest
	if !h.decodeNormalized(w, r, &req, req.normalize) {
		return
	}
	user, err := h.auth.CreateAdmin(r.Context(), adminID, services.RegisterRequest{
		FullName: req.FullName,
		Phone:    req.Phone,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, newUserView(user))
}

type kycRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

func (h *Handler) AdminSetKYC(w http.ResponseWriter, r *http.Request) {
	adminID, _ := middleware.UserIDFromContext(r.Context())
	var req kycRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	if err := h.admin.SetKYC(r.Context(), adminID, chi.URLParam(r, "id"), req.Status); err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]string{"kyc_status": req.Status})
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

func (h *Handler) AdminSetRole(w http.ResponseWriter, r *http.Request) {
	adminID, _ := middleware.UserIDFromContext(r.Context())
	var req roleRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	if err := h.admin.SetRole(r.Context(), adminID, chi.URLParam(r, "id"), req.Role); err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]string{"role": req.Role})
}

func (h *Handler) AdminListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := page(r)
	txs, err := h.admin.Transactions(r.Context(), store.TransactionFilter{
		UserID:  q.Get("user_id"),
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

func (h *Handler) AdminListWithdrawals(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	withdrawals, err := h.withdrawals.List(r.Context(), "", r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, newWithdrawalViews(withdrawals))
}

type withdrawalStatusRequest struct {
	Status string  `json:"status" validate:"required,oneof=processing completed failed"`
	Reason *string `json:"reason" validate:"omitempty,max=500"`
}

func (h *Handler) AdminUpdateWithdrawal(w http.ResponseWriter, r *http.Request) {
	adminID, _ := middleware.UserIDFromContext(r.Context())
	var req withdrawalStatusRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	withdrawal, err := h.withdrawals.UpdateStatus(r.Context(), adminID, chi.URLParam(r, "id"), req.Status, req.Reason)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, newWithdrawalView(withdrawal))
}

func (h *Handler) AdminAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := page(r)
	logs, err := h.admin.AuditLogs(r.Context(), store.AuditFilter{
		EntityType: q.Get("entity_type"),
		ActorID:    q.Get("actor_id"),
		Action:     q.Get("action"),
	}, limit, offset)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	respondOK(w, http.StatusOK, logs)
}

type monitoringView struct {
	Users              int                      `json:"users"`
	VIPUsers           int                      `json:"vip_users"`
	Groups             []store.GroupStatusCount `json:"groups"`
	PendingTxs         int                      `json:"pending_transactions"`
	PendingWithdrawals int                      `json:"pending_withdrawals"`
	PoolTotal          string                   `json:"pool_total"`
	Volume24h          string                   `json:"volume_24h"`
	Health             map[string]string        `json:"health"`
}

func (h *Handler) AdminMonitoring(w http.ResponseWriter, r *http.Request) {
	report, err := h.admin.Monitoring(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, monitoringView{
		Users:              report.Users,
		VIPUsers:           report.VIPUsers,
		Groups:             report.Groups,
		PendingTxs:         report.PendingTxs,
		PendingWithdrawals: report.PendingWithdrawals,
		PoolTotal:          fmtMoney(report.PoolTotal),
		Volume24h:          fmtMoney(report.Volume24h),
		Health:             report.Health,
	})
}

// AdminReconcile reports drift in minor units.
func (h *Handler) AdminReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.admin.Reconcile(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, report)
}

func (h *Handler) AdminListConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := h.admin.Config(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if settings == nil {
		settings = []models.SystemConfig{}
	}
	respondOK(w, http.StatusOK, settings)
}

type configRequest struct {
	Value string `json:"value" validate:"required,max=200"`
}

func (h *Handler) AdminSetConfig(w http.ResponseWriter, r *http.Request) {
	adminID, _ := middleware.UserIDFromContext(r.Context())
	var req configRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	key := chi.URLParam(r, "key")
	if err := h.admin.SetConfig(r.Context(), adminID, key, strings.TrimSpace(req.Value)); err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]string{"key": key, "value": strings.TrimSpace(req.Value)})
}

func (h *Handler) AdminCleanup(w http.ResponseWriter, r *http.Request) {
	report, err := h.cleanup.Run(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, report)
}

// Health pings the backing stores. It is public so load balancers can use it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status, ok := h.admin.Health(r.Context())
	if !ok {
		respondJSON(w, http.StatusServiceUnavailable, envelope{Data: map[string]any{"status": "degraded", "components": status}, Code: "unhealthy", Message: "a dependency is down"})
		return
	}
	respondOK(w, http.StatusOK, map[string]any{"status": "ok", "components": status})
}
