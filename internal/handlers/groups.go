package handlers

import (
	"net/http"
	"strings"

	"kixikila/internal/services"

	"github.com/go-chi/chi/v5"
)

type createGroupRequest struct {
	Name                  string `json:"name" validate:"required,min=3,max=100"`
	Description           string `json:"description" validate:"max=500"`
	Category              string `json:"category" validate:"omitempty,oneof=savings investment loan"`
	Type                  string `json:"type" validate:"required,oneof=lottery order"`
	ContributionAmount    string `json:"contribution_amount" validate:"required,money"`
	ContributionFrequency string `json:"contribution_frequency" validate:"required,oneof=weekly biweekly monthly"`
	MaxMembers            int    `json:"max_members" validate:"required,min=2,max=50"`
	RequiresApproval      bool   `json:"requires_approval"`
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req createGroupRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	amount, err := parseAmountMinor("contribution_amount", req.ContributionAmount)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if req.Category == "" {
		req.Category = "savings"
	}
	group, err := h.groups.Create(r.Context(), userID, services.CreateGroupRequest{
		Name:                  strings.TrimSpace(req.Name),
		Description:           strings.TrimSpace(req.Description),
		Category:              req.Category,
		Type:                  req.Type,
		ContributionAmount:    amount,
		ContributionFrequency: req.ContributionFrequency,
		MaxMembers:            req.MaxMembers,
		RequiresApproval:      req.RequiresApproval,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, newGroupView(group))
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	scope := r.URL.Query().Get("scope")
	if scope != "" && scope != "mine" && scope != "discover" {
		respondErr(w, r, fieldError("scope", "must be one of: mine discover"))
		return
	}
	limit, offset := page(r)
	groups, err := h.groups.List(r.Context(), userID, scope, limit, offset)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, newGroupViews(groups))
}

func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	detail, err := h.groups.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, newGroupDetailView(detail))
}

type updateGroupRequest struct {
	Name                  *string `json:"name" validate:"omitempty,min=3,max=100"`
	Description           *string `json:"description" validate:"omitempty,max=500"`
	MaxMembers            *int    `json:"max_members" validate:"omitempty,min=2,max=50"`
	ContributionAmount    *string `json:"contribution_amount" validate:"omitempty,money"`
	ContributionFrequency *string `json:"contribution_frequency" validate:"omitempty,oneof=weekly biweekly monthly"`
	Type                  *string `json:"type" validate:"omitempty,oneof=lottery order"`
	Status                *string `json:"status" validate:"omitempty,oneof=draft active paused completed cancelled"`
}

func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req updateGroupRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	update := services.UpdateGroupRequest{
		Name:                  req.Name,
		Description:           req.Description,
		MaxMembers:            req.MaxMembers,
		ContributionFrequency: req.ContributionFrequency,
		Type:                  req.Type,
		Status:                req.Status,
	}
	if req.ContributionAmount != nil {
		amount, err := parseAmountMinor("contribution_amount", *req.ContributionAmount)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		update.ContributionAmount = &amount
	}
	group, err := h.groups.Update(r.Context(), userID, chi.URLParam(r, "id"), update)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, newGroupView(group))
}

func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.groups.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		respondErr(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "group deleted")
}

func (h *Handler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	member, err := h.groups.Join(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, newMemberView(member))
}

func (h *Handler) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.groups.Leave(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		respondErr(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "left group")
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	members, err := h.groups.Members(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, newMemberViews(members))
}

type updateMemberRequest struct {
	Status *string `json:"status" validate:"omitempty,oneof=active left"`
	Role   *string `json:"role" validate:"omitempty,oneof=admin member"`
}

func (h *Handler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req updateMemberRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	if req.Status == nil && req.Role == nil {
		respondErr(w, r, fieldError("status", "status or role is required"))
		return
	}
	member, err := h.groups.UpdateMember(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "userID"), services.UpdateMemberRequest{
		Status: req.Status,
		Role:   req.Role,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, newMemberView(member))
}

type reorderRequest struct {
	Positions map[string]int `json:"positions" validate:"required,min=1"`
}

func (h *Handler) ReorderPositions(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req reorderRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	members, err := h.groups.ReorderPositions(r.Context(), userID, chi.URLParam(r, "id"), req.Positions)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, newMemberViews(members))
}

func (h *Handler) Draw(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	result, err := h.draws.Draw(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, newDrawView(result))
}

func (h *Handler) DrawHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	draws, err := h.draws.History(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, newDrawHistoryViews(draws))
}
