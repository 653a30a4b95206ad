package handlers

import (
	"context"
	"net/http"
	"testing"

	"kixikila/internal/models"
	"kixikila/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGroupParsesAmount(t *testing.T) {
	var got services.CreateGroupRequest
	router := newTestRouter(t, Deps{Groups: stubGroups{
		createFn: func(_ context.Context, userID string, req services.CreateGroupRequest) (models.Group, error) {
			got = req
			return models.Group{ID: "group-1", Name: req.Name, ContributionAmount: req.ContributionAmount, CreatorID: userID, Status: models.GroupDraft}, nil
		},
	}}, nil)

	rr := doRequest(t, router, http.MethodPost, "/api/groups", "user-1", map[string]any{
		"name":                   "  Poupança Família ",
		"type":                   "lottery",
		"contribution_amount":    "100.50",
		"contribution_frequency": "monthly",
		"max_members":            6,
	})

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, int64(10050), got.ContributionAmount)
	assert.Equal(t, "Poupança Família", got.Name)
	assert.Equal(t, "savings", got.Category)

	var data groupView
	decodeData(t, decodeEnvelope(t, rr), &data)
	assert.Equal(t, "100.50", data.ContributionAmount)
	assert.Equal(t, "user-1", data.CreatorID)
}

func TestCreateGroupLimitReached(t *testing.T) {
	router := newTestRouter(t, Deps{Groups: stubGroups{
		createFn: func(context.Context, string, services.CreateGroupRequest) (models.Group, error) {
			return models.Group{}, services.ErrGroupLimitReached
		},
	}}, nil)

	rr := doRequest(t, router, http.MethodPost, "/api/groups", "user-1", map[string]any{
		"name":                   "Third group",
		"type":                   "order",
		"contribution_amount":    "50",
		"contribution_frequency": "weekly",
		"max_members":            4,
	})

	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "group_limit_reached", decodeEnvelope(t, rr).Code)
}

func TestCreateGroupRejectsBadAmount(t *testing.T) {
	router := newTestRouter(t, Deps{Groups: stubGroups{}}, nil)

	rr := doRequest(t, router, http.MethodPost, "/api/groups", "user-1", map[string]any{
		"name":                   "Bad amount",
		"type":                   "order",
		"contribution_amount":    "10.001",
		"contribution_frequency": "weekly",
		"max_members":            4,
	})

	require.Equal(t, http.StatusBadRequest, rr.Code)
	env := decodeEnvelope(t, rr)
	require.NotEmpty(t, env.Errors)
	assert.Equal(t, "contribution_amount", env.Errors[0].Field)
}

func TestListGroupsScope(t *testing.T) {
	var scope string
	router := newTestRouter(t, Deps{Groups: stubGroups{
		listFn: func(_ context.Context, _ string, s string, limit, offset int) ([]models.Group, error) {
			scope = s
			assert.Equal(t, 20, limit)
			assert.Equal(t, 0, offset)
			return nil, nil
		},
	}}, nil)

	rr := doRequest(t, router, http.MethodGet, "/api/groups?scope=discover", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "discover", scope)
	assert.True(t, decodeEnvelope(t, rr).Success)

	rr = doRequest(t, router, http.MethodGet, "/api/groups?scope=everything", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetGroupNotMember(t *testing.T) {
	router := newTestRouter(t, Deps{Groups: stubGroups{
		getFn: func(context.Context, string, string) (services.GroupDetail, error) {
			return services.GroupDetail{}, services.ErrNotGroupMember
		},
	}}, nil)

	rr := doRequest(t, router, http.MethodGet, "/api/groups/group-1", "user-2", nil)

	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "forbidden", decodeEnvelope(t, rr).Code)
}

func TestJoinGroupChecksPolicy(t *testing.T) {
	router := newTestRouter(t, Deps{Groups: stubGroups{
		joinFn: func(_ context.Context, userID, groupID string) (models.GroupMember, error) {
			return models.GroupMember{GroupID: groupID, UserID: userID, Role: models.MemberRoleMember, Status: models.MemberActive}, nil
		},
	}}, stubRoles{"user-1": models.RoleUser})

	rr := doRequest(t, router, http.MethodPost, "/api/groups/group-1/join", "user-1", nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	// A token for a deleted profile has no role and is refused.
	rr = doRequest(t, router, http.MethodPost, "/api/groups/group-1/join", "ghost", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestJoinGroupFull(t *testing.T) {
	router := newTestRouter(t, Deps{Groups: stubGroups{
		joinFn: func(context.Context, string, string) (models.GroupMember, error) {
			return models.GroupMember{}, services.ErrGroupFull
		},
	}}, stubRoles{"user-1": models.RoleUser})

	rr := doRequest(t, router, http.MethodPost, "/api/groups/group-1/join", "user-1", nil)

	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "group_full", decodeEnvelope(t, rr).Code)
}

func TestReorderPositionsPassesMap(t *testing.T) {
	var got map[string]int
	router := newTestRouter(t, Deps{Groups: stubGroups{
		reorderFn: func(_ context.Context, _ string, _ string, positions map[string]int) ([]models.GroupMember, error) {
			got = positions
			return nil, nil
		},
	}}, nil)

	rr := doRequest(t, router, http.MethodPut, "/api/groups/group-1/positions", "user-1", map[string]any{
		"positions": map[string]int{"user-1": 2, "user-2": 1},
	})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, map[string]int{"user-1": 2, "user-2": 1}, got)
}

func TestDrawIncompleteCycle(t *testing.T) {
	router := newTestRouter(t, Deps{Draws: stubDraws{
		drawFn: func(context.Context, string, string) (services.DrawResult, error) {
			return services.DrawResult{}, services.ErrIncompleteCycle
		},
	}}, nil)

	rr := doRequest(t, router, http.MethodPost, "/api/groups/group-1/draw", "user-1", nil)

	require.Equal(t, http.StatusConflict, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.False(t, env.Success)
	assert.Equal(t, "incomplete_cycle", env.Code)
}

func TestDrawReturnsAmountsAsDecimals(t *testing.T) {
	router := newTestRouter(t, Deps{Draws: stubDraws{
		drawFn: func(_ context.Context, _ string, groupID string) (services.DrawResult, error) {
			return services.DrawResult{
				DrawID:       "draw-1",
				GroupID:      groupID,
				Cycle:        1,
				Mode:         "lottery",
				WinnerUserID: "user-2",
				PoolAmount:   30000,
				FeeAmount:    300,
				PayoutAmount: 29700,
				Candidates:   []string{"user-1", "user-2", "user-3"},
			}, nil
		},
	}}, nil)

	rr := doRequest(t, router, http.MethodPost, "/api/groups/group-1/draw", "user-1", nil)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var data drawView
	decodeData(t, decodeEnvelope(t, rr), &data)
	assert.Equal(t, "300.00", data.PoolAmount)
	assert.Equal(t, "3.00", data.FeeAmount)
	assert.Equal(t, "297.00", data.PayoutAmount)
	assert.Equal(t, "user-2", data.WinnerUserID)
}
