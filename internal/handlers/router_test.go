package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"kixikila/internal/middleware"
	"kixikila/internal/models"
	"kixikila/internal/services"
	"kixikila/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	router := newTestRouter(t, Deps{}, nil)

	rr := doRequest(t, router, http.MethodGet, "/api/health", "", nil)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))
	var data struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	decodeData(t, decodeEnvelope(t, rr), &data)
	assert.Equal(t, "ok", data.Status)
	assert.Equal(t, "ok", data.Components["database"])
}

func TestHealthDegraded(t *testing.T) {
	router := newTestRouter(t, Deps{Admin: stubAdmin{
		healthFn: func(context.Context) (map[string]string, bool) {
			return map[string]string{"database": "ok", "redis": "connection refused"}, false
		},
	}}, nil)

	rr := doRequest(t, router, http.MethodGet, "/api/health", "", nil)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.False(t, env.Success)
	assert.Equal(t, "unhealthy", env.Code)
}

func TestUnknownRoute(t *testing.T) {
	router := newTestRouter(t, Deps{}, nil)

	rr := doRequest(t, router, http.MethodGet, "/api/nothing-here", "", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUnknownErrorIsHidden(t *testing.T) {
	router := newTestRouter(t, Deps{Auth: stubAuth{
		profileFn: func(context.Context, string) (models.User, error) {
			return models.User{}, assert.AnError
		},
	}}, nil)

	rr := doRequest(t, router, http.MethodGet, "/api/users/profile", "user-1", nil)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.Equal(t, "internal_error", env.Code)
	assert.NotContains(t, rr.Body.String(), assert.AnError.Error())
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, Deps{}, nil)
	doRequest(t, router, http.MethodGet, "/api/health", "", nil)

	rr := doRequest(t, router, http.MethodGet, "/metrics", "", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestNotificationsSocketRejectsBadToken(t *testing.T) {
	router := newTestRouter(t, Deps{}, nil)

	rr := doRequest(t, router, http.MethodGet, "/ws/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doRequest(t, router, http.MethodGet, "/ws/notifications?token=garbage", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMoneyRoutesAreRateLimitedPerUser(t *testing.T) {
	deps := Deps{Payments: stubPayments{
		depositFn: func(_ context.Context, _ string, amount int64) (services.InitiationResult, error) {
			return services.InitiationResult{Status: models.TxPending, Amount: amount}, nil
		},
	}}
	router := newTestRouter(t, deps, nil)
	body := map[string]any{"type": "deposit", "amount": "10"}

	for i := 0; i < testConfig().Security.MoneyRateLimit; i++ {
		rr := doRequest(t, router, http.MethodPost, "/api/transactions", "user-1", body)
		require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	}
	rr := doRequest(t, router, http.MethodPost, "/api/transactions", "user-1", body)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "rate_limited", decodeEnvelope(t, rr).Code)

	// Another user has an independent budget.
	rr = doRequest(t, router, http.MethodPost, "/api/transactions", "user-2", body)
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

type staticFlag bool

func (f staticFlag) Bool(context.Context, string) (bool, error) {
	return bool(f), nil
}

func TestMaintenanceBlocksMemberWrites(t *testing.T) {
	roles := stubRoles{"user-1": models.RoleUser, "admin-1": models.RoleAdmin}
	deps := Deps{
		Auth: stubAuth{profileFn: func(_ context.Context, userID string) (models.User, error) {
			return models.User{ID: userID}, nil
		}},
		Groups: stubGroups{createFn: func(context.Context, string, services.CreateGroupRequest) (models.Group, error) {
			return models.Group{ID: "group-1"}, nil
		}},
		Maintenance: middleware.NewMaintenance(staticFlag(true), roles, store.ConfigMaintenanceMode, time.Minute),
	}
	router := newTestRouter(t, deps, roles)
	group := map[string]any{
		"name":                   "Blocked",
		"type":                   "order",
		"contribution_amount":    "10",
		"contribution_frequency": "weekly",
		"max_members":            3,
	}

	rr := doRequest(t, router, http.MethodGet, "/api/users/profile", "user-1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(t, router, http.MethodPost, "/api/groups", "user-1", group)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "maintenance", decodeEnvelope(t, rr).Code)

	rr = doRequest(t, router, http.MethodPost, "/api/groups", "admin-1", group)
	assert.Equal(t, http.StatusCreated, rr.Code)
}
