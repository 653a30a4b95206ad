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

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	calls := 0
	router := newTestRouter(t, Deps{Admin: stubAdmin{
		usersFn: func(context.Context, string, int, int) ([]models.User, error) {
			calls++
			return []models.User{{ID: "user-1", Role: models.RoleUser}}, nil
		},
	}}, stubRoles{"user-1": models.RoleUser, "admin-1": models.RoleAdmin})

	rr := doRequest(t, router, http.MethodGet, "/api/admin/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doRequest(t, router, http.MethodGet, "/api/admin/users", "user-1", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "forbidden", decodeEnvelope(t, rr).Code)
	assert.Equal(t, 0, calls)

	rr = doRequest(t, router, http.MethodGet, "/api/admin/users", "admin-1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1, calls)
}

func TestAdminSetConfigUnknownKey(t *testing.T) {
	router := newTestRouter(t, Deps{Admin: stubAdmin{
		setConfigFn: func(_ context.Context, adminID, key, _ string) error {
			assert.Equal(t, "admin-1", adminID)
			if key != "payout_fee_bps" {
				return services.ErrUnknownConfigKey
			}
			return nil
		},
	}}, stubRoles{"admin-1": models.RoleAdmin})

	rr := doRequest(t, router, http.MethodPut, "/api/admin/config/payout_fee_bps", "admin-1", map[string]any{"value": " 150 "})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var data map[string]string
	decodeData(t, decodeEnvelope(t, rr), &data)
	assert.Equal(t, "150", data["value"])

	rr = doRequest(t, router, http.MethodPut, "/api/admin/config/nope", "admin-1", map[string]any{"value": "1"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "unknown_config_key", decodeEnvelope(t, rr).Code)
}

func TestAdminUpdateWithdrawalTransition(t *testing.T) {
	router := newTestRouter(t, Deps{Withdrawals: stubWithdrawals{
		updateStatusFn: func(_ context.Context, _ string, id, status string, reason *string) (models.Withdrawal, error) {
			if status == models.WithdrawalProcessing {
				return models.Withdrawal{}, services.ErrInvalidTransition
			}
			require.NotNil(t, reason)
			return models.Withdrawal{ID: id, Status: status, FailureReason: reason}, nil
		},
	}}, stubRoles{"admin-1": models.RoleAdmin})

	rr := doRequest(t, router, http.MethodPut, "/api/admin/withdrawals/wd-1", "admin-1", map[string]any{"status": "processing"})
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "invalid_transition", decodeEnvelope(t, rr).Code)

	rr = doRequest(t, router, http.MethodPut, "/api/admin/withdrawals/wd-1", "admin-1", map[string]any{"status": "failed", "reason": "bank rejected"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestAdminListWithdrawalsSpansUsers(t *testing.T) {
	owner := "unset"
	router := newTestRouter(t, Deps{Withdrawals: stubWithdrawals{
		listFn: func(_ context.Context, userID, _ string, _, _ int) ([]models.Withdrawal, error) {
			owner = userID
			return nil, nil
		},
	}}, stubRoles{"admin-1": models.RoleAdmin})

	rr := doRequest(t, router, http.MethodGet, "/api/admin/withdrawals", "admin-1", nil)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "", owner)
}

func TestCreateNotificationIsAdminOnly(t *testing.T) {
	router := newTestRouter(t, Deps{}, stubRoles{"user-1": models.RoleUser})

	rr := doRequest(t, router, http.MethodPost, "/api/notifications", "user-1", map[string]any{
		"user_id": "user-2",
		"title":   "Hi",
		"message": "Hello",
	})

	assert.Equal(t, http.StatusForbidden, rr.Code)
}
