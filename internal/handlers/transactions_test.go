package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"testing"

	"kixikila/internal/models"
	"kixikila/internal/services"
	"kixikila/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateContributionDefaultsToWallet(t *testing.T) {
	var method string
	router := newTestRouter(t, Deps{Payments: stubPayments{
		contributionFn: func(_ context.Context, _ string, groupID string, amount int64, m string) (services.InitiationResult, error) {
			method = m
			assert.Equal(t, "group-1", groupID)
			assert.Equal(t, int64(5000), amount)
			return services.InitiationResult{TransactionID: "tx-1", Reference: "KXK-1", Status: models.TxCompleted, Amount: amount}, nil
		},
	}}, nil)

	rr := doRequest(t, router, http.MethodPost, "/api/transactions", "user-1", map[string]any{
		"type":     "group_contribution",
		"amount":   "50.00",
		"group_id": "group-1",
	})

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, models.MethodWallet, method)
	var data initiationView
	decodeData(t, decodeEnvelope(t, rr), &data)
	assert.Equal(t, "50.00", data.Amount)
	assert.Nil(t, data.ClientSecret)
}

func TestCreateDepositIsAccepted(t *testing.T) {
	router := newTestRouter(t, Deps{Payments: stubPayments{
		depositFn: func(_ context.Context, _ string, amount int64) (services.InitiationResult, error) {
			return services.InitiationResult{TransactionID: "tx-2", Status: models.TxPending, Amount: amount, ClientSecret: stringPtr("pi_secret")}, nil
		},
	}}, nil)

	rr := doRequest(t, router, http.MethodPost, "/api/transactions", "user-1", map[string]any{
		"type":           "deposit",
		"amount":         "25",
		"payment_method": "card",
	})

	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var data initiationView
	decodeData(t, decodeEnvelope(t, rr), &data)
	require.NotNil(t, data.ClientSecret)
	assert.Equal(t, "pi_secret", *data.ClientSecret)
}

func TestCreateDepositRejectsWallet(t *testing.T) {
	router := newTestRouter(t, Deps{Payments: stubPayments{}}, nil)

	rr := doRequest(t, router, http.MethodPost, "/api/transactions", "user-1", map[string]any{
		"type":           "deposit",
		"amount":         "25",
		"payment_method": "wallet",
	})

	require.Equal(t, http.StatusBadRequest, rr.Code)
	env := decodeEnvelope(t, rr)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "payment_method", env.Errors[0].Field)
}

func TestCreateTransactionRejectsServerTypes(t *testing.T) {
	router := newTestRouter(t, Deps{Payments: stubPayments{}}, nil)

	rr := doRequest(t, router, http.MethodPost, "/api/transactions", "user-1", map[string]any{
		"type":   "payout",
		"amount": "25",
	})

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "validation_error", decodeEnvelope(t, rr).Code)
}

func TestContributionRequiresGroup(t *testing.T) {
	router := newTestRouter(t, Deps{Payments: stubPayments{}}, nil)

	rr := doRequest(t, router, http.MethodPost, "/api/transactions", "user-1", map[string]any{
		"type":   "group_contribution",
		"amount": "25",
	})

	require.Equal(t, http.StatusBadRequest, rr.Code)
	env := decodeEnvelope(t, rr)
	require.NotEmpty(t, env.Errors)
	assert.Equal(t, "group_id", env.Errors[0].Field)
}

func TestContributionInsufficientFunds(t *testing.T) {
	router := newTestRouter(t, Deps{Payments: stubPayments{
		contributionFn: func(context.Context, string, string, int64, string) (services.InitiationResult, error) {
			return services.InitiationResult{}, services.ErrInsufficientFunds
		},
	}}, nil)

	rr := doRequest(t, router, http.MethodPost, "/api/transactions", "user-1", map[string]any{
		"type":     "group_contribution",
		"amount":   "1000",
		"group_id": "group-1",
	})

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.False(t, env.Success)
	assert.Equal(t, "insufficient_funds", env.Code)
}

func TestListTransactionsScopesToCaller(t *testing.T) {
	var filter store.TransactionFilter
	router := newTestRouter(t, Deps{Transactions: stubTransactions{
		listFn: func(_ context.Context, f store.TransactionFilter, limit, offset int) ([]models.Transaction, error) {
			filter = f
			assert.Equal(t, 100, limit)
			assert.Equal(t, 10, offset)
			return []models.Transaction{{ID: "tx-1", UserID: f.UserID, Type: models.TxDeposit, Amount: 1999}}, nil
		},
	}}, nil)

	rr := doRequest(t, router, http.MethodGet, "/api/transactions?type=deposit&user_id=someone-else&limit=500&offset=10", "user-1", nil)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "user-1", filter.UserID)
	assert.Equal(t, "deposit", filter.Type)
	var data []transactionView
	decodeData(t, decodeEnvelope(t, rr), &data)
	require.Len(t, data, 1)
	assert.Equal(t, "19.99", data[0].Amount)
}

func TestGetTransactionNotFound(t *testing.T) {
	router := newTestRouter(t, Deps{Transactions: stubTransactions{
		getFn: func(context.Context, string, string) (models.Transaction, error) {
			return models.Transaction{}, sql.ErrNoRows
		},
	}}, nil)

	rr := doRequest(t, router, http.MethodGet, "/api/transactions/tx-9", "user-1", nil)

	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", decodeEnvelope(t, rr).Code)
}

func TestCancelPendingTransaction(t *testing.T) {
	router := newTestRouter(t, Deps{Payments: stubPayments{
		cancelFn: func(_ context.Context, userID, transactionID string) (models.Transaction, error) {
			if transactionID != "tx-1" {
				return models.Transaction{}, services.ErrInvalidTransition
			}
			return models.Transaction{ID: transactionID, UserID: userID, Type: models.TxGroupContribution, Amount: 5000,
				Status: models.TxFailed, PaymentMethod: models.MethodCard}, nil
		},
	}}, nil)

	rr := doRequest(t, router, http.MethodPost, "/api/transactions/tx-1/cancel", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, decodeEnvelope(t, rr).Success)

	rr = doRequest(t, router, http.MethodPost, "/api/transactions/tx-2/cancel", "user-1", nil)
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "invalid_transition", decodeEnvelope(t, rr).Code)
}
