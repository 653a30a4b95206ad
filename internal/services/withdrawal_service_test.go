package services

import (
	"context"
	"errors"
	"testing"

	"kixikila/internal/events"
	"kixikila/internal/models"
	"kixikila/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIBAN = "AO06004400006729503010102"

func newTestWithdrawalService(w *world, pub Publisher) *WithdrawalService {
	return NewWithdrawalService(WithdrawalDeps{
		TxRunner:     fakeTxRunner{},
		Users:        memUsers{w},
		Withdrawals:  memWithdrawals{w},
		Accounts:     memAccounts{w},
		Transactions: memTxs{w},
		Ledger:       memLedger{w},
		Config:       memConfig{w},
		Audit:        memAudit{w},
		Publisher:    pub,
		Currency:     "aoa",
	})
}

func withdrawalFixture(t *testing.T, wallet int64) (*world, *WithdrawalService, *recordingPublisher, models.PayoutAccount) {
	t.Helper()
	w := newWorld()
	w.addUser("u", "+244923000000", wallet)
	w.addUser("ops", "+244923000001", 0).Role = models.RoleAdmin
	pub := &recordingPublisher{}
	svc := newTestWithdrawalService(w, pub)
	account, err := svc.AddAccount(context.Background(), "u", PayoutAccountRequest{HolderName: "U Test", IBAN: testIBAN, BankName: "BAI"})
	require.NoError(t, err)
	return w, svc, pub, account
}

func TestWithdrawalOverBalanceWritesNothing(t *testing.T) {
	w, svc, _, account := withdrawalFixture(t, 1000)

	_, err := svc.Request(context.Background(), "u", 1001, account.ID)
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
	assert.Empty(t, w.withdrawals)
	assert.Empty(t, w.txs)
	assert.Equal(t, int64(1000), w.users["u"].WalletBalance)
}

func TestWithdrawalBelowMinimum(t *testing.T) {
	w, svc, _, account := withdrawalFixture(t, 1000)
	w.config[store.ConfigMinWithdrawalAmount] = 500

	_, err := svc.Request(context.Background(), "u", 499, account.ID)
	assert.True(t, errors.Is(err, ErrBelowMinimum))
}

func TestWithdrawalForeignAccount(t *testing.T) {
	w, svc, _, account := withdrawalFixture(t, 1000)
	w.addUser("other", "+244923000002", 1000)

	_, err := svc.Request(context.Background(), "other", 200, account.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestWithdrawalHoldAndComplete(t *testing.T) {
	w, svc, pub, account := withdrawalFixture(t, 1000)
	ctx := context.Background()

	wd, err := svc.Request(ctx, "u", 400, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalPending, wd.Status)
	assert.Equal(t, int64(600), w.users["u"].WalletBalance)
	assert.Equal(t, int64(400), w.ledgerSum(store.AccountClearing, clearingWithdrawals))

	done, err := svc.UpdateStatus(ctx, "ops", wd.ID, models.WithdrawalCompleted, nil)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, done.Status)

	assert.Equal(t, int64(600), w.users["u"].WalletBalance)
	assert.Equal(t, int64(400), w.users["u"].TotalWithdrawn)
	assert.Equal(t, int64(0), w.ledgerSum(store.AccountClearing, clearingWithdrawals))
	assert.Equal(t, int64(400), w.ledgerSum(store.AccountExternal, externalBank))
	assert.Equal(t, int64(0), w.ledgerTotal())
	assert.Equal(t, models.TxCompleted, w.txs[w.withdrawals[wd.ID].TransactionID].Status)
	require.NotNil(t, w.withdrawals[wd.ID].ProcessedBy)
	assert.Equal(t, "ops", *w.withdrawals[wd.ID].ProcessedBy)
	assert.Equal(t, []string{events.TopicWithdrawalUpdated}, pub.topics)

	_, err = svc.UpdateStatus(ctx, "ops", wd.ID, models.WithdrawalFailed, nil)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestWithdrawalCancelRestoresWallet(t *testing.T) {
	w, svc, _, account := withdrawalFixture(t, 1000)
	ctx := context.Background()

	wd, err := svc.Request(ctx, "u", 300, account.ID)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, "ops", wd.ID)
	assert.True(t, errors.Is(err, ErrNotFound), "only the owner can cancel")

	cancelled, err := svc.Cancel(ctx, "u", wd.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCancelled, cancelled.Status)
	assert.Equal(t, int64(1000), w.users["u"].WalletBalance)
	assert.Equal(t, int64(0), w.ledgerSum(store.AccountClearing, clearingWithdrawals))
	assert.Equal(t, w.users["u"].WalletBalance, w.ledgerSum(store.AccountWallet, "u"))
	assert.Equal(t, models.TxFailed, w.txs[w.withdrawals[wd.ID].TransactionID].Status)
	assert.Nil(t, w.withdrawals[wd.ID].ProcessedBy)
}

func TestWithdrawalProcessingCannotBeCancelled(t *testing.T) {
	_, svc, _, account := withdrawalFixture(t, 1000)
	ctx := context.Background()

	wd, err := svc.Request(ctx, "u", 300, account.ID)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, "ops", wd.ID, models.WithdrawalProcessing, nil)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, "u", wd.ID)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	_, err = svc.UpdateStatus(ctx, "ops", wd.ID, models.WithdrawalCancelled, nil)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestWithdrawalFailedUsesReason(t *testing.T) {
	w, svc, _, account := withdrawalFixture(t, 1000)
	ctx := context.Background()

	wd, err := svc.Request(ctx, "u", 250, account.ID)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, "ops", wd.ID, models.WithdrawalFailed, stringPtr("bank rejected IBAN"))
	require.NoError(t, err)

	txn := w.txs[w.withdrawals[wd.ID].TransactionID]
	require.NotNil(t, txn.FailureReason)
	assert.Equal(t, "bank rejected IBAN", *txn.FailureReason)
	assert.Equal(t, int64(1000), w.users["u"].WalletBalance)
}

func TestPayoutAccounts(t *testing.T) {
	w, svc, _, account := withdrawalFixture(t, 1000)
	ctx := context.Background()

	assert.True(t, account.IsDefault)
	assert.Equal(t, testIBAN, account.IBAN)

	_, err := svc.AddAccount(ctx, "u", PayoutAccountRequest{HolderName: "U", IBAN: "AO06 0044 0000 6729 5030 1010 3", BankName: "BAI"})
	assert.True(t, errors.Is(err, ErrInvalidIBAN))

	wd, err := svc.Request(ctx, "u", 200, account.ID)
	require.NoError(t, err)
	assert.True(t, errors.Is(svc.DeleteAccount(ctx, "u", account.ID), ErrAccountInUse))

	_, err = svc.Cancel(ctx, "u", wd.ID)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteAccount(ctx, "u", account.ID))
	assert.Empty(t, w.accounts)
	assert.True(t, errors.Is(svc.DeleteAccount(ctx, "u", account.ID), ErrNotFound))
}
