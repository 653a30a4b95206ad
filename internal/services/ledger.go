package services

import (
	"context"
	"crypto/rand"
	"errors"

	"kixikila/internal/store"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

var ErrUnbalancedPosting = errors.New("ledger entries do not balance")

const (
	clearingStripe      = "stripe"
	clearingWithdrawals = "withdrawals"
	feesPlatform        = "platform"
	externalBank        = "bank"
)

type leg struct {
	accountType string
	accountRef  string
	amount      int64
}

func wallet(userID string, amount int64) leg {
	return leg{accountType: store.AccountWallet, accountRef: userID, amount: amount}
}

func pool(groupID string, amount int64) leg {
	return leg{accountType: store.AccountGroupPool, accountRef: groupID, amount: amount}
}

func clearing(ref string, amount int64) leg {
	return leg{accountType: store.AccountClearing, accountRef: ref, amount: amount}
}

func fees(amount int64) leg {
	return leg{accountType: store.AccountFees, accountRef: feesPlatform, amount: amount}
}

func external(amount int64) leg {
	return leg{accountType: store.AccountExternal, accountRef: externalBank, amount: amount}
}

// postingEntries turns legs into ledger rows, dropping zero legs.
func postingEntries(transactionID, description string, legs ...leg) ([]store.LedgerEntryInput, error) {
	entries := make([]store.LedgerEntryInput, 0, len(legs))
	var total int64
	for _, l := range legs {
		if l.amount == 0 {
			continue
		}
		total += l.amount
		entries = append(entries, store.LedgerEntryInput{
			ID:            uuid.NewString(),
			TransactionID: transactionID,
			AccountType:   l.accountType,
			AccountRef:    l.accountRef,
			Amount:        l.amount,
			Description:   description,
		})
	}
	if total != 0 {
		return nil, ErrUnbalancedPosting
	}
	return entries, nil
}

func post(ctx context.Context, tx store.Execer, ledger LedgerStore, transactionID, description string, legs ...leg) error {
	entries, err := postingEntries(transactionID, description, legs...)
	if err != nil {
		return err
	}
	return ledger.InsertEntries(ctx, tx, entries)
}

const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// newReference returns a human-quotable transaction reference like KXK-7H2QK9ZD4M.
func newReference() string {
	buf := make([]byte, 10)
	_, _ = rand.Read(buf)
	out := []byte("KXK-")
	for _, b := range buf {
		out = append(out, referenceAlphabet[int(b)%len(referenceAlphabet)])
	}
	return string(out)
}

func jsonString(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func stringPtr(value string) *string {
	return &value
}

func intPtr(value int) *int {
	return &value
}
