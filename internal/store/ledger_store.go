package store

import (
	"context"
	"errors"
)

const (
	AccountWallet    = "wallet"
	AccountGroupPool = "group_pool"
	AccountClearing  = "clearing"
	AccountFees      = "fees"
	AccountExternal  = "external"
)

var ErrUnbalancedEntries = errors.New("ledger entries do not sum to zero")

type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

type LedgerEntryInput struct {
	ID            string
	TransactionID string
	AccountType   string
	AccountRef    string
	Amount        int64
	Description   string
}

// InsertEntries writes one balanced posting. Entries must sum to zero.
func (s *LedgerStore) InsertEntries(ctx context.Context, tx Execer, entries []LedgerEntryInput) error {
	var total int64
	for _, entry := range entries {
		total += entry.Amount
	}
	if total != 0 {
		return ErrUnbalancedEntries
	}
	query := `
		INSERT INTO ledger_entries (id, transaction_id, account_type, account_ref, amount, description)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, query, entry.ID, entry.TransactionID, entry.AccountType, entry.AccountRef, entry.Amount, entry.Description); err != nil {
			return err
		}
	}
	return nil
}

func (s *LedgerStore) SumByAccount(ctx context.Context, accountType, accountRef string) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE account_type = $1 AND account_ref = $2
	`, accountType, accountRef)
	return sum, err
}

type Mismatch struct {
	ID       string `db:"id" json:"id"`
	Recorded int64  `db:"recorded" json:"recorded"`
	Ledger   int64  `db:"ledger" json:"ledger"`
}

// WalletMismatches lists users whose materialized balance drifted from the ledger.
func (s *LedgerStore) WalletMismatches(ctx context.Context) ([]Mismatch, error) {
	var rows []Mismatch
	err := s.db.SelectContext(ctx, &rows, `
		SELECT u.id, u.wallet_balance AS recorded, COALESCE(l.total, 0) AS ledger
		FROM users u
		LEFT JOIN (
			SELECT account_ref, SUM(amount) AS total
			FROM ledger_entries
			WHERE account_type = 'wallet'
			GROUP BY account_ref
		) l ON l.account_ref = u.id::text
		WHERE u.wallet_balance <> COALESCE(l.total, 0)
		ORDER BY u.id
	`)
	return rows, err
}

func (s *LedgerStore) PoolMismatches(ctx context.Context) ([]Mismatch, error) {
	var rows []Mismatch
	err := s.db.SelectContext(ctx, &rows, `
		SELECT g.id, g.total_pool AS recorded, COALESCE(l.total, 0) AS ledger
		FROM groups g
		LEFT JOIN (
			SELECT account_ref, SUM(amount) AS total
			FROM ledger_entries
			WHERE account_type = 'group_pool'
			GROUP BY account_ref
		) l ON l.account_ref = g.id::text
		WHERE g.total_pool <> COALESCE(l.total, 0)
		ORDER BY g.id
	`)
	return rows, err
}

// ContributionMismatches lists groups whose pool differs from the completed
// contributions of the current cycle. Ledger holds the contribution total.
func (s *LedgerStore) ContributionMismatches(ctx context.Context) ([]Mismatch, error) {
	var rows []Mismatch
	err := s.db.SelectContext(ctx, &rows, `
		SELECT g.id, g.total_pool AS recorded, COALESCE(c.total, 0) AS ledger
		FROM groups g
		LEFT JOIN (
			SELECT group_id, cycle, SUM(amount) AS total
			FROM transactions
			WHERE type = 'group_contribution' AND status = 'completed'
			GROUP BY group_id, cycle
		) c ON c.group_id = g.id AND c.cycle = g.current_cycle
		WHERE g.total_pool <> COALESCE(c.total, 0)
		ORDER BY g.id
	`)
	return rows, err
}
