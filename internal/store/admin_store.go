package store

import (
	"context"
	"database/sql"
	"errors"
)

type AdminStore struct {
	db DB
}

func NewAdminStore(db DB) *AdminStore {
	return &AdminStore{db: db}
}

// GetRole reads the role from the profile row. A missing user has no role.
func (s *AdminStore) GetRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := s.db.GetContext(ctx, &role, `SELECT role FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return role, err
}

func (s *AdminStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM users WHERE role = 'admin'`)
	return count > 0, err
}

type Monitoring struct {
	Users              int                `json:"users"`
	VIPUsers           int                `json:"vip_users"`
	Groups             []GroupStatusCount `json:"groups"`
	PendingTxs         int                `json:"pending_transactions"`
	PendingWithdrawals int                `json:"pending_withdrawals"`
	PoolTotal          int64              `json:"pool_total"`
	Volume24h          int64              `json:"volume_24h"`
}

type monitoringRow struct {
	Users              int   `db:"users"`
	VIPUsers           int   `db:"vip_users"`
	PendingTxs         int   `db:"pending_transactions"`
	PendingWithdrawals int   `db:"pending_withdrawals"`
	PoolTotal          int64 `db:"pool_total"`
	Volume24h          int64 `db:"volume_24h"`
}

func (s *AdminStore) Monitoring(ctx context.Context) (Monitoring, error) {
	var row monitoringRow
	err := s.db.GetContext(ctx, &row, `
		SELECT
			(SELECT COUNT(1) FROM users) AS users,
			(SELECT COUNT(1) FROM users WHERE is_vip) AS vip_users,
			(SELECT COUNT(1) FROM transactions WHERE status = 'pending') AS pending_transactions,
			(SELECT COUNT(1) FROM withdrawals WHERE status IN ('pending', 'processing')) AS pending_withdrawals,
			(SELECT COALESCE(SUM(total_pool), 0) FROM groups) AS pool_total,
			(SELECT COALESCE(SUM(amount), 0) FROM transactions
			  WHERE status = 'completed' AND created_at > NOW() - INTERVAL '24 hours') AS volume_24h
	`)
	if err != nil {
		return Monitoring{}, err
	}
	var groups []GroupStatusCount
	if err := s.db.SelectContext(ctx, &groups, `SELECT status, COUNT(1) AS count FROM groups GROUP BY status ORDER BY status`); err != nil {
		return Monitoring{}, err
	}
	return Monitoring{
		Users:              row.Users,
		VIPUsers:           row.VIPUsers,
		Groups:             groups,
		PendingTxs:         row.PendingTxs,
		PendingWithdrawals: row.PendingWithdrawals,
		PoolTotal:          row.PoolTotal,
		Volume24h:          row.Volume24h,
	}, nil
}
