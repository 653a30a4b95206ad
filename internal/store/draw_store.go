package store

import (
	"context"

	"kixikila/internal/models"
)

type DrawStore struct {
	db DB
}

func NewDrawStore(db DB) *DrawStore {
	return &DrawStore{db: db}
}

type DrawInput struct {
	ID                  string
	GroupID             string
	Cycle               int
	Mode                string
	WinnerUserID        string
	PoolAmount          int64
	FeeAmount           int64
	PayoutTransactionID string
	Seed                *string
	Candidates          string
}

// Create fails with a unique violation if the cycle was already drawn.
func (s *DrawStore) Create(ctx context.Context, tx Execer, input DrawInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO draws (id, group_id, cycle, mode, winner_user_id, pool_amount, fee_amount,
		                   payout_transaction_id, seed, candidates)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, input.ID, input.GroupID, input.Cycle, input.Mode, input.WinnerUserID, input.PoolAmount,
		input.FeeAmount, input.PayoutTransactionID, input.Seed, input.Candidates)
	return err
}

func (s *DrawStore) ListByGroup(ctx context.Context, groupID string) ([]models.Draw, error) {
	var draws []models.Draw
	err := s.db.SelectContext(ctx, &draws, `
		SELECT id, group_id, cycle, mode, winner_user_id, pool_amount, fee_amount,
		       payout_transaction_id, seed, candidates, created_at
		FROM draws
		WHERE group_id = $1
		ORDER BY cycle DESC
	`, groupID)
	return draws, err
}
