package store

import (
	"context"

	"kixikila/internal/models"
)

type GroupStore struct {
	db DB
}

func NewGroupStore(db DB) *GroupStore {
	return &GroupStore{db: db}
}

const groupColumns = `id, name, description, category, type, contribution_amount, contribution_frequency,
	max_members, current_members, total_pool, status, current_cycle, requires_approval, creator_id,
	created_at, updated_at`

type GroupInput struct {
	ID                    string
	Name                  string
	Description           string
	Category              string
	Type                  string
	ContributionAmount    int64
	ContributionFrequency string
	MaxMembers            int
	RequiresApproval      bool
	CreatorID             string
}

func (s *GroupStore) Create(ctx context.Context, tx Execer, input GroupInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO groups (id, name, description, category, type, contribution_amount, contribution_frequency,
		                    max_members, current_members, requires_approval, creator_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)
	`, input.ID, input.Name, input.Description, input.Category, input.Type, input.ContributionAmount,
		input.ContributionFrequency, input.MaxMembers, input.RequiresApproval, input.CreatorID)
	return err
}

func (s *GroupStore) GetByID(ctx context.Context, groupID string) (models.Group, error) {
	var group models.Group
	err := s.db.GetContext(ctx, &group, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, groupID)
	return group, err
}

func (s *GroupStore) GetForUpdate(ctx context.Context, tx Getter, groupID string) (models.Group, error) {
	var group models.Group
	err := tx.GetContext(ctx, &group, `SELECT `+groupColumns+` FROM groups WHERE id = $1 FOR UPDATE`, groupID)
	return group, err
}

type GroupUpdate struct {
	Name                  string
	Description           string
	MaxMembers            int
	ContributionAmount    int64
	ContributionFrequency string
	Type                  string
	Status                string
}

func (s *GroupStore) Update(ctx context.Context, tx Execer, groupID string, update GroupUpdate) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE groups
		SET name = $2, description = $3, max_members = $4, contribution_amount = $5,
		    contribution_frequency = $6, type = $7, status = $8, updated_at = NOW()
		WHERE id = $1
	`, groupID, update.Name, update.Description, update.MaxMembers, update.ContributionAmount,
		update.ContributionFrequency, update.Type, update.Status)
	return err
}

func (s *GroupStore) SetStatus(ctx context.Context, tx Execer, groupID, status string) error {
	_, err := tx.ExecContext(ctx, `UPDATE groups SET status = $2, updated_at = NOW() WHERE id = $1`, groupID, status)
	return err
}

func (s *GroupStore) AdjustMembers(ctx context.Context, tx Execer, groupID string, delta int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE groups SET current_members = current_members + $2, updated_at = NOW() WHERE id = $1
	`, groupID, delta)
	return err
}

func (s *GroupStore) AddToPool(ctx context.Context, tx Execer, groupID string, amount int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE groups SET total_pool = total_pool + $2, updated_at = NOW() WHERE id = $1
	`, groupID, amount)
	return err
}

// CloseCycle empties the pool and advances the cycle after a payout.
func (s *GroupStore) CloseCycle(ctx context.Context, tx Execer, groupID, status string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE groups
		SET total_pool = 0, current_cycle = current_cycle + 1, status = $2, updated_at = NOW()
		WHERE id = $1
	`, groupID, status)
	return err
}

func (s *GroupStore) Delete(ctx context.Context, tx Execer, groupID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, groupID)
	return err
}

// CountOpenByCreator counts groups that still occupy one of the creator's slots.
func (s *GroupStore) CountOpenByCreator(ctx context.Context, tx Getter, userID string) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count, `
		SELECT COUNT(1) FROM groups
		WHERE creator_id = $1 AND status IN ('draft', 'active', 'paused')
	`, userID)
	return count, err
}

func (s *GroupStore) ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.Group, error) {
	var groups []models.Group
	err := s.db.SelectContext(ctx, &groups, `
		SELECT `+prefixed("g", groupColumns)+`
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = $1 AND m.status <> 'left'
		ORDER BY g.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return groups, err
}

// ListDiscoverable returns open groups with a free slot that userID is not in.
func (s *GroupStore) ListDiscoverable(ctx context.Context, userID string, limit, offset int) ([]models.Group, error) {
	var groups []models.Group
	err := s.db.SelectContext(ctx, &groups, `
		SELECT `+groupColumns+`
		FROM groups g
		WHERE g.status IN ('draft', 'active')
		  AND g.current_members < g.max_members
		  AND NOT EXISTS (
			SELECT 1 FROM group_members m
			WHERE m.group_id = g.id AND m.user_id = $1 AND m.status <> 'left'
		  )
		ORDER BY g.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return groups, err
}

type GroupStatusCount struct {
	Status string `db:"status" json:"status"`
	Count  int    `db:"count" json:"count"`
}

func (s *GroupStore) CountByStatus(ctx context.Context) ([]GroupStatusCount, error) {
	var rows []GroupStatusCount
	err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(1) AS count FROM groups GROUP BY status ORDER BY status`)
	return rows, err
}
