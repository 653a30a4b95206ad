package store

import (
	"context"

	"kixikila/internal/models"
)

type MemberStore struct {
	db DB
}

func NewMemberStore(db DB) *MemberStore {
	return &MemberStore{db: db}
}

const memberColumns = `m.id, m.group_id, m.user_id, u.full_name, m.role, m.status, m.total_contributed,
	m.current_balance, m.payout_position, m.has_received_payout, m.payout_cycle, m.joined_at, m.left_at`

type MemberInput struct {
	ID             string
	GroupID        string
	UserID         string
	Role           string
	Status         string
	PayoutPosition *int
}

func (s *MemberStore) Create(ctx context.Context, tx Execer, input MemberInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO group_members (id, group_id, user_id, role, status, payout_position)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, input.ID, input.GroupID, input.UserID, input.Role, input.Status, input.PayoutPosition)
	return err
}

// Get returns the current (non-left) membership of userID in groupID.
func (s *MemberStore) Get(ctx context.Context, groupID, userID string) (models.GroupMember, error) {
	var member models.GroupMember
	err := s.db.GetContext(ctx, &member, `
		SELECT `+memberColumns+`
		FROM group_members m JOIN users u ON u.id = m.user_id
		WHERE m.group_id = $1 AND m.user_id = $2 AND m.status <> 'left'
	`, groupID, userID)
	return member, err
}

func (s *MemberStore) GetForUpdate(ctx context.Context, tx Getter, groupID, userID string) (models.GroupMember, error) {
	var member models.GroupMember
	err := tx.GetContext(ctx, &member, `
		SELECT `+memberColumns+`
		FROM group_members m JOIN users u ON u.id = m.user_id
		WHERE m.group_id = $1 AND m.user_id = $2 AND m.status <> 'left'
		FOR UPDATE OF m
	`, groupID, userID)
	return member, err
}

func (s *MemberStore) List(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := s.db.SelectContext(ctx, &members, `
		SELECT `+memberColumns+`
		FROM group_members m JOIN users u ON u.id = m.user_id
		WHERE m.group_id = $1 AND m.status <> 'left'
		ORDER BY m.payout_position NULLS LAST, m.joined_at
	`, groupID)
	return members, err
}

// LockActive locks the active members of a group in id order so concurrent
// writers always acquire them in the same sequence.
func (s *MemberStore) LockActive(ctx context.Context, tx Selecter, groupID string) ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := tx.SelectContext(ctx, &members, `
		SELECT `+memberColumns+`
		FROM group_members m JOIN users u ON u.id = m.user_id
		WHERE m.group_id = $1 AND m.status = 'active'
		ORDER BY m.id
		FOR UPDATE OF m
	`, groupID)
	return members, err
}

func (s *MemberStore) CountActive(ctx context.Context, tx Getter, groupID string) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count, `
		SELECT COUNT(1) FROM group_members WHERE group_id = $1 AND status = 'active'
	`, groupID)
	return count, err
}

func (s *MemberStore) NextPosition(ctx context.Context, tx Getter, groupID string) (int, error) {
	var next int
	err := tx.GetContext(ctx, &next, `
		SELECT COALESCE(MAX(payout_position), 0) + 1
		FROM group_members WHERE group_id = $1 AND status = 'active'
	`, groupID)
	return next, err
}

func (s *MemberStore) Contribute(ctx context.Context, tx Execer, memberID string, amount int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE group_members
		SET current_balance = current_balance + $2, total_contributed = total_contributed + $2
		WHERE id = $1
	`, memberID, amount)
	return err
}

func (s *MemberStore) ResetBalances(ctx context.Context, tx Execer, groupID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE group_members SET current_balance = 0 WHERE group_id = $1 AND status = 'active'
	`, groupID)
	return err
}

// ResetRotation clears payout flags so a new rotation can start.
func (s *MemberStore) ResetRotation(ctx context.Context, tx Execer, groupID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE group_members SET has_received_payout = FALSE, payout_cycle = NULL
		WHERE group_id = $1 AND status = 'active'
	`, groupID)
	return err
}

func (s *MemberStore) MarkPaid(ctx context.Context, tx Execer, memberID string, cycle int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE group_members SET has_received_payout = TRUE, payout_cycle = $2 WHERE id = $1
	`, memberID, cycle)
	return err
}

func (s *MemberStore) SetStatus(ctx context.Context, tx Execer, memberID, status string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE group_members
		SET status = $2, left_at = CASE WHEN $2 = 'left' THEN NOW() END,
		    payout_position = CASE WHEN $2 = 'left' THEN NULL ELSE payout_position END
		WHERE id = $1
	`, memberID, status)
	return err
}

func (s *MemberStore) SetRole(ctx context.Context, tx Execer, memberID, role string) error {
	_, err := tx.ExecContext(ctx, `UPDATE group_members SET role = $2 WHERE id = $1`, memberID, role)
	return err
}

func (s *MemberStore) SetPosition(ctx context.Context, tx Execer, memberID string, position int) error {
	_, err := tx.ExecContext(ctx, `UPDATE group_members SET payout_position = $2 WHERE id = $1`, memberID, position)
	return err
}

// Renumber compacts the active members' positions to 1..N keeping their order.
func (s *MemberStore) Renumber(ctx context.Context, tx Execer, groupID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE group_members m
		SET payout_position = r.position
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY payout_position NULLS LAST, joined_at, id) AS position
			FROM group_members
			WHERE group_id = $1 AND status = 'active'
		) r
		WHERE m.id = r.id
	`, groupID)
	return err
}

// UserIDs returns every current member of the group, pending included.
func (s *MemberStore) UserIDs(ctx context.Context, groupID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT user_id FROM group_members WHERE group_id = $1 AND status <> 'left' ORDER BY user_id
	`, groupID)
	return ids, err
}
