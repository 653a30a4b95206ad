package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"kixikila/internal/db"
	"kixikila/internal/logging"
	"kixikila/internal/models"
	"kixikila/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// RoleLookup reads the platform role from the profile row.
type RoleLookup interface {
	GetRole(ctx context.Context, userID string) (string, error)
}

type GroupService struct {
	txRunner db.TxRunner
	groups   GroupStore
	members  MemberStore
	users    UserStore
	config   ConfigStore
	audit    AuditStore
	roles    RoleLookup
	now      func() time.Time
}

func NewGroupService(txRunner db.TxRunner, groups GroupStore, members MemberStore, users UserStore, config ConfigStore, audit AuditStore, roles RoleLookup) *GroupService {
	return &GroupService{
		txRunner: txRunner,
		groups:   groups,
		members:  members,
		users:    users,
		config:   config,
		audit:    audit,
		roles:    roles,
		now:      time.Now,
	}
}

type CreateGroupRequest struct {
	Name                  string
	Description           string
	Category              string
	Type                  string
	ContributionAmount    int64
	ContributionFrequency string
	MaxMembers            int
	RequiresApproval      bool
}

func (s *GroupService) Create(ctx context.Context, userID string, req CreateGroupRequest) (models.Group, error) {
	if req.ContributionAmount <= 0 {
		return models.Group{}, ErrInvalidAmount
	}
	groupID := uuid.NewString()
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		creator, err := s.users.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return notFound(err)
		}
		if !creator.VIPActive(s.now()) {
			limit, err := s.config.Int(ctx, tx, store.ConfigFreeGroupLimit, 2)
			if err != nil {
				return err
			}
			open, err := s.groups.CountOpenByCreator(ctx, tx, userID)
			if err != nil {
				return err
			}
			if int64(open) >= limit {
				return ErrGroupLimitReached
			}
		}
		if err := s.groups.Create(ctx, tx, store.GroupInput{
			ID:                    groupID,
			Name:                  strings.TrimSpace(req.Name),
			Description:           req.Description,
			Category:              req.Category,
			Type:                  req.Type,
			ContributionAmount:    req.ContributionAmount,
			ContributionFrequency: req.ContributionFrequency,
			MaxMembers:            req.MaxMembers,
			RequiresApproval:      req.RequiresApproval,
			CreatorID:             userID,
		}); err != nil {
			return err
		}
		if err := s.members.Create(ctx, tx, store.MemberInput{
			ID:             uuid.NewString(),
			GroupID:        groupID,
			UserID:         userID,
			Role:           models.MemberRoleCreator,
			Status:         models.MemberActive,
			PayoutPosition: intPtr(1),
		}); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, userID, "group.created", "group", groupID, jsonString(req))
	})
	if err != nil {
		return models.Group{}, err
	}
	logging.Ctx(ctx).Info().Str("group_id", groupID).Msg("group created")
	return s.groups.GetByID(ctx, groupID)
}

func (s *GroupService) List(ctx context.Context, userID, scope string, limit, offset int) ([]models.Group, error) {
	if scope == "discover" {
		return s.groups.ListDiscoverable(ctx, userID, limit, offset)
	}
	return s.groups.ListForUser(ctx, userID, limit, offset)
}

type Progress struct {
	Contributed int64 `json:"contributed"`
	Required    int64 `json:"required"`
	Percent     int   `json:"percent"`
	CanDraw     bool  `json:"can_draw"`
}

type GroupDetail struct {
	Group    models.Group         `json:"group"`
	Members  []models.GroupMember `json:"members"`
	Progress Progress             `json:"progress"`
}

// CycleProgress summarises the current cycle from the active members' balances.
func CycleProgress(group models.Group, members []models.GroupMember) Progress {
	var p Progress
	active := 0
	complete := true
	for _, m := range members {
		if m.Status != models.MemberActive {
			continue
		}
		active++
		p.Contributed += m.CurrentBalance
		if m.CurrentBalance != group.ContributionAmount {
			complete = false
		}
	}
	p.Required = group.ContributionAmount * int64(active)
	if p.Required > 0 {
		p.Percent = int(p.Contributed * 100 / p.Required)
	}
	p.CanDraw = group.Status == models.GroupActive && active >= 2 && complete
	return p
}

// Get returns the full detail to members and system admins. Outsiders only
// see discoverable groups, without the member list.
func (s *GroupService) Get(ctx context.Context, userID, groupID string) (GroupDetail, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return GroupDetail{}, notFound(err)
	}
	allowed, err := canViewGroup(ctx, s.members, s.roles, groupID, userID)
	if err != nil {
		return GroupDetail{}, err
	}
	if !allowed {
		if !discoverable(group) {
			return GroupDetail{}, ErrNotGroupMember
		}
		return GroupDetail{Group: group, Members: []models.GroupMember{}}, nil
	}
	members, err := s.members.List(ctx, groupID)
	if err != nil {
		return GroupDetail{}, err
	}
	return GroupDetail{Group: group, Members: members, Progress: CycleProgress(group, members)}, nil
}

func (s *GroupService) Members(ctx context.Context, userID, groupID string) ([]models.GroupMember, error) {
	if _, err := s.groups.GetByID(ctx, groupID); err != nil {
		return nil, notFound(err)
	}
	if err := requireGroupView(ctx, s.members, s.roles, groupID, userID); err != nil {
		return nil, err
	}
	return s.members.List(ctx, groupID)
}

// discoverable matches the "discover" listing: open groups with a free seat.
func discoverable(group models.Group) bool {
	open := group.Status == models.GroupDraft || group.Status == models.GroupActive
	return open && group.CurrentMembers < group.MaxMembers
}

// canViewGroup is true for non-left members and system admins.
func canViewGroup(ctx context.Context, members MemberStore, roles RoleLookup, groupID, userID string) (bool, error) {
	_, err := members.Get(ctx, groupID, userID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	role, err := roles.GetRole(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return role == models.RoleAdmin, nil
}

func requireGroupView(ctx context.Context, members MemberStore, roles RoleLookup, groupID, userID string) error {
	allowed, err := canViewGroup(ctx, members, roles, groupID, userID)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrNotGroupMember
	}
	return nil
}

type UpdateGroupRequest struct {
	Name                  *string
	Description           *string
	MaxMembers            *int
	ContributionAmount    *int64
	ContributionFrequency *string
	Type                  *string
	Status                *string
}

func (s *GroupService) Update(ctx context.Context, userID, groupID string, req UpdateGroupRequest) (models.Group, error) {
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		group, err := s.groups.GetForUpdate(ctx, tx, groupID)
		if err != nil {
			return notFound(err)
		}
		if err := s.requireManager(ctx, tx, group, userID); err != nil {
			return err
		}
		update := store.GroupUpdate{
			Name:                  group.Name,
			Description:           group.Description,
			MaxMembers:            group.MaxMembers,
			ContributionAmount:    group.ContributionAmount,
			ContributionFrequency: group.ContributionFrequency,
			Type:                  group.Type,
			Status:                group.Status,
		}
		if req.Name != nil {
			update.Name = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			update.Description = *req.Description
		}
		if req.MaxMembers != nil {
			if *req.MaxMembers < 2 || *req.MaxMembers < group.CurrentMembers {
				return ErrInvalidGroupState
			}
			update.MaxMembers = *req.MaxMembers
		}
		if req.ContributionAmount != nil || req.ContributionFrequency != nil || req.Type != nil {
			if group.Status != models.GroupDraft {
				return ErrInvalidGroupState
			}
			if req.ContributionAmount != nil {
				if *req.ContributionAmount <= 0 {
					return ErrInvalidAmount
				}
				update.ContributionAmount = *req.ContributionAmount
			}
			if req.ContributionFrequency != nil {
				update.ContributionFrequency = *req.ContributionFrequency
			}
			if req.Type != nil {
				update.Type = *req.Type
			}
		}
		if req.Status != nil && *req.Status != group.Status {
			if !models.CanTransitionGroup(group.Status, *req.Status) {
				return ErrInvalidTransition
			}
			switch *req.Status {
			case models.GroupActive:
				active, err := s.members.CountActive(ctx, tx, groupID)
				if err != nil {
					return err
				}
				if active < 2 {
					return ErrNotEnoughMembers
				}
			case models.GroupCancelled:
				if group.TotalPool > 0 {
					return ErrGroupHasFunds
				}
			}
			update.Status = *req.Status
		}
		if err := s.groups.Update(ctx, tx, groupID, update); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, userID, "group.updated", "group", groupID, jsonString(update))
	})
	if err != nil {
		return models.Group{}, err
	}
	return s.groups.GetByID(ctx, groupID)
}

func (s *GroupService) Delete(ctx context.Context, userID, groupID string) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		group, err := s.groups.GetForUpdate(ctx, tx, groupID)
		if err != nil {
			return notFound(err)
		}
		if group.CreatorID != userID {
			admin, err := s.isSystemAdmin(ctx, userID)
			if err != nil {
				return err
			}
			if !admin {
				return ErrForbidden
			}
		}
		if group.Status == models.GroupActive {
			return ErrInvalidGroupState
		}
		if group.TotalPool > 0 {
			return ErrGroupHasFunds
		}
		if err := s.groups.Delete(ctx, tx, groupID); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, userID, "group.deleted", "group", groupID, jsonString(map[string]string{"name": group.Name}))
	})
}

func (s *GroupService) Join(ctx context.Context, userID, groupID string) (models.GroupMember, error) {
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		group, err := s.groups.GetForUpdate(ctx, tx, groupID)
		if err != nil {
			return notFound(err)
		}
		if group.Status != models.GroupDraft && group.Status != models.GroupActive {
			return ErrInvalidGroupState
		}
		if _, err := s.members.GetForUpdate(ctx, tx, groupID, userID); err == nil {
			return ErrAlreadyMember
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if group.CurrentMembers >= group.MaxMembers {
			return ErrGroupFull
		}
		input := store.MemberInput{
			ID:      uuid.NewString(),
			GroupID: groupID,
			UserID:  userID,
			Role:    models.MemberRoleMember,
			Status:  models.MemberPending,
		}
		if !group.RequiresApproval {
			next, err := s.members.NextPosition(ctx, tx, groupID)
			if err != nil {
				return err
			}
			input.Status = models.MemberActive
			input.PayoutPosition = intPtr(next)
		}
		if err := s.members.Create(ctx, tx, input); err != nil {
			if store.IsUniqueViolation(err) {
				return ErrAlreadyMember
			}
			return err
		}
		if input.Status == models.MemberActive {
			if err := s.groups.AdjustMembers(ctx, tx, groupID, 1); err != nil {
				return err
			}
		}
		return s.audit.Log(ctx, tx, userID, "group.joined", "group", groupID, jsonString(map[string]string{"status": input.Status}))
	})
	if err != nil {
		return models.GroupMember{}, err
	}
	return s.members.Get(ctx, groupID, userID)
}

func (s *GroupService) Leave(ctx context.Context, userID, groupID string) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		group, err := s.groups.GetForUpdate(ctx, tx, groupID)
		if err != nil {
			return notFound(err)
		}
		member, err := s.members.GetForUpdate(ctx, tx, groupID, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotGroupMember
		}
		if err != nil {
			return err
		}
		if member.Role == models.MemberRoleCreator {
			return ErrForbidden
		}
		return s.removeMember(ctx, tx, group, member, userID, "group.left")
	})
}

func (s *GroupService) removeMember(ctx context.Context, tx *sqlx.Tx, group models.Group, member models.GroupMember, actorID, action string) error {
	inCycle := group.Status == models.GroupActive || group.Status == models.GroupPaused
	if inCycle && member.CurrentBalance > 0 {
		return ErrMemberHasBalance
	}
	if err := s.members.SetStatus(ctx, tx, member.ID, models.MemberLeft); err != nil {
		return err
	}
	if member.Status == models.MemberActive {
		if err := s.groups.AdjustMembers(ctx, tx, group.ID, -1); err != nil {
			return err
		}
		if err := s.members.Renumber(ctx, tx, group.ID); err != nil {
			return err
		}
	}
	return s.audit.Log(ctx, tx, actorID, action, "group_member", member.ID, jsonString(map[string]string{"user_id": member.UserID}))
}

type UpdateMemberRequest struct {
	Status *string
	Role   *string
}

func (s *GroupService) UpdateMember(ctx context.Context, actorID, groupID, memberUserID string, req UpdateMemberRequest) (models.GroupMember, error) {
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		group, err := s.groups.GetForUpdate(ctx, tx, groupID)
		if err != nil {
			return notFound(err)
		}
		if err := s.requireManager(ctx, tx, group, actorID); err != nil {
			return err
		}
		member, err := s.members.GetForUpdate(ctx, tx, groupID, memberUserID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotGroupMember
		}
		if err != nil {
			return err
		}
		if member.Role == models.MemberRoleCreator {
			return ErrForbidden
		}
		if req.Status != nil && *req.Status != member.Status {
			switch {
			case *req.Status == models.MemberLeft:
				return s.removeMember(ctx, tx, group, member, actorID, "group.member_removed")
			case member.Status == models.MemberPending && *req.Status == models.MemberActive:
				if group.CurrentMembers >= group.MaxMembers {
					return ErrGroupFull
				}
				if err := s.members.SetStatus(ctx, tx, member.ID, models.MemberActive); err != nil {
					return err
				}
				next, err := s.members.NextPosition(ctx, tx, groupID)
				if err != nil {
					return err
				}
				if err := s.members.SetPosition(ctx, tx, member.ID, next); err != nil {
					return err
				}
				if err := s.groups.AdjustMembers(ctx, tx, groupID, 1); err != nil {
					return err
				}
			default:
				return ErrInvalidTransition
			}
		}
		if req.Role != nil && *req.Role != member.Role {
			if *req.Role != models.MemberRoleAdmin && *req.Role != models.MemberRoleMember {
				return ErrInvalidTransition
			}
			if err := s.members.SetRole(ctx, tx, member.ID, *req.Role); err != nil {
				return err
			}
		}
		return s.audit.Log(ctx, tx, actorID, "group.member_updated", "group_member", member.ID, jsonString(req))
	})
	if err != nil {
		return models.GroupMember{}, err
	}
	member, err := s.members.Get(ctx, groupID, memberUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GroupMember{UserID: memberUserID, GroupID: groupID, Status: models.MemberLeft}, nil
	}
	return member, err
}

// ReorderPositions assigns payout positions for an ordered group. positions
// maps user id to position and must cover every active member exactly once.
func (s *GroupService) ReorderPositions(ctx context.Context, actorID, groupID string, positions map[string]int) ([]models.GroupMember, error) {
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		group, err := s.groups.GetForUpdate(ctx, tx, groupID)
		if err != nil {
			return notFound(err)
		}
		if err := s.requireManager(ctx, tx, group, actorID); err != nil {
			return err
		}
		if group.Type != models.DrawOrder {
			return ErrInvalidGroupState
		}
		active, err := s.members.LockActive(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if err := validatePermutation(active, positions); err != nil {
			return err
		}
		for _, m := range active {
			if err := s.members.SetPosition(ctx, tx, m.ID, positions[m.UserID]); err != nil {
				return err
			}
		}
		return s.audit.Log(ctx, tx, actorID, "group.positions_updated", "group", groupID, jsonString(positions))
	})
	if err != nil {
		return nil, err
	}
	return s.members.List(ctx, groupID)
}

func validatePermutation(active []models.GroupMember, positions map[string]int) error {
	if len(positions) != len(active) {
		return ErrInvalidPositions
	}
	seen := make([]int, 0, len(active))
	for _, m := range active {
		p, ok := positions[m.UserID]
		if !ok {
			return ErrInvalidPositions
		}
		seen = append(seen, p)
	}
	sort.Ints(seen)
	for i, p := range seen {
		if p != i+1 {
			return ErrInvalidPositions
		}
	}
	return nil
}

// requireManager allows the group creator, group admins and system admins.
func (s *GroupService) requireManager(ctx context.Context, tx store.Getter, group models.Group, userID string) error {
	return requireGroupManager(ctx, s.members, s.roles, tx, group, userID)
}

func requireGroupManager(ctx context.Context, members MemberStore, roles RoleLookup, tx store.Getter, group models.Group, userID string) error {
	if group.CreatorID == userID {
		return nil
	}
	member, err := members.GetForUpdate(ctx, tx, group.ID, userID)
	if err == nil && member.CanManage() {
		return nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	role, err := roles.GetRole(ctx, userID)
	if err != nil {
		return err
	}
	if role == models.RoleAdmin {
		return nil
	}
	return ErrForbidden
}

func (s *GroupService) isSystemAdmin(ctx context.Context, userID string) (bool, error) {
	role, err := s.roles.GetRole(ctx, userID)
	return role == models.RoleAdmin, err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
