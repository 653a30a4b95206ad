package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"kixikila/internal/db"
	"kixikila/internal/events"
	"kixikila/internal/lock"
	"kixikila/internal/logging"
	"kixikila/internal/metrics"
	"kixikila/internal/models"
	"kixikila/internal/money"
	"kixikila/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Locker serialises draws of one group across instances.
type Locker interface {
	Acquire(ctx context.Context, name string) (func(), error)
}

type DrawService struct {
	txRunner     db.TxRunner
	groups       GroupStore
	members      MemberStore
	users        UserStore
	transactions TransactionStore
	ledger       LedgerStore
	draws        DrawStore
	config       ConfigStore
	audit        AuditStore
	roles        RoleLookup
	locker       Locker
	publisher    Publisher
	currency     string
	entropy      io.Reader
}

type DrawDeps struct {
	TxRunner     db.TxRunner
	Groups       GroupStore
	Members      MemberStore
	Users        UserStore
	Transactions TransactionStore
	Ledger       LedgerStore
	Draws        DrawStore
	Config       ConfigStore
	Audit        AuditStore
	Roles        RoleLookup
	Locker       Locker
	Publisher    Publisher
	Currency     string
}

func NewDrawService(deps DrawDeps) *DrawService {
	return &DrawService{
		txRunner:     deps.TxRunner,
		groups:       deps.Groups,
		members:      deps.Members,
		users:        deps.Users,
		transactions: deps.Transactions,
		ledger:       deps.Ledger,
		draws:        deps.Draws,
		config:       deps.Config,
		audit:        deps.Audit,
		roles:        deps.Roles,
		locker:       deps.Locker,
		publisher:    deps.Publisher,
		currency:     deps.Currency,
		entropy:      rand.Reader,
	}
}

type DrawResult struct {
	DrawID         string   `json:"draw_id"`
	GroupID        string   `json:"group_id"`
	Cycle          int      `json:"cycle"`
	Mode           string   `json:"mode"`
	WinnerUserID   string   `json:"winner_user_id"`
	WinnerName     string   `json:"winner_name"`
	PoolAmount     int64    `json:"pool_amount"`
	FeeAmount      int64    `json:"fee_amount"`
	PayoutAmount   int64    `json:"payout_amount"`
	TransactionID  string   `json:"transaction_id"`
	Seed           *string  `json:"seed,omitempty"`
	Candidates     []string `json:"candidates"`
	GroupCompleted bool     `json:"group_completed"`
}

// Draw settles the current cycle of a group: it picks the winner, pays the
// pool out to the winner's wallet and opens the next cycle.
func (s *DrawService) Draw(ctx context.Context, actorID, groupID string) (DrawResult, error) {
	release, err := s.locker.Acquire(ctx, groupID)
	switch {
	case errors.Is(err, lock.ErrHeld):
		metrics.Draws.WithLabelValues("unknown", "locked").Inc()
		return DrawResult{}, ErrDrawInProgress
	case err != nil:
		// the transaction and UNIQUE(group_id, cycle) still guard the draw
		logging.Ctx(ctx).Warn().Err(err).Str("group_id", groupID).Msg("draw lock unavailable")
	default:
		defer release()
	}

	var (
		result    DrawResult
		groupName string
		memberIDs []string
	)
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result = DrawResult{}
		group, err := s.groups.GetForUpdate(ctx, tx, groupID)
		if err != nil {
			return notFound(err)
		}
		if err := requireGroupManager(ctx, s.members, s.roles, tx, group, actorID); err != nil {
			return err
		}
		if group.Status != models.GroupActive {
			return ErrInvalidGroupState
		}
		members, err := s.members.LockActive(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if len(members) < 2 {
			return ErrNotEnoughMembers
		}
		for _, m := range members {
			if m.CurrentBalance != group.ContributionAmount {
				return ErrIncompleteCycle
			}
		}

		sel, err := selectWinner(group.Type, members, s.entropy)
		if err != nil {
			return err
		}
		if sel.Reset {
			if err := s.members.ResetRotation(ctx, tx, groupID); err != nil {
				return err
			}
		}

		bps, err := s.config.Int(ctx, tx, store.ConfigPayoutFeeBps, 0)
		if err != nil {
			return err
		}
		poolAmount := group.TotalPool
		fee := money.FeeMinor(poolAmount, bps)
		payout := poolAmount - fee
		winner := sel.Winner

		result = DrawResult{
			DrawID:        uuid.NewString(),
			GroupID:       groupID,
			Cycle:         group.CurrentCycle,
			Mode:          group.Type,
			WinnerUserID:  winner.UserID,
			WinnerName:    winner.FullName,
			PoolAmount:    poolAmount,
			FeeAmount:     fee,
			PayoutAmount:  payout,
			TransactionID: uuid.NewString(),
			Seed:          sel.Seed,
			Candidates:    sel.Candidates,
		}
		metadata := jsonString(map[string]any{
			"draw_id":    result.DrawID,
			"mode":       group.Type,
			"seed":       sel.Seed,
			"candidates": sel.Candidates,
			"pool":       poolAmount,
			"fee":        fee,
		})
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:            result.TransactionID,
			UserID:        winner.UserID,
			GroupID:       stringPtr(groupID),
			Cycle:         intPtr(group.CurrentCycle),
			Type:          models.TxGroupPayout,
			Amount:        payout,
			Currency:      s.currency,
			Status:        models.TxCompleted,
			PaymentMethod: models.MethodSystem,
			Reference:     newReference(),
			Description:   fmt.Sprintf("%s payout, cycle %d", group.Name, group.CurrentCycle),
			Metadata:      metadata,
		}); err != nil {
			return err
		}
		if err := post(ctx, tx, s.ledger, result.TransactionID, "group payout",
			pool(groupID, -payout), wallet(winner.UserID, payout)); err != nil {
			return err
		}
		if fee > 0 {
			feeTxID := uuid.NewString()
			if err := s.transactions.Create(ctx, tx, store.TransactionInput{
				ID:            feeTxID,
				UserID:        winner.UserID,
				GroupID:       stringPtr(groupID),
				Cycle:         intPtr(group.CurrentCycle),
				Type:          models.TxFee,
				Amount:        fee,
				Currency:      s.currency,
				Status:        models.TxCompleted,
				PaymentMethod: models.MethodSystem,
				Reference:     newReference(),
				Description:   fmt.Sprintf("%s payout fee, cycle %d", group.Name, group.CurrentCycle),
				Metadata:      jsonString(map[string]any{"draw_id": result.DrawID, "bps": bps}),
			}); err != nil {
				return err
			}
			if err := post(ctx, tx, s.ledger, feeTxID, "payout fee", pool(groupID, -fee), fees(fee)); err != nil {
				return err
			}
		}
		if payout > 0 {
			if _, err := s.users.ApplyWallet(ctx, tx, winner.UserID, store.WalletDelta{Wallet: payout, Earned: payout}); err != nil {
				return err
			}
		}
		if err := s.members.ResetBalances(ctx, tx, groupID); err != nil {
			return err
		}
		if err := s.members.MarkPaid(ctx, tx, winner.ID, group.CurrentCycle); err != nil {
			return err
		}

		result.GroupCompleted = rotationComplete(members, winner.ID, sel.Reset)
		status := group.Status
		if result.GroupCompleted {
			status = models.GroupCompleted
		}
		if err := s.groups.CloseCycle(ctx, tx, groupID, status); err != nil {
			return err
		}
		if err := s.draws.Create(ctx, tx, store.DrawInput{
			ID:                  result.DrawID,
			GroupID:             groupID,
			Cycle:               group.CurrentCycle,
			Mode:                group.Type,
			WinnerUserID:        winner.UserID,
			PoolAmount:          poolAmount,
			FeeAmount:           fee,
			PayoutTransactionID: result.TransactionID,
			Seed:                sel.Seed,
			Candidates:          jsonString(sel.Candidates),
		}); err != nil {
			if store.IsUniqueViolation(err) {
				return ErrDrawInProgress
			}
			return err
		}

		groupName = group.Name
		memberIDs = make([]string, 0, len(members))
		for _, m := range members {
			memberIDs = append(memberIDs, m.UserID)
		}
		return s.audit.Log(ctx, tx, actorID, "group.draw", "group", groupID, jsonString(result))
	})
	if err != nil {
		metrics.Draws.WithLabelValues(drawMode(result.Mode), drawOutcome(err)).Inc()
		return DrawResult{}, err
	}
	metrics.Draws.WithLabelValues(result.Mode, "completed").Inc()
	logging.Ctx(ctx).Info().
		Str("group_id", groupID).
		Int("cycle", result.Cycle).
		Str("winner", result.WinnerUserID).
		Int64("payout", result.PayoutAmount).
		Msg("draw completed")

	s.publisher.Publish(ctx, events.TopicDrawCompleted, events.DrawCompleted{
		GroupID:      groupID,
		GroupName:    groupName,
		Cycle:        result.Cycle,
		Mode:         result.Mode,
		WinnerUserID: result.WinnerUserID,
		Payout:       result.PayoutAmount,
		Fee:          result.FeeAmount,
		MemberIDs:    memberIDs,
		Completed:    result.GroupCompleted,
	})
	return result, nil
}

func (s *DrawService) History(ctx context.Context, userID, groupID string) ([]models.Draw, error) {
	if _, err := s.groups.GetByID(ctx, groupID); err != nil {
		return nil, notFound(err)
	}
	if err := requireGroupView(ctx, s.members, s.roles, groupID, userID); err != nil {
		return nil, err
	}
	return s.draws.ListByGroup(ctx, groupID)
}

// rotationComplete reports whether every active member has now been paid.
func rotationComplete(members []models.GroupMember, winnerID string, reset bool) bool {
	for _, m := range members {
		if m.ID == winnerID {
			continue
		}
		if reset || !m.HasReceivedPayout {
			return false
		}
	}
	return true
}

func drawMode(mode string) string {
	if mode == "" {
		return "unknown"
	}
	return mode
}

func drawOutcome(err error) string {
	switch {
	case errors.Is(err, ErrIncompleteCycle):
		return "incomplete_cycle"
	case errors.Is(err, ErrInvalidGroupState):
		return "invalid_state"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrDrawInProgress):
		return "conflict"
	}
	return "error"
}
