package services

import (
	"context"
	"time"

	"kixikila/internal/models"
	"kixikila/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, input store.UserInput) error
	GetByID(ctx context.Context, userID string) (models.User, error)
	GetByPhone(ctx context.Context, phone string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByStripeCustomer(ctx context.Context, tx store.Getter, customerID string) (models.User, error)
	GetForUpdate(ctx context.Context, tx store.Getter, userID string) (models.User, error)
	ApplyWallet(ctx context.Context, tx store.Getter, userID string, delta store.WalletDelta) (int64, error)
	MarkPhoneVerified(ctx context.Context, tx store.Execer, userID string) error
	UpdateProfile(ctx context.Context, userID, fullName string, email *string) error
	SetKYCStatus(ctx context.Context, tx store.Execer, userID, status string) (int64, error)
	SetRole(ctx context.Context, tx store.Execer, userID, role string) (int64, error)
	SetVIP(ctx context.Context, tx store.Execer, userID string, active bool, expiresAt *time.Time) error
	SetStripeCustomer(ctx context.Context, tx store.Execer, userID, customerID string) error
	ExpireVIP(ctx context.Context, now time.Time) (int64, error)
	List(ctx context.Context, search string, limit, offset int) ([]models.User, error)
}

type GroupStore interface {
	Create(ctx context.Context, tx store.Execer, input store.GroupInput) error
	GetByID(ctx context.Context, groupID string) (models.Group, error)
	GetForUpdate(ctx context.Context, tx store.Getter, groupID string) (models.Group, error)
	Update(ctx context.Context, tx store.Execer, groupID string, update store.GroupUpdate) error
	AdjustMembers(ctx context.Context, tx store.Execer, groupID string, delta int) error
	AddToPool(ctx context.Context, tx store.Execer, groupID string, amount int64) error
	CloseCycle(ctx context.Context, tx store.Execer, groupID, status string) error
	Delete(ctx context.Context, tx store.Execer, groupID string) error
	CountOpenByCreator(ctx context.Context, tx store.Getter, userID string) (int, error)
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.Group, error)
	ListDiscoverable(ctx context.Context, userID string, limit, offset int) ([]models.Group, error)
}

type MemberStore interface {
	Create(ctx context.Context, tx store.Execer, input store.MemberInput) error
	Get(ctx context.Context, groupID, userID string) (models.GroupMember, error)
	GetForUpdate(ctx context.Context, tx store.Getter, groupID, userID string) (models.GroupMember, error)
	List(ctx context.Context, groupID string) ([]models.GroupMember, error)
	LockActive(ctx context.Context, tx store.Selecter, groupID string) ([]models.GroupMember, error)
	CountActive(ctx context.Context, tx store.Getter, groupID string) (int, error)
	NextPosition(ctx context.Context, tx store.Getter, groupID string) (int, error)
	Contribute(ctx context.Context, tx store.Execer, memberID string, amount int64) error
	ResetBalances(ctx context.Context, tx store.Execer, groupID string) error
	ResetRotation(ctx context.Context, tx store.Execer, groupID string) error
	MarkPaid(ctx context.Context, tx store.Execer, memberID string, cycle int) error
	SetStatus(ctx context.Context, tx store.Execer, memberID, status string) error
	SetRole(ctx context.Context, tx store.Execer, memberID, role string) error
	SetPosition(ctx context.Context, tx store.Execer, memberID string, position int) error
	Renumber(ctx context.Context, tx store.Execer, groupID string) error
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error
	SetPaymentReference(ctx context.Context, tx store.Execer, transactionID, reference string) error
	UpdateStatus(ctx context.Context, tx store.Execer, transactionID, status string, failureReason *string) (int64, error)
	GetForUpdate(ctx context.Context, tx store.Getter, transactionID string) (models.Transaction, error)
	GetForUpdateByPaymentReference(ctx context.Context, tx store.Getter, reference string) (models.Transaction, error)
	GetForUser(ctx context.Context, userID, transactionID string) (models.Transaction, error)
	SumPendingContributions(ctx context.Context, tx store.Getter, groupID, userID string, cycle int) (int64, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error)
	List(ctx context.Context, f store.TransactionFilter, limit, offset int) ([]models.Transaction, error)
}

type LedgerStore interface {
	InsertEntries(ctx context.Context, tx store.Execer, entries []store.LedgerEntryInput) error
}

type DrawStore interface {
	Create(ctx context.Context, tx store.Execer, input store.DrawInput) error
	ListByGroup(ctx context.Context, groupID string) ([]models.Draw, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type ConfigStore interface {
	Int(ctx context.Context, g store.Getter, key string, fallback int64) (int64, error)
}

// Publisher receives domain events after commit.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any)
}
