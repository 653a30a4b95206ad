package handlers

import (
	"context"
	"time"

	"kixikila/internal/models"
	"kixikila/internal/payments"
	"kixikila/internal/services"
	"kixikila/internal/store"
)

type AuthService interface {
	Register(ctx context.Context, req services.RegisterRequest) (services.RegisterResult, error)
	Login(ctx context.Context, identifier, password string) (services.LoginResult, error)
	VerifyOTP(ctx context.Context, phone, code, otpType string) (services.Session, error)
	ResendOTP(ctx context.Context, phone, otpType string) (time.Time, error)
	Profile(ctx context.Context, userID string) (models.User, error)
	UpdateProfile(ctx context.Context, userID, fullName string, email *string) (models.User, error)
	CreateAdmin(ctx context.Context, actorID string, req services.RegisterRequest) (models.User, error)
}

type GroupService interface {
	Create(ctx context.Context, userID string, req services.CreateGroupRequest) (models.Group, error)
	List(ctx context.Context, userID, scope string, limit, offset int) ([]models.Group, error)
	Get(ctx context.Context, userID, groupID string) (services.GroupDetail, error)
	Members(ctx context.Context, userID, groupID string) ([]models.GroupMember, error)
	Update(ctx context.Context, userID, groupID string, req services.UpdateGroupRequest) (models.Group, error)
	Delete(ctx context.Context, userID, groupID string) error
	Join(ctx context.Context, userID, groupID string) (models.GroupMember, error)
	Leave(ctx context.Context, userID, groupID string) error
	UpdateMember(ctx context.Context, actorID, groupID, memberUserID string, req services.UpdateMemberRequest) (models.GroupMember, error)
	ReorderPositions(ctx context.Context, actorID, groupID string, positions map[string]int) ([]models.GroupMember, error)
}

type DrawService interface {
	Draw(ctx context.Context, actorID, groupID string) (services.DrawResult, error)
	History(ctx context.Context, userID, groupID string) ([]models.Draw, error)
}

type PaymentService interface {
	InitiateContribution(ctx context.Context, userID, groupID string, amount int64, method string) (services.InitiationResult, error)
	InitiateDeposit(ctx context.Context, userID string, amount int64) (services.InitiationResult, error)
	CancelPayment(ctx context.Context, userID, transactionID string) (models.Transaction, error)
	HandleEvent(ctx context.Context, evt payments.Event) error
}

type WebhookVerifier interface {
	ParseWebhook(payload []byte, signature string) (payments.Event, error)
}

type TransactionReader interface {
	List(ctx context.Context, f store.TransactionFilter, limit, offset int) ([]models.Transaction, error)
	GetForUser(ctx context.Context, userID, transactionID string) (models.Transaction, error)
}

type WithdrawalService interface {
	Request(ctx context.Context, userID string, amount int64, payoutAccountID string) (models.Withdrawal, error)
	List(ctx context.Context, userID, status string, limit, offset int) ([]models.Withdrawal, error)
	Cancel(ctx context.Context, userID, withdrawalID string) (models.Withdrawal, error)
	UpdateStatus(ctx context.Context, adminID, withdrawalID, status string, reason *string) (models.Withdrawal, error)
	Accounts(ctx context.Context, userID string) ([]models.PayoutAccount, error)
	AddAccount(ctx context.Context, userID string, req services.PayoutAccountRequest) (models.PayoutAccount, error)
	DeleteAccount(ctx context.Context, userID, accountID string) error
}

type NotificationService interface {
	List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) (services.NotificationPage, error)
	Create(ctx context.Context, req services.CreateNotificationRequest) (string, error)
	SetRead(ctx context.Context, userID, notificationID string, read bool) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type SubscriptionService interface {
	Checkout(ctx context.Context, userID string) (payments.Checkout, error)
	Status(ctx context.Context, userID string) (services.SubscriptionStatus, error)
}

type AdminService interface {
	Users(ctx context.Context, search string, limit, offset int) ([]models.User, error)
	SetKYC(ctx context.Context, adminID, userID, status string) error
	SetRole(ctx context.Context, adminID, userID, role string) error
	Transactions(ctx context.Context, f store.TransactionFilter, limit, offset int) ([]models.Transaction, error)
	AuditLogs(ctx context.Context, f store.AuditFilter, limit, offset int) ([]models.AuditLog, error)
	Monitoring(ctx context.Context) (services.MonitoringReport, error)
	Health(ctx context.Context) (map[string]string, bool)
	Reconcile(ctx context.Context) (services.ReconcileReport, error)
	Config(ctx context.Context) ([]models.SystemConfig, error)
	SetConfig(ctx context.Context, adminID, key, value string) error
}

type CleanupRunner interface {
	Run(ctx context.Context) (services.CleanupReport, error)
}
