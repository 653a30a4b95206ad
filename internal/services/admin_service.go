package services

import (
	"context"
	"strconv"

	"kixikila/internal/db"
	"kixikila/internal/events"
	"kixikila/internal/logging"
	"kixikila/internal/models"
	"kixikila/internal/store"

	"github.com/jmoiron/sqlx"
)

type AdminUserStore interface {
	List(ctx context.Context, search string, limit, offset int) ([]models.User, error)
	SetKYCStatus(ctx context.Context, tx store.Execer, userID, status string) (int64, error)
	SetRole(ctx context.Context, tx store.Execer, userID, role string) (int64, error)
}

type AuditReader interface {
	List(ctx context.Context, f store.AuditFilter, limit, offset int) ([]models.AuditLog, error)
}

type MonitoringStore interface {
	Monitoring(ctx context.Context) (store.Monitoring, error)
}

type Reconciler interface {
	WalletMismatches(ctx context.Context) ([]store.Mismatch, error)
	PoolMismatches(ctx context.Context) ([]store.Mismatch, error)
	ContributionMismatches(ctx context.Context) ([]store.Mismatch, error)
}

type SettingsStore interface {
	List(ctx context.Context) ([]models.SystemConfig, error)
	Set(ctx context.Context, tx store.Tx, key, value, actorID string) (string, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type AdminService struct {
	txRunner     db.TxRunner
	users        AdminUserStore
	transactions TransactionStore
	audit        AuditStore
	auditReader  AuditReader
	monitoring   MonitoringStore
	reconciler   Reconciler
	settings     SettingsStore
	publisher    Publisher
	checks       map[string]HealthCheck
}

type AdminDeps struct {
	TxRunner     db.TxRunner
	Users        AdminUserStore
	Transactions TransactionStore
	Audit        AuditStore
	AuditReader  AuditReader
	Monitoring   MonitoringStore
	Reconciler   Reconciler
	Settings     SettingsStore
	Publisher    Publisher
	Checks       map[string]HealthCheck
}

func NewAdminService(deps AdminDeps) *AdminService {
	return &AdminService{
		txRunner:     deps.TxRunner,
		users:        deps.Users,
		transactions: deps.Transactions,
		audit:        deps.Audit,
		auditReader:  deps.AuditReader,
		monitoring:   deps.Monitoring,
		reconciler:   deps.Reconciler,
		settings:     deps.Settings,
		publisher:    deps.Publisher,
		checks:       deps.Checks,
	}
}

func (s *AdminService) Users(ctx context.Context, search string, limit, offset int) ([]models.User, error) {
	return s.users.List(ctx, search, limit, offset)
}

func (s *AdminService) SetKYC(ctx context.Context, adminID, userID, status string) error {
	if status != models.KYCApproved && status != models.KYCRejected && status != models.KYCPending {
		return ErrInvalidTransition
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.users.SetKYCStatus(ctx, tx, userID, status)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrNotFound
		}
		return s.audit.Log(ctx, tx, adminID, "user.kyc_updated", "user", userID, jsonString(map[string]string{"status": status}))
	})
	if err != nil {
		return err
	}
	s.publisher.Publish(ctx, events.TopicKYCUpdated, events.KYCUpdated{UserID: userID, Status: status})
	return nil
}

func (s *AdminService) SetRole(ctx context.Context, adminID, userID, role string) error {
	if role != models.RoleUser && role != models.RoleAdmin {
		return ErrInvalidTransition
	}
	if adminID == userID && role != models.RoleAdmin {
		// the last operator could otherwise lock everyone out
		return ErrForbidden
	}
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.users.SetRole(ctx, tx, userID, role)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrNotFound
		}
		return s.audit.Log(ctx, tx, adminID, "user.role_updated", "user", userID, jsonString(map[string]string{"role": role}))
	})
}

func (s *AdminService) Transactions(ctx context.Context, f store.TransactionFilter, limit, offset int) ([]models.Transaction, error) {
	return s.transactions.List(ctx, f, limit, offset)
}

func (s *AdminService) AuditLogs(ctx context.Context, f store.AuditFilter, limit, offset int) ([]models.AuditLog, error) {
	return s.auditReader.List(ctx, f, limit, offset)
}

type MonitoringReport struct {
	store.Monitoring
	Health map[string]string `json:"health"`
}

func (s *AdminService) Monitoring(ctx context.Context) (MonitoringReport, error) {
	stats, err := s.monitoring.Monitoring(ctx)
	if err != nil {
		return MonitoringReport{}, err
	}
	health, _ := s.Health(ctx)
	return MonitoringReport{Monitoring: stats, Health: health}, nil
}

// Health runs every registered check. ok is false when any of them failed.
func (s *AdminService) Health(ctx context.Context) (map[string]string, bool) {
	out := make(map[string]string, len(s.checks))
	ok := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("component", name).Msg("health check failed")
			out[name] = "down"
			ok = false
			continue
		}
		out[name] = "ok"
	}
	return out, ok
}

type ReconcileReport struct {
	Wallets       []store.Mismatch `json:"wallets"`
	Pools         []store.Mismatch `json:"pools"`
	Contributions []store.Mismatch `json:"contributions"`
	Balanced      bool             `json:"balanced"`
}

// Reconcile compares materialized balances with the ledger, and each group
// pool with the contributions completed in its current cycle.
func (s *AdminService) Reconcile(ctx context.Context) (ReconcileReport, error) {
	wallets, err := s.reconciler.WalletMismatches(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}
	pools, err := s.reconciler.PoolMismatches(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}
	contributions, err := s.reconciler.ContributionMismatches(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}
	if wallets == nil {
		wallets = []store.Mismatch{}
	}
	if pools == nil {
		pools = []store.Mismatch{}
	}
	if contributions == nil {
		contributions = []store.Mismatch{}
	}
	report := ReconcileReport{
		Wallets:       wallets,
		Pools:         pools,
		Contributions: contributions,
		Balanced:      len(wallets) == 0 && len(pools) == 0 && len(contributions) == 0,
	}
	if !report.Balanced {
		logging.Ctx(ctx).Error().
			Int("wallets", len(wallets)).
			Int("pools", len(pools)).
			Int("contributions", len(contributions)).
			Msg("ledger mismatch")
	}
	return report, nil
}

func (s *AdminService) Config(ctx context.Context) ([]models.SystemConfig, error) {
	return s.settings.List(ctx)
}

// SetConfig changes a known setting after checking its value parses.
func (s *AdminService) SetConfig(ctx context.Context, adminID, key, value string) error {
	if err := validateSetting(key, value); err != nil {
		return err
	}
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		previous, err := s.settings.Set(ctx, tx, key, value, adminID)
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, adminID, "config.updated", "system_configuration", key,
			jsonString(map[string]string{"from": previous, "to": value}))
	})
}

func validateSetting(key, value string) error {
	switch key {
	case store.ConfigPayoutFeeBps:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 || n >= 10000 {
			return ErrInvalidConfigValue
		}
	case store.ConfigFreeGroupLimit, store.ConfigMinWithdrawalAmount:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return ErrInvalidConfigValue
		}
	case store.ConfigMaintenanceMode:
		if _, err := strconv.ParseBool(value); err != nil {
			return ErrInvalidConfigValue
		}
	default:
		return ErrUnknownConfigKey
	}
	return nil
}
