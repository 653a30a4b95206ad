package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"kixikila/internal/models"
)

const (
	ConfigPayoutFeeBps        = "payout_fee_bps"
	ConfigFreeGroupLimit      = "free_group_limit"
	ConfigMinWithdrawalAmount = "min_withdrawal_amount"
	ConfigMaintenanceMode     = "maintenance_mode"
)

type ConfigStore struct {
	db DB
}

func NewConfigStore(db DB) *ConfigStore {
	return &ConfigStore{db: db}
}

func (s *ConfigStore) List(ctx context.Context) ([]models.SystemConfig, error) {
	var rows []models.SystemConfig
	err := s.db.SelectContext(ctx, &rows, `
		SELECT key, value, description, updated_by, updated_at FROM system_configurations ORDER BY key
	`)
	return rows, err
}

// Int reads an integer setting through g, falling back when it is absent.
func (s *ConfigStore) Int(ctx context.Context, g Getter, key string, fallback int64) (int64, error) {
	if g == nil {
		g = s.db
	}
	var value string
	err := g.GetContext(ctx, &value, `SELECT value FROM system_configurations WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

// Bool reads a true/false flag. Anything that does not parse counts as off.
func (s *ConfigStore) Bool(ctx context.Context, key string) (bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM system_configurations WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	on, _ := strconv.ParseBool(value)
	return on, nil
}

// Set replaces a value and returns the previous one for the audit trail.
func (s *ConfigStore) Set(ctx context.Context, tx Tx, key, value, actorID string) (string, error) {
	var previous string
	err := tx.GetContext(ctx, &previous, `SELECT value FROM system_configurations WHERE key = $1 FOR UPDATE`, key)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO system_configurations (key, value, updated_by, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = NOW()
	`, key, value, actorID)
	if err != nil {
		return "", err
	}
	return previous, nil
}
