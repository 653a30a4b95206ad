package store

import (
	"context"

	"kixikila/internal/models"
)

type AuditStore struct {
	db DB
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

// Log records an audit entry in the caller's transaction. An empty actorID
// marks a system action.
func (s *AuditStore) Log(ctx context.Context, tx Execer, actorID, action, entityType, entityID, data string) error {
	var actor *string
	if actorID != "" {
		actor = &actorID
	}
	if data == "" {
		data = "{}"
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, action, entity_type, entity_id, data)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
	`, actor, action, entityType, entityID, data)
	return err
}

type AuditFilter struct {
	EntityType string
	ActorID    string
	Action     string
}

func (s *AuditStore) List(ctx context.Context, af AuditFilter, limit, offset int) ([]models.AuditLog, error) {
	f := &filter{}
	if af.EntityType != "" {
		f.add("entity_type = ?", af.EntityType)
	}
	if af.ActorID != "" {
		f.add("actor_id = ?", af.ActorID)
	}
	if af.Action != "" {
		f.add("action = ?", af.Action)
	}
	query := `SELECT id, actor_id, action, entity_type, entity_id, data, created_at FROM audit_logs` +
		f.where() + ` ORDER BY created_at DESC` + f.page(limit, offset)
	var logs []models.AuditLog
	if err := s.db.SelectContext(ctx, &logs, query, f.args...); err != nil {
		return nil, err
	}
	return logs, nil
}
