package store

import (
	"context"
	"time"

	"kixikila/internal/models"
)

type NotificationStore struct {
	db DB
}

func NewNotificationStore(db DB) *NotificationStore {
	return &NotificationStore{db: db}
}

type NotificationInput struct {
	ID      string
	UserID  string
	Type    string
	Title   string
	Message string
	Data    string
}

func (s *NotificationStore) Create(ctx context.Context, tx Execer, input NotificationInput) error {
	data := input.Data
	if data == "" {
		data = "{}"
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, data)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, input.ID, input.UserID, input.Type, input.Title, input.Message, data)
	return err
}

func (s *NotificationStore) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	f := &filter{}
	f.add("user_id = ?", userID)
	if unreadOnly {
		f.clauses = append(f.clauses, "is_read = FALSE")
	}
	query := `SELECT id, user_id, type, title, message, data, is_read, read_at, created_at FROM notifications` +
		f.where() + ` ORDER BY created_at DESC` + f.page(limit, offset)
	var rows []models.Notification
	if err := s.db.SelectContext(ctx, &rows, query, f.args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *NotificationStore) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(1) FROM notifications WHERE user_id = $1 AND is_read = FALSE
	`, userID)
	return count, err
}

// SetRead only touches the owner's row; zero rows means not found.
func (s *NotificationStore) SetRead(ctx context.Context, userID, notificationID string, read bool) (int64, error) {
	return rowsAffected(s.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = $3, read_at = CASE WHEN $3 THEN NOW() END
		WHERE id = $1 AND user_id = $2
	`, notificationID, userID, read))
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return rowsAffected(s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = NOW() WHERE user_id = $1 AND is_read = FALSE
	`, userID))
}

func (s *NotificationStore) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return rowsAffected(s.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE is_read = TRUE AND created_at < $1
	`, cutoff))
}
