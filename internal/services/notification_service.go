package services

import (
	"context"

	"kixikila/internal/events"
	"kixikila/internal/models"
	"kixikila/internal/store"

	"github.com/google/uuid"
)

type NotificationStore interface {
	Create(ctx context.Context, tx store.Execer, input store.NotificationInput) error
	List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	SetRead(ctx context.Context, userID, notificationID string, read bool) (int64, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type NotificationService struct {
	db            store.Execer
	notifications NotificationStore
	users         UserStore
	publisher     Publisher
}

func NewNotificationService(db store.Execer, notifications NotificationStore, users UserStore, publisher Publisher) *NotificationService {
	return &NotificationService{db: db, notifications: notifications, users: users, publisher: publisher}
}

type NotificationPage struct {
	Items       []models.Notification `json:"items"`
	UnreadCount int                   `json:"unread_count"`
}

func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) (NotificationPage, error) {
	items, err := s.notifications.List(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return NotificationPage{}, err
	}
	unread, err := s.notifications.CountUnread(ctx, userID)
	if err != nil {
		return NotificationPage{}, err
	}
	if items == nil {
		items = []models.Notification{}
	}
	return NotificationPage{Items: items, UnreadCount: unread}, nil
}

type CreateNotificationRequest struct {
	UserID  string
	Type    string
	Title   string
	Message string
	Data    string
}

func (s *NotificationService) Create(ctx context.Context, req CreateNotificationRequest) (string, error) {
	if _, err := s.users.GetByID(ctx, req.UserID); err != nil {
		return "", notFound(err)
	}
	id := uuid.NewString()
	if err := s.notifications.Create(ctx, s.db, store.NotificationInput{
		ID:      id,
		UserID:  req.UserID,
		Type:    req.Type,
		Title:   req.Title,
		Message: req.Message,
		Data:    req.Data,
	}); err != nil {
		return "", err
	}
	s.publisher.Publish(ctx, events.TopicNotification, events.NotificationCreated{
		UserID:         req.UserID,
		NotificationID: id,
		Type:           req.Type,
		Title:          req.Title,
		Message:        req.Message,
	})
	return id, nil
}

// SetRead only touches the caller's own notifications.
func (s *NotificationService) SetRead(ctx context.Context, userID, notificationID string, read bool) error {
	rows, err := s.notifications.SetRead(ctx, userID, notificationID, read)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.notifications.MarkAllRead(ctx, userID)
}
