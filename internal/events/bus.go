package events

import (
	"context"

	"kixikila/internal/logging"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
)

const (
	TopicDrawCompleted     = "draw.completed"
	TopicPaymentSettled    = "payment.settled"
	TopicPaymentFailed     = "payment.failed"
	TopicWithdrawalUpdated = "withdrawal.updated"
	TopicKYCUpdated        = "kyc.updated"
	TopicNotification      = "notification.created"
)

type DrawCompleted struct {
	GroupID      string   `json:"group_id"`
	GroupName    string   `json:"group_name"`
	Cycle        int      `json:"cycle"`
	Mode         string   `json:"mode"`
	WinnerUserID string   `json:"winner_user_id"`
	Payout       int64    `json:"payout"`
	Fee          int64    `json:"fee"`
	MemberIDs    []string `json:"member_ids"`
	Completed    bool     `json:"group_completed"`
}

type PaymentSettled struct {
	UserID        string  `json:"user_id"`
	TransactionID string  `json:"transaction_id"`
	Type          string  `json:"type"`
	Amount        int64   `json:"amount"`
	GroupID       *string `json:"group_id,omitempty"`
	Redirected    bool    `json:"redirected,omitempty"`
}

type PaymentFailed struct {
	UserID        string `json:"user_id"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
}

type WithdrawalUpdated struct {
	UserID       string  `json:"user_id"`
	WithdrawalID string  `json:"withdrawal_id"`
	Status       string  `json:"status"`
	Amount       int64   `json:"amount"`
	Reason       *string `json:"reason,omitempty"`
}

type KYCUpdated struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// NotificationCreated is published for notifications created outside the
// notifier, such as admin broadcasts, so they reach open sockets.
type NotificationCreated struct {
	UserID         string `json:"user_id"`
	NotificationID string `json:"notification_id"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	Message        string `json:"message"`
}

// Bus is an in-process pub/sub. Delivery is best effort: events are
// published after the owning transaction commits.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

func NewBus() *Bus {
	logger := watermill.NewSlogLogger(logging.NewSlogLogger("events"))
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger),
		logger: logger,
	}
}

func (b *Bus) Subscriber() message.Subscriber {
	return b.pubsub
}

func (b *Bus) Logger() watermill.LoggerAdapter {
	return b.logger
}

// Publish never fails the caller; the state change has already committed.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("topic", topic).Msg("encode event")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	if id := logging.RequestIDFromContext(ctx); id != "" {
		msg.Metadata.Set("request_id", id)
	}
	if err := b.pubsub.Publish(topic, msg); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("topic", topic).Msg("publish event")
	}
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}
