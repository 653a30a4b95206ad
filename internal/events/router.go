package events

import (
	"context"
	"fmt"
	"time"

	"kixikila/internal/logging"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// Router consumes bus topics with the notifier. It runs as a supervised
// service.
type Router struct {
	router *message.Router
}

func NewRouter(bus *Bus, notifier *Notifier) (*Router, error) {
	r, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, bus.Logger())
	if err != nil {
		return nil, fmt.Errorf("create event router: %w", err)
	}
	r.AddMiddleware(
		dropAfterRetries,
		middleware.Retry{
			MaxRetries:      2,
			InitialInterval: 100 * time.Millisecond,
			Multiplier:      2,
			Logger:          bus.Logger(),
		}.Middleware,
		middleware.Recoverer,
	)

	handlers := map[string]message.NoPublishHandlerFunc{
		TopicDrawCompleted:     notifier.HandleDrawCompleted,
		TopicPaymentSettled:    notifier.HandlePaymentSettled,
		TopicPaymentFailed:     notifier.HandlePaymentFailed,
		TopicWithdrawalUpdated: notifier.HandleWithdrawalUpdated,
		TopicKYCUpdated:        notifier.HandleKYCUpdated,
		TopicNotification:      notifier.HandleNotificationCreated,
	}
	for topic, handler := range handlers {
		r.AddConsumerHandler("notify."+topic, topic, bus.Subscriber(), handler)
	}
	return &Router{router: r}, nil
}

// dropAfterRetries acks messages whose handler kept failing so the
// in-memory channel never redelivers them forever.
func dropAfterRetries(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		out, err := h(msg)
		if err != nil {
			logging.Error().Err(err).Str("message_uuid", msg.UUID).Msg("dropping event after retries")
			return nil, nil
		}
		return out, nil
	}
}

func (r *Router) Serve(ctx context.Context) error {
	return r.router.Run(ctx)
}

func (r *Router) String() string {
	return "event-router"
}

// Running is closed once handlers are subscribed.
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}
