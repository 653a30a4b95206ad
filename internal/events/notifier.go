package events

import (
	"context"
	"fmt"

	"kixikila/internal/logging"
	"kixikila/internal/messaging"
	"kixikila/internal/models"
	"kixikila/internal/money"
	"kixikila/internal/store"
	"kixikila/internal/websocket"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type NotificationWriter interface {
	Create(ctx context.Context, tx store.Execer, input store.NotificationInput) error
}

type UserLookup interface {
	GetByID(ctx context.Context, userID string) (models.User, error)
}

type Pusher interface {
	Push(userID string, event websocket.Event)
}

// Notifier turns domain events into stored notifications, socket pushes
// and, for draw winners, an SMS.
type Notifier struct {
	db            store.Execer
	notifications NotificationWriter
	users         UserLookup
	pusher        Pusher
	sms           messaging.Sender
}

func NewNotifier(db store.Execer, notifications NotificationWriter, users UserLookup, pusher Pusher, sms messaging.Sender) *Notifier {
	return &Notifier{db: db, notifications: notifications, users: users, pusher: pusher, sms: sms}
}

func (n *Notifier) notify(ctx context.Context, userID, kind, title, body string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	input := store.NotificationInput{
		ID:      uuid.NewString(),
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: body,
		Data:    string(raw),
	}
	if err := n.notifications.Create(ctx, n.db, input); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	n.pusher.Push(userID, websocket.Event{Type: websocket.EventNotification, Data: map[string]any{
		"id":      input.ID,
		"type":    kind,
		"title":   title,
		"message": body,
		"data":    json.RawMessage(raw),
	}})
	return nil
}

func (n *Notifier) HandleDrawCompleted(msg *message.Message) error {
	var evt DrawCompleted
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return err
	}
	ctx := msgContext(msg)
	payout := money.FormatMinor(evt.Payout)
	for _, memberID := range evt.MemberIDs {
		title := "Draw completed"
		body := fmt.Sprintf("Cycle %d of %s has been drawn.", evt.Cycle, evt.GroupName)
		if memberID == evt.WinnerUserID {
			title = "You received the payout"
			body = fmt.Sprintf("You received %s from %s (cycle %d).", payout, evt.GroupName, evt.Cycle)
		}
		if err := n.notify(ctx, memberID, "draw", title, body, evt); err != nil {
			return err
		}
	}
	n.pusher.Push(evt.WinnerUserID, websocket.Event{Type: websocket.EventWallet, Data: map[string]any{"credited": evt.Payout}})

	winner, err := n.users.GetByID(ctx, evt.WinnerUserID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("user_id", evt.WinnerUserID).Msg("draw winner lookup failed")
		return nil
	}
	text := fmt.Sprintf("KIXIKILA: you received %s from %s.", payout, evt.GroupName)
	if err := n.sms.SendSMS(ctx, winner.Phone, text); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("draw winner sms failed")
	}
	return nil
}

func (n *Notifier) HandlePaymentSettled(msg *message.Message) error {
	var evt PaymentSettled
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return err
	}
	amount := money.FormatMinor(evt.Amount)
	title, body := "Deposit confirmed", fmt.Sprintf("%s was added to your wallet.", amount)
	switch {
	case evt.Redirected:
		title = "Contribution redirected"
		body = fmt.Sprintf("The group no longer accepts contributions; %s was added to your wallet.", amount)
	case evt.Type == models.TxGroupContribution:
		title, body = "Contribution confirmed", fmt.Sprintf("Your contribution of %s was received.", amount)
	}
	if err := n.notify(msgContext(msg), evt.UserID, "payment", title, body, evt); err != nil {
		return err
	}
	n.pusher.Push(evt.UserID, websocket.Event{Type: websocket.EventWallet, Data: evt})
	return nil
}

func (n *Notifier) HandlePaymentFailed(msg *message.Message) error {
	var evt PaymentFailed
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return err
	}
	body := fmt.Sprintf("Your payment of %s failed: %s", money.FormatMinor(evt.Amount), evt.Reason)
	return n.notify(msgContext(msg), evt.UserID, "payment", "Payment failed", body, evt)
}

func (n *Notifier) HandleWithdrawalUpdated(msg *message.Message) error {
	var evt WithdrawalUpdated
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return err
	}
	amount := money.FormatMinor(evt.Amount)
	var body string
	switch evt.Status {
	case models.WithdrawalPending:
		body = fmt.Sprintf("Your withdrawal of %s was requested.", amount)
	case models.WithdrawalProcessing:
		body = fmt.Sprintf("Your withdrawal of %s is being processed.", amount)
	case models.WithdrawalCompleted:
		body = fmt.Sprintf("Your withdrawal of %s was sent.", amount)
	case models.WithdrawalFailed:
		body = fmt.Sprintf("Your withdrawal of %s failed and was returned to your wallet.", amount)
	case models.WithdrawalCancelled:
		body = fmt.Sprintf("Your withdrawal of %s was cancelled and returned to your wallet.", amount)
	default:
		body = fmt.Sprintf("Your withdrawal is now %s.", evt.Status)
	}
	if err := n.notify(msgContext(msg), evt.UserID, "withdrawal", "Withdrawal "+evt.Status, body, evt); err != nil {
		return err
	}
	n.pusher.Push(evt.UserID, websocket.Event{Type: websocket.EventWallet, Data: evt})
	return nil
}

func (n *Notifier) HandleKYCUpdated(msg *message.Message) error {
	var evt KYCUpdated
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return err
	}
	body := "Your identity verification was approved."
	if evt.Status == models.KYCRejected {
		body = "Your identity verification was rejected. Please submit it again."
	}
	return n.notify(msgContext(msg), evt.UserID, "kyc", "Verification "+evt.Status, body, evt)
}

// HandleNotificationCreated only pushes; the row already exists.
func (n *Notifier) HandleNotificationCreated(msg *message.Message) error {
	var evt NotificationCreated
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return err
	}
	n.pusher.Push(evt.UserID, websocket.Event{Type: websocket.EventNotification, Data: evt})
	return nil
}

func msgContext(msg *message.Message) context.Context {
	ctx := msg.Context()
	if id := msg.Metadata.Get("request_id"); id != "" {
		ctx = logging.WithRequestID(ctx, id)
	}
	return ctx
}
