package events

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"kixikila/internal/models"
	"kixikila/internal/store"
	"kixikila/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifications struct {
	mu    sync.Mutex
	items []store.NotificationInput
}

func (r *recordingNotifications) Create(_ context.Context, _ store.Execer, input store.NotificationInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, input)
	return nil
}

func (r *recordingNotifications) snapshot() []store.NotificationInput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]store.NotificationInput(nil), r.items...)
}

type stubUsers struct {
	getFn func(ctx context.Context, userID string) (models.User, error)
}

func (s stubUsers) GetByID(ctx context.Context, userID string) (models.User, error) {
	return s.getFn(ctx, userID)
}

type recordingPusher struct {
	mu     sync.Mutex
	events map[string][]websocket.Event
}

func (p *recordingPusher) Push(userID string, event websocket.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = map[string][]websocket.Event{}
	}
	p.events[userID] = append(p.events[userID], event)
}

type recordingSMS struct {
	mu   sync.Mutex
	sent map[string]string
	err  error
}

func (s *recordingSMS) SendSMS(_ context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = map[string]string{}
	}
	s.sent[to] = body
	return s.err
}

type nopExecer struct{}

func (nopExecer) ExecContext(context.Context, string, ...any) (sql.Result, error) { return nil, nil }

func startRouter(t *testing.T, notifier *Notifier) *Bus {
	t.Helper()
	bus := NewBus()
	router, err := NewRouter(bus, notifier)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = router.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = bus.Close()
	})
	select {
	case <-router.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}
	return bus
}

func TestDrawCompletedNotifiesEveryMemberAndTextsWinner(t *testing.T) {
	notes := &recordingNotifications{}
	pusher := &recordingPusher{}
	sms := &recordingSMS{}
	users := stubUsers{getFn: func(_ context.Context, id string) (models.User, error) {
		return models.User{ID: id, Phone: "+244923000001"}, nil
	}}
	bus := startRouter(t, NewNotifier(nopExecer{}, notes, users, pusher, sms))

	bus.Publish(context.Background(), TopicDrawCompleted, DrawCompleted{
		GroupID: "g-1", GroupName: "Familia", Cycle: 1, WinnerUserID: "u-2",
		Payout: 15000, MemberIDs: []string{"u-1", "u-2", "u-3"},
	})

	require.Eventually(t, func() bool { return len(notes.snapshot()) == 3 }, 3*time.Second, 10*time.Millisecond)
	for _, n := range notes.snapshot() {
		if n.UserID == "u-2" {
			assert.Equal(t, "You received the payout", n.Title)
			assert.Contains(t, n.Message, "150.00")
		} else {
			assert.Equal(t, "Draw completed", n.Title)
		}
	}
	require.Eventually(t, func() bool {
		sms.mu.Lock()
		defer sms.mu.Unlock()
		return sms.sent["+244923000001"] != ""
	}, 3*time.Second, 10*time.Millisecond)
}

func TestNotifierSMSFailureDoesNotFailHandler(t *testing.T) {
	notes := &recordingNotifications{}
	users := stubUsers{getFn: func(context.Context, string) (models.User, error) {
		return models.User{Phone: "+1"}, nil
	}}
	n := NewNotifier(nopExecer{}, notes, users, &recordingPusher{}, &recordingSMS{err: errors.New("down")})
	bus := startRouter(t, n)
	bus.Publish(context.Background(), TopicDrawCompleted, DrawCompleted{WinnerUserID: "u-1", MemberIDs: []string{"u-1"}})
	require.Eventually(t, func() bool { return len(notes.snapshot()) == 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, notes.snapshot(), 1)
}

func TestWithdrawalUpdatedPushesWallet(t *testing.T) {
	notes := &recordingNotifications{}
	pusher := &recordingPusher{}
	users := stubUsers{getFn: func(context.Context, string) (models.User, error) { return models.User{}, nil }}
	bus := startRouter(t, NewNotifier(nopExecer{}, notes, users, pusher, &recordingSMS{}))

	bus.Publish(context.Background(), TopicWithdrawalUpdated, WithdrawalUpdated{
		UserID: "u-1", WithdrawalID: "w-1", Status: models.WithdrawalFailed, Amount: 500,
	})
	require.Eventually(t, func() bool {
		pusher.mu.Lock()
		defer pusher.mu.Unlock()
		return len(pusher.events["u-1"]) == 2
	}, 3*time.Second, 10*time.Millisecond)
	assert.Contains(t, notes.snapshot()[0].Message, "returned to your wallet")
	pusher.mu.Lock()
	defer pusher.mu.Unlock()
	require.Len(t, pusher.events["u-1"], 2)
	assert.Equal(t, "wallet", pusher.events["u-1"][1].Type)
}
