package store

import (
	"context"
	"strings"
	"testing"
)

func TestWebhookEventStoreRecord(t *testing.T) {
	cases := []struct {
		rows int64
		want bool
	}{
		{rows: 1, want: true},
		{rows: 0, want: false},
	}
	for _, tc := range cases {
		log := &execLog{rows: tc.rows}
		fresh, err := NewWebhookEventStore(stubDB{}).Record(context.Background(), log.execer(), "evt_1", "payment_intent.succeeded")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fresh != tc.want {
			t.Fatalf("rows=%d: fresh=%v want %v", tc.rows, fresh, tc.want)
		}
		if !strings.Contains(log.queries[0], "ON CONFLICT (event_id) DO NOTHING") {
			t.Fatalf("unexpected query: %s", log.queries[0])
		}
	}
}
