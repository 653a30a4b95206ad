package store

import (
	"context"
	"strings"
	"testing"

	"kixikila/internal/models"
)

func TestWithdrawalStoreTransitionGuardsFromStatus(t *testing.T) {
	log := &execLog{rows: 1}
	reason := "bank rejected"
	n, err := NewWithdrawalStore(stubDB{}).Transition(context.Background(), log.execer(), "w-1",
		models.WithdrawalProcessing, models.WithdrawalFailed, &reason, nil)
	if err != nil || n != 1 {
		t.Fatalf("unexpected result: %d %v", n, err)
	}
	if !strings.Contains(log.queries[0], "WHERE id = $1 AND status = $2") {
		t.Fatalf("unexpected query: %s", log.queries[0])
	}
	if log.args[0][1] != models.WithdrawalProcessing || log.args[0][2] != models.WithdrawalFailed {
		t.Fatalf("unexpected args: %#v", log.args[0])
	}
}

func TestWithdrawalStoreListByStatus(t *testing.T) {
	store := NewWithdrawalStore(stubDB{
		selectFn: func(_ context.Context, _ any, query string, args ...any) error {
			if !strings.Contains(query, "WHERE status = $1") || len(args) != 3 {
				t.Fatalf("unexpected call: %s %#v", query, args)
			}
			return nil
		},
	})
	if _, err := store.List(context.Background(), "", models.WithdrawalPending, 50, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAuditStoreLogSystemActor(t *testing.T) {
	log := &execLog{rows: 1}
	if err := NewAuditStore(stubDB{}).Log(context.Background(), log.execer(), "", "cleanup.run", "system", "cleanup", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	args := log.args[0]
	if actor, ok := args[0].(*string); !ok || actor != nil {
		t.Fatalf("expected nil actor, got %#v", args[0])
	}
	if args[4] != "{}" {
		t.Fatalf("expected empty json data, got %#v", args[4])
	}
}
