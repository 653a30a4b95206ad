package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"kixikila/internal/models"
)

func TestUserStoreCreateDefaultsRole(t *testing.T) {
	ctx := context.Background()
	log := &execLog{rows: 1}
	store := NewUserStore(stubDB{})
	err := store.Create(ctx, log.execer(), UserInput{ID: "user-1", Phone: "+244923000000", FullName: "Ana", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(log.queries[0], "INSERT INTO users") {
		t.Fatalf("unexpected query: %s", log.queries[0])
	}
	args := log.args[0]
	if len(args) != 7 || args[0] != "user-1" || args[5] != models.RoleUser || args[6] != false {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestUserStoreGetForUpdateLocksRow(t *testing.T) {
	ctx := context.Background()
	getter := stubDB{getFn: func(_ context.Context, dest any, query string, args ...any) error {
		if !strings.Contains(query, "FOR UPDATE") {
			t.Fatalf("expected row lock: %s", query)
		}
		dest.(*models.User).ID = args[0].(string)
		return nil
	}}
	user, err := NewUserStore(stubDB{}).GetForUpdate(ctx, getter, "user-1")
	if err != nil || user.ID != "user-1" {
		t.Fatalf("unexpected result: %#v %v", user, err)
	}
}

func TestUserStoreApplyWalletGuardsNegative(t *testing.T) {
	ctx := context.Background()
	getter := stubDB{getFn: func(_ context.Context, dest any, query string, args ...any) error {
		if !strings.Contains(query, "wallet_balance + $2 >= 0") || !strings.Contains(query, "RETURNING wallet_balance") {
			t.Fatalf("unexpected query: %s", query)
		}
		if len(args) != 5 || args[1] != int64(-500) || args[4] != int64(500) {
			t.Fatalf("unexpected args: %#v", args)
		}
		return sql.ErrNoRows
	}}
	_, err := NewUserStore(stubDB{}).ApplyWallet(ctx, getter, "user-1", WalletDelta{Wallet: -500, Withdrawn: 500})
	if err != sql.ErrNoRows {
		t.Fatalf("expected no rows, got %v", err)
	}
}

func TestUserStoreListSearchBindsOneArg(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "full_name ILIKE $1 OR phone ILIKE $1 OR email ILIKE $1") {
				t.Fatalf("unexpected query: %s", query)
			}
			if !strings.Contains(query, "LIMIT $2 OFFSET $3") {
				t.Fatalf("unexpected paging: %s", query)
			}
			if len(args) != 3 || args[0] != "%ana%" || args[1] != 20 || args[2] != 40 {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*[]models.User) = []models.User{{ID: "user-1"}}
			return nil
		},
	})
	users, err := store.List(ctx, "ana", 20, 40)
	if err != nil || len(users) != 1 {
		t.Fatalf("unexpected result: %#v %v", users, err)
	}
}

func TestUserStoreExpireVIP(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := NewUserStore(stubDB{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "is_vip = FALSE") || args[0] != now {
				t.Fatalf("unexpected exec: %s %#v", query, args)
			}
			return rowsResult(3), nil
		},
	})
	n, err := store.ExpireVIP(ctx, now)
	if err != nil || n != 3 {
		t.Fatalf("unexpected result: %d %v", n, err)
	}
}
