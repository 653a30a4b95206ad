package services

import (
	"bytes"
	"encoding/hex"
	"testing"
	"time"

	"kixikila/internal/models"
)

func testMember(userID string, position *int, joined time.Time) models.GroupMember {
	return models.GroupMember{
		ID:             "m-" + userID,
		UserID:         userID,
		Status:         models.MemberActive,
		PayoutPosition: position,
		JoinedAt:       joined,
	}
}

func TestSelectByOrderLowestPosition(t *testing.T) {
	base := time.Now()
	members := []models.GroupMember{
		testMember("c", intPtr(3), base),
		testMember("a", intPtr(2), base),
		testMember("b", nil, base.Add(-time.Hour)),
	}
	if got := SelectByOrder(members).UserID; got != "a" {
		t.Fatalf("expected a, got %s", got)
	}
}

func TestSelectByOrderTieBreaks(t *testing.T) {
	base := time.Now()
	members := []models.GroupMember{
		testMember("z", nil, base),
		testMember("y", nil, base.Add(-time.Minute)),
		testMember("x", nil, base.Add(-time.Minute)),
	}
	if got := SelectByOrder(members).UserID; got != "x" {
		t.Fatalf("expected earliest join then lowest id, got %s", got)
	}
}

func TestSelectByLotteryIsDeterministic(t *testing.T) {
	var seed [32]byte
	copy(seed[:], bytes.Repeat([]byte{7}, 32))
	members := []models.GroupMember{testMember("u3", nil, time.Time{}), testMember("u1", nil, time.Time{}), testMember("u2", nil, time.Time{})}
	first := SelectByLottery(members, seed).UserID
	reversed := []models.GroupMember{members[2], members[1], members[0]}
	for i := 0; i < 5; i++ {
		if got := SelectByLottery(reversed, seed).UserID; got != first {
			t.Fatalf("winner changed with input order: %s vs %s", got, first)
		}
	}
	replayed, err := ReplayLottery(hex.EncodeToString(seed[:]), []string{"u1", "u2", "u3"})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed != first {
		t.Fatalf("replay gave %s, draw gave %s", replayed, first)
	}
}

func TestReplayLotteryRejectsBadRecord(t *testing.T) {
	if _, err := ReplayLottery("zz", []string{"a"}); err == nil {
		t.Fatal("expected error for bad seed")
	}
	if _, err := ReplayLottery(hex.EncodeToString(make([]byte, 32)), nil); err == nil {
		t.Fatal("expected error for empty candidates")
	}
}

func TestSelectWinnerSkipsPaidMembers(t *testing.T) {
	paid := testMember("a", intPtr(1), time.Time{})
	paid.HasReceivedPayout = true
	members := []models.GroupMember{paid, testMember("b", intPtr(2), time.Time{}), testMember("c", intPtr(3), time.Time{})}

	sel, err := selectWinner(models.DrawOrder, members, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if sel.Winner.UserID != "b" || sel.Reset || sel.Seed != nil {
		t.Fatalf("unexpected selection %+v", sel)
	}
	if len(sel.Candidates) != 2 || sel.Candidates[0] != "b" || sel.Candidates[1] != "c" {
		t.Fatalf("unexpected candidates %v", sel.Candidates)
	}
}

func TestSelectWinnerResetsRotation(t *testing.T) {
	a := testMember("a", intPtr(1), time.Time{})
	b := testMember("b", intPtr(2), time.Time{})
	a.HasReceivedPayout, b.HasReceivedPayout = true, true

	sel, err := selectWinner(models.DrawOrder, []models.GroupMember{a, b}, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !sel.Reset || sel.Winner.UserID != "a" || len(sel.Candidates) != 2 {
		t.Fatalf("unexpected selection %+v", sel)
	}
}

func TestSelectWinnerLotteryStoresSeed(t *testing.T) {
	entropy := bytes.NewReader(bytes.Repeat([]byte{0xab}, 32))
	members := []models.GroupMember{testMember("a", nil, time.Time{}), testMember("b", nil, time.Time{})}

	sel, err := selectWinner(models.DrawLottery, members, entropy)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if sel.Seed == nil || *sel.Seed != hex.EncodeToString(bytes.Repeat([]byte{0xab}, 32)) {
		t.Fatalf("unexpected seed %v", sel.Seed)
	}
	replayed, err := ReplayLottery(*sel.Seed, sel.Candidates)
	if err != nil || replayed != sel.Winner.UserID {
		t.Fatalf("replay mismatch: %s vs %s (%v)", replayed, sel.Winner.UserID, err)
	}
}

func TestSelectWinnerShortEntropy(t *testing.T) {
	members := []models.GroupMember{testMember("a", nil, time.Time{}), testMember("b", nil, time.Time{})}
	if _, err := selectWinner(models.DrawLottery, members, bytes.NewReader([]byte{1, 2})); err == nil {
		t.Fatal("expected error when entropy runs out")
	}
}

func TestRotationComplete(t *testing.T) {
	a := testMember("a", nil, time.Time{})
	b := testMember("b", nil, time.Time{})
	if rotationComplete([]models.GroupMember{a, b}, a.ID, false) {
		t.Fatal("b has not been paid yet")
	}
	b.HasReceivedPayout = true
	if !rotationComplete([]models.GroupMember{a, b}, a.ID, false) {
		t.Fatal("a was the last unpaid member")
	}
	if rotationComplete([]models.GroupMember{a, b}, a.ID, true) {
		t.Fatal("a reset rotation is never complete after one draw")
	}
}
