package services

import (
	"encoding/hex"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"sort"

	"kixikila/internal/models"
)

// Selection is the outcome of picking a cycle winner.
type Selection struct {
	Winner     models.GroupMember
	Seed       *string
	Candidates []string
	// Reset is set when every active member had been paid and the rotation
	// restarted before picking.
	Reset bool
}

func eligibleMembers(members []models.GroupMember) []models.GroupMember {
	out := make([]models.GroupMember, 0, len(members))
	for _, m := range members {
		if m.Status == models.MemberActive && !m.HasReceivedPayout {
			out = append(out, m)
		}
	}
	return out
}

// SelectByOrder returns the eligible member with the lowest payout position.
// Members without a position sort last; ties fall back to join time, then id.
func SelectByOrder(candidates []models.GroupMember) models.GroupMember {
	sorted := append([]models.GroupMember(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.PayoutPosition == nil && b.PayoutPosition != nil:
			return false
		case a.PayoutPosition != nil && b.PayoutPosition == nil:
			return true
		case a.PayoutPosition != nil && *a.PayoutPosition != *b.PayoutPosition:
			return *a.PayoutPosition < *b.PayoutPosition
		case !a.JoinedAt.Equal(b.JoinedAt):
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.UserID < b.UserID
	})
	return sorted[0]
}

// SelectByLottery picks uniformly among candidates sorted by user id, using a
// ChaCha8 stream keyed by seed. The same seed and candidates always give the
// same winner.
func SelectByLottery(candidates []models.GroupMember, seed [32]byte) models.GroupMember {
	sorted := append([]models.GroupMember(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UserID < sorted[j].UserID })
	rng := mrand.New(mrand.NewChaCha8(seed))
	return sorted[rng.IntN(len(sorted))]
}

// selectWinner applies the group's draw mode to its locked active members.
// entropy is only read in lottery mode.
func selectWinner(mode string, members []models.GroupMember, entropy io.Reader) (Selection, error) {
	candidates := eligibleMembers(members)
	var sel Selection
	if len(candidates) == 0 {
		sel.Reset = true
		for _, m := range members {
			if m.Status == models.MemberActive {
				m.HasReceivedPayout = false
				m.PayoutCycle = nil
				candidates = append(candidates, m)
			}
		}
	}
	if len(candidates) == 0 {
		return Selection{}, ErrNotEnoughMembers
	}
	switch mode {
	case models.DrawOrder:
		sel.Winner = SelectByOrder(candidates)
	case models.DrawLottery:
		var seed [32]byte
		if _, err := io.ReadFull(entropy, seed[:]); err != nil {
			return Selection{}, fmt.Errorf("draw seed: %w", err)
		}
		sel.Winner = SelectByLottery(candidates, seed)
		sel.Seed = stringPtr(hex.EncodeToString(seed[:]))
	default:
		return Selection{}, fmt.Errorf("unknown draw mode %q", mode)
	}
	sel.Candidates = make([]string, 0, len(candidates))
	for _, c := range candidates {
		sel.Candidates = append(sel.Candidates, c.UserID)
	}
	sort.Strings(sel.Candidates)
	return sel, nil
}

// ReplayLottery recomputes a stored lottery draw from its hex seed and
// candidate user ids.
func ReplayLottery(seedHex string, candidateIDs []string) (string, error) {
	raw, err := hex.DecodeString(seedHex)
	if err != nil || len(raw) != 32 || len(candidateIDs) == 0 {
		return "", fmt.Errorf("invalid draw record")
	}
	var seed [32]byte
	copy(seed[:], raw)
	candidates := make([]models.GroupMember, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		candidates = append(candidates, models.GroupMember{UserID: id})
	}
	return SelectByLottery(candidates, seed).UserID, nil
}
