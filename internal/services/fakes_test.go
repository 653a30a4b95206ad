package services

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"kixikila/internal/models"
	"kixikila/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

// world is an in-memory rendition of the schema shared by the fake stores
// below, so a test can drive several services against the same balances.
type world struct {
	mu          sync.Mutex
	clock       time.Time
	seq         int
	users       map[string]*models.User
	groups      map[string]*models.Group
	members     map[string]*models.GroupMember
	txs         map[string]*models.Transaction
	ledger      []store.LedgerEntryInput
	draws       []store.DrawInput
	config      map[string]int64
	audits      []string
	webhooks    map[string]bool
	withdrawals map[string]*models.Withdrawal
	accounts    map[string]*models.PayoutAccount
}

func newWorld() *world {
	return &world{
		clock:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		users:       map[string]*models.User{},
		groups:      map[string]*models.Group{},
		members:     map[string]*models.GroupMember{},
		txs:         map[string]*models.Transaction{},
		config:      map[string]int64{},
		webhooks:    map[string]bool{},
		withdrawals: map[string]*models.Withdrawal{},
		accounts:    map[string]*models.PayoutAccount{},
	}
}

func (w *world) tick() time.Time {
	w.seq++
	return w.clock.Add(time.Duration(w.seq) * time.Second)
}

func (w *world) addUser(id, phone string, wallet int64) *models.User {
	u := &models.User{ID: id, Phone: phone, FullName: "User " + id, Role: models.RoleUser, KYCStatus: models.KYCPending, WalletBalance: wallet, CreatedAt: w.tick()}
	w.users[id] = u
	if wallet > 0 {
		w.ledger = append(w.ledger,
			store.LedgerEntryInput{TransactionID: "seed-" + id, AccountType: store.AccountWallet, AccountRef: id, Amount: wallet},
			store.LedgerEntryInput{TransactionID: "seed-" + id, AccountType: store.AccountClearing, AccountRef: clearingStripe, Amount: -wallet})
	}
	return u
}

// addGroup creates an active group whose users are active members in the
// given order, positions 1..N.
func (w *world) addGroup(id, mode string, contribution int64, userIDs ...string) *models.Group {
	g := &models.Group{
		ID: id, Name: "Group " + id, Type: mode, ContributionAmount: contribution,
		ContributionFrequency: "monthly", MaxMembers: 10, CurrentMembers: len(userIDs),
		Status: models.GroupActive, CurrentCycle: 1, CreatorID: userIDs[0], CreatedAt: w.tick(),
	}
	w.groups[id] = g
	for i, uid := range userIDs {
		role := models.MemberRoleMember
		if i == 0 {
			role = models.MemberRoleCreator
		}
		pos := i + 1
		m := &models.GroupMember{
			ID: id + "-m" + uid, GroupID: id, UserID: uid, FullName: "User " + uid, Role: role,
			Status: models.MemberActive, PayoutPosition: &pos, JoinedAt: w.tick(),
		}
		w.members[m.ID] = m
	}
	return g
}

func (w *world) ledgerSum(accountType, ref string) int64 {
	var sum int64
	for _, e := range w.ledger {
		if e.AccountType == accountType && e.AccountRef == ref {
			sum += e.Amount
		}
	}
	return sum
}

func (w *world) ledgerTotal() int64 {
	var sum int64
	for _, e := range w.ledger {
		sum += e.Amount
	}
	return sum
}

func (w *world) member(groupID, userID string) *models.GroupMember {
	for _, m := range w.members {
		if m.GroupID == groupID && m.UserID == userID && m.Status != models.MemberLeft {
			return m
		}
	}
	return nil
}

func (w *world) txsOfType(txType string) []models.Transaction {
	var out []models.Transaction
	for _, t := range w.txs {
		if t.Type == txType {
			out = append(out, *t)
		}
	}
	return out
}

func uniqueErr() error {
	return &pq.Error{Code: "23505"}
}

type memUsers struct{ w *world }

func (s memUsers) Create(_ context.Context, _ store.Execer, in store.UserInput) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, u := range s.w.users {
		if u.Phone == in.Phone {
			return uniqueErr()
		}
	}
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	s.w.users[in.ID] = &models.User{
		ID: in.ID, Phone: in.Phone, Email: in.Email, FullName: in.FullName, PasswordHash: in.PasswordHash,
		Role: role, KYCStatus: models.KYCPending, PhoneVerified: in.PhoneVerified, CreatedAt: s.w.tick(),
	}
	return nil
}

func (s memUsers) find(match func(*models.User) bool) (models.User, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, u := range s.w.users {
		if match(u) {
			return *u, nil
		}
	}
	return models.User{}, sql.ErrNoRows
}

func (s memUsers) GetByID(_ context.Context, id string) (models.User, error) {
	return s.find(func(u *models.User) bool { return u.ID == id })
}

func (s memUsers) GetByPhone(_ context.Context, phone string) (models.User, error) {
	return s.find(func(u *models.User) bool { return u.Phone == phone })
}

func (s memUsers) GetByEmail(_ context.Context, email string) (models.User, error) {
	return s.find(func(u *models.User) bool { return u.Email != nil && strings.EqualFold(*u.Email, email) })
}

func (s memUsers) GetByStripeCustomer(_ context.Context, _ store.Getter, customerID string) (models.User, error) {
	return s.find(func(u *models.User) bool { return u.StripeCustomerID != nil && *u.StripeCustomerID == customerID })
}

func (s memUsers) GetForUpdate(ctx context.Context, _ store.Getter, id string) (models.User, error) {
	return s.GetByID(ctx, id)
}

func (s memUsers) ApplyWallet(_ context.Context, _ store.Getter, id string, d store.WalletDelta) (int64, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	u, ok := s.w.users[id]
	if !ok || u.WalletBalance+d.Wallet < 0 {
		return 0, sql.ErrNoRows
	}
	u.WalletBalance += d.Wallet
	u.TotalSaved += d.Saved
	u.TotalEarned += d.Earned
	u.TotalWithdrawn += d.Withdrawn
	return u.WalletBalance, nil
}

func (s memUsers) MarkPhoneVerified(_ context.Context, _ store.Execer, id string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.users[id].PhoneVerified = true
	return nil
}

func (s memUsers) UpdateProfile(_ context.Context, id, fullName string, email *string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.users[id].FullName = fullName
	s.w.users[id].Email = email
	return nil
}

func (s memUsers) SetKYCStatus(_ context.Context, _ store.Execer, id, status string) (int64, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	u, ok := s.w.users[id]
	if !ok {
		return 0, nil
	}
	u.KYCStatus = status
	return 1, nil
}

func (s memUsers) SetRole(_ context.Context, _ store.Execer, id, role string) (int64, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	u, ok := s.w.users[id]
	if !ok {
		return 0, nil
	}
	u.Role = role
	return 1, nil
}

func (s memUsers) SetVIP(_ context.Context, _ store.Execer, id string, active bool, expiresAt *time.Time) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.users[id].IsVIP = active
	s.w.users[id].VIPExpiresAt = expiresAt
	return nil
}

func (s memUsers) SetStripeCustomer(_ context.Context, _ store.Execer, id, customerID string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if u, ok := s.w.users[id]; ok && u.StripeCustomerID == nil {
		u.StripeCustomerID = &customerID
	}
	return nil
}

func (s memUsers) ExpireVIP(_ context.Context, now time.Time) (int64, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var n int64
	for _, u := range s.w.users {
		if u.IsVIP && u.VIPExpiresAt != nil && !u.VIPExpiresAt.After(now) {
			u.IsVIP = false
			n++
		}
	}
	return n, nil
}

func (s memUsers) List(_ context.Context, search string, limit, offset int) ([]models.User, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []models.User
	for _, u := range s.w.users {
		if search == "" || strings.Contains(u.FullName, search) || strings.Contains(u.Phone, search) {
			out = append(out, *u)
		}
	}
	return out, nil
}

type memGroups struct{ w *world }

func (s memGroups) Create(_ context.Context, _ store.Execer, in store.GroupInput) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.groups[in.ID] = &models.Group{
		ID: in.ID, Name: in.Name, Description: in.Description, Category: in.Category, Type: in.Type,
		ContributionAmount: in.ContributionAmount, ContributionFrequency: in.ContributionFrequency,
		MaxMembers: in.MaxMembers, CurrentMembers: 1, Status: models.GroupDraft, CurrentCycle: 1,
		RequiresApproval: in.RequiresApproval, CreatorID: in.CreatorID, CreatedAt: s.w.tick(),
	}
	return nil
}

func (s memGroups) GetByID(_ context.Context, id string) (models.Group, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	g, ok := s.w.groups[id]
	if !ok {
		return models.Group{}, sql.ErrNoRows
	}
	return *g, nil
}

func (s memGroups) GetForUpdate(ctx context.Context, _ store.Getter, id string) (models.Group, error) {
	return s.GetByID(ctx, id)
}

func (s memGroups) Update(_ context.Context, _ store.Execer, id string, u store.GroupUpdate) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	g := s.w.groups[id]
	g.Name, g.Description, g.MaxMembers = u.Name, u.Description, u.MaxMembers
	g.ContributionAmount, g.ContributionFrequency, g.Type, g.Status = u.ContributionAmount, u.ContributionFrequency, u.Type, u.Status
	return nil
}

func (s memGroups) AdjustMembers(_ context.Context, _ store.Execer, id string, delta int) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.groups[id].CurrentMembers += delta
	return nil
}

func (s memGroups) AddToPool(_ context.Context, _ store.Execer, id string, amount int64) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.groups[id].TotalPool += amount
	return nil
}

func (s memGroups) CloseCycle(_ context.Context, _ store.Execer, id, status string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	g := s.w.groups[id]
	g.TotalPool = 0
	g.CurrentCycle++
	g.Status = status
	return nil
}

func (s memGroups) Delete(_ context.Context, _ store.Execer, id string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	delete(s.w.groups, id)
	return nil
}

func (s memGroups) CountOpenByCreator(_ context.Context, _ store.Getter, userID string) (int, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	n := 0
	for _, g := range s.w.groups {
		if g.CreatorID == userID && (g.Status == models.GroupDraft || g.Status == models.GroupActive || g.Status == models.GroupPaused) {
			n++
		}
	}
	return n, nil
}

func (s memGroups) ListForUser(_ context.Context, userID string, _, _ int) ([]models.Group, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []models.Group
	for _, g := range s.w.groups {
		for _, m := range s.w.members {
			if m.GroupID == g.ID && m.UserID == userID && m.Status != models.MemberLeft {
				out = append(out, *g)
				break
			}
		}
	}
	return out, nil
}

func (s memGroups) ListDiscoverable(_ context.Context, _ string, _, _ int) ([]models.Group, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []models.Group
	for _, g := range s.w.groups {
		if (g.Status == models.GroupDraft || g.Status == models.GroupActive) && g.CurrentMembers < g.MaxMembers {
			out = append(out, *g)
		}
	}
	return out, nil
}

type memMembers struct{ w *world }

func (s memMembers) Create(_ context.Context, _ store.Execer, in store.MemberInput) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if s.w.member(in.GroupID, in.UserID) != nil {
		return uniqueErr()
	}
	s.w.members[in.ID] = &models.GroupMember{
		ID: in.ID, GroupID: in.GroupID, UserID: in.UserID, Role: in.Role, Status: in.Status,
		PayoutPosition: in.PayoutPosition, JoinedAt: s.w.tick(),
	}
	return nil
}

func (s memMembers) Get(_ context.Context, groupID, userID string) (models.GroupMember, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	m := s.w.member(groupID, userID)
	if m == nil {
		return models.GroupMember{}, sql.ErrNoRows
	}
	return *m, nil
}

func (s memMembers) GetForUpdate(ctx context.Context, _ store.Getter, groupID, userID string) (models.GroupMember, error) {
	return s.Get(ctx, groupID, userID)
}

func (s memMembers) List(_ context.Context, groupID string) ([]models.GroupMember, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []models.GroupMember
	for _, m := range s.w.members {
		if m.GroupID == groupID && m.Status != models.MemberLeft {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s memMembers) LockActive(_ context.Context, _ store.Selecter, groupID string) ([]models.GroupMember, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []models.GroupMember
	for _, m := range s.w.members {
		if m.GroupID == groupID && m.Status == models.MemberActive {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memMembers) CountActive(ctx context.Context, _ store.Getter, groupID string) (int, error) {
	active, _ := s.LockActive(ctx, nil, groupID)
	return len(active), nil
}

func (s memMembers) NextPosition(ctx context.Context, _ store.Getter, groupID string) (int, error) {
	active, _ := s.LockActive(ctx, nil, groupID)
	next := 0
	for _, m := range active {
		if m.PayoutPosition != nil && *m.PayoutPosition > next {
			next = *m.PayoutPosition
		}
	}
	return next + 1, nil
}

func (s memMembers) update(id string, fn func(*models.GroupMember)) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	fn(s.w.members[id])
	return nil
}

func (s memMembers) Contribute(_ context.Context, _ store.Execer, id string, amount int64) error {
	return s.update(id, func(m *models.GroupMember) {
		m.CurrentBalance += amount
		m.TotalContributed += amount
	})
}

func (s memMembers) ResetBalances(_ context.Context, _ store.Execer, groupID string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, m := range s.w.members {
		if m.GroupID == groupID {
			m.CurrentBalance = 0
		}
	}
	return nil
}

func (s memMembers) ResetRotation(_ context.Context, _ store.Execer, groupID string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, m := range s.w.members {
		if m.GroupID == groupID && m.Status == models.MemberActive {
			m.HasReceivedPayout = false
			m.PayoutCycle = nil
		}
	}
	return nil
}

func (s memMembers) MarkPaid(_ context.Context, _ store.Execer, id string, cycle int) error {
	return s.update(id, func(m *models.GroupMember) {
		m.HasReceivedPayout = true
		m.PayoutCycle = &cycle
	})
}

func (s memMembers) SetStatus(_ context.Context, _ store.Execer, id, status string) error {
	return s.update(id, func(m *models.GroupMember) {
		m.Status = status
		if status == models.MemberLeft {
			m.PayoutPosition = nil
		}
	})
}

func (s memMembers) SetRole(_ context.Context, _ store.Execer, id, role string) error {
	return s.update(id, func(m *models.GroupMember) { m.Role = role })
}

func (s memMembers) SetPosition(_ context.Context, _ store.Execer, id string, position int) error {
	return s.update(id, func(m *models.GroupMember) { m.PayoutPosition = &position })
}

func (s memMembers) Renumber(ctx context.Context, _ store.Execer, groupID string) error {
	active, _ := s.LockActive(ctx, nil, groupID)
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i].PayoutPosition, active[j].PayoutPosition
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return *a < *b
	})
	for i, m := range active {
		pos := i + 1
		_ = s.SetPosition(ctx, nil, m.ID, pos)
	}
	return nil
}

type memTxs struct{ w *world }

func (s memTxs) Create(_ context.Context, _ store.Execer, in store.TransactionInput) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if in.Amount <= 0 {
		return &pq.Error{Code: "23514"}
	}
	t := &models.Transaction{
		ID: in.ID, UserID: in.UserID, GroupID: in.GroupID, Cycle: in.Cycle, Type: in.Type, Amount: in.Amount,
		Currency: in.Currency, Status: in.Status, PaymentMethod: in.PaymentMethod, PaymentReference: in.PaymentReference,
		Reference: in.Reference, Description: in.Description, Metadata: in.Metadata, CreatedAt: s.w.tick(),
	}
	s.w.txs[in.ID] = t
	return nil
}

func (s memTxs) SetPaymentReference(_ context.Context, _ store.Execer, id, ref string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.txs[id].PaymentReference = &ref
	return nil
}

func (s memTxs) UpdateStatus(_ context.Context, _ store.Execer, id, status string, reason *string) (int64, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	t, ok := s.w.txs[id]
	if !ok || t.Status != models.TxPending {
		return 0, nil
	}
	t.Status = status
	t.FailureReason = reason
	return 1, nil
}

func (s memTxs) GetForUpdate(_ context.Context, _ store.Getter, id string) (models.Transaction, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	t, ok := s.w.txs[id]
	if !ok {
		return models.Transaction{}, sql.ErrNoRows
	}
	return *t, nil
}

func (s memTxs) GetForUpdateByPaymentReference(_ context.Context, _ store.Getter, ref string) (models.Transaction, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, t := range s.w.txs {
		if t.PaymentReference != nil && *t.PaymentReference == ref {
			return *t, nil
		}
	}
	return models.Transaction{}, sql.ErrNoRows
}

func (s memTxs) GetForUser(ctx context.Context, userID, id string) (models.Transaction, error) {
	t, err := s.GetForUpdate(ctx, nil, id)
	if err == nil && t.UserID != userID {
		return models.Transaction{}, sql.ErrNoRows
	}
	return t, err
}

func (s memTxs) SumPendingContributions(_ context.Context, _ store.Getter, groupID, userID string, cycle int) (int64, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var sum int64
	for _, t := range s.w.txs {
		if t.Type == models.TxGroupContribution && t.Status == models.TxPending && t.UserID == userID &&
			t.GroupID != nil && *t.GroupID == groupID && t.Cycle != nil && *t.Cycle == cycle {
			sum += t.Amount
		}
	}
	return sum, nil
}

func (s memTxs) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]models.Transaction, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []models.Transaction
	for _, t := range s.w.txs {
		if t.Status == models.TxPending && t.PaymentMethod == models.MethodCard && t.CreatedAt.Before(cutoff) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memTxs) List(_ context.Context, f store.TransactionFilter, _, _ int) ([]models.Transaction, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []models.Transaction
	for _, t := range s.w.txs {
		if f.UserID != "" && t.UserID != f.UserID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

type memLedger struct{ w *world }

func (s memLedger) InsertEntries(_ context.Context, _ store.Execer, entries []store.LedgerEntryInput) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	if sum != 0 {
		return store.ErrUnbalancedEntries
	}
	s.w.ledger = append(s.w.ledger, entries...)
	return nil
}

func (s memLedger) WalletMismatches(context.Context) ([]store.Mismatch, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []store.Mismatch
	for _, u := range s.w.users {
		if l := s.w.ledgerSum(store.AccountWallet, u.ID); l != u.WalletBalance {
			out = append(out, store.Mismatch{ID: u.ID, Recorded: u.WalletBalance, Ledger: l})
		}
	}
	return out, nil
}

func (s memLedger) PoolMismatches(context.Context) ([]store.Mismatch, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []store.Mismatch
	for _, g := range s.w.groups {
		if l := s.w.ledgerSum(store.AccountGroupPool, g.ID); l != g.TotalPool {
			out = append(out, store.Mismatch{ID: g.ID, Recorded: g.TotalPool, Ledger: l})
		}
	}
	return out, nil
}

func (s memLedger) ContributionMismatches(context.Context) ([]store.Mismatch, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []store.Mismatch
	for _, g := range s.w.groups {
		var sum int64
		for _, t := range s.w.txs {
			if t.Type == models.TxGroupContribution && t.Status == models.TxCompleted &&
				t.GroupID != nil && *t.GroupID == g.ID && t.Cycle != nil && *t.Cycle == g.CurrentCycle {
				sum += t.Amount
			}
		}
		if sum != g.TotalPool {
			out = append(out, store.Mismatch{ID: g.ID, Recorded: g.TotalPool, Ledger: sum})
		}
	}
	return out, nil
}

type memDraws struct{ w *world }

func (s memDraws) Create(_ context.Context, _ store.Execer, in store.DrawInput) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, d := range s.w.draws {
		if d.GroupID == in.GroupID && d.Cycle == in.Cycle {
			return uniqueErr()
		}
	}
	s.w.draws = append(s.w.draws, in)
	return nil
}

func (s memDraws) ListByGroup(_ context.Context, groupID string) ([]models.Draw, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []models.Draw
	for _, d := range s.w.draws {
		if d.GroupID == groupID {
			out = append(out, models.Draw{ID: d.ID, GroupID: d.GroupID, Cycle: d.Cycle, WinnerUserID: d.WinnerUserID})
		}
	}
	return out, nil
}

type memConfig struct{ w *world }

func (s memConfig) Int(_ context.Context, _ store.Getter, key string, fallback int64) (int64, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if v, ok := s.w.config[key]; ok {
		return v, nil
	}
	return fallback, nil
}

type memAudit struct{ w *world }

func (s memAudit) Log(_ context.Context, _ store.Execer, _, action, _, _, _ string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.audits = append(s.w.audits, action)
	return nil
}

type memWebhooks struct{ w *world }

func (s memWebhooks) Record(_ context.Context, _ store.Execer, eventID, _ string) (bool, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if s.w.webhooks[eventID] {
		return false, nil
	}
	s.w.webhooks[eventID] = true
	return true, nil
}

type memWithdrawals struct{ w *world }

func (s memWithdrawals) Create(_ context.Context, _ store.Execer, in store.WithdrawalInput) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	account := in.PayoutAccountID
	s.w.withdrawals[in.ID] = &models.Withdrawal{
		ID: in.ID, UserID: in.UserID, PayoutAccountID: &account, TransactionID: in.TransactionID,
		Amount: in.Amount, Status: models.WithdrawalPending, CreatedAt: s.w.tick(),
	}
	return nil
}

func (s memWithdrawals) GetForUpdate(_ context.Context, _ store.Getter, id string) (models.Withdrawal, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	w, ok := s.w.withdrawals[id]
	if !ok {
		return models.Withdrawal{}, sql.ErrNoRows
	}
	return *w, nil
}

func (s memWithdrawals) Transition(_ context.Context, _ store.Execer, id, from, to string, reason, processedBy *string) (int64, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	w, ok := s.w.withdrawals[id]
	if !ok || w.Status != from {
		return 0, nil
	}
	w.Status, w.FailureReason, w.ProcessedBy = to, reason, processedBy
	return 1, nil
}

func (s memWithdrawals) List(_ context.Context, userID, status string, _, _ int) ([]models.Withdrawal, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []models.Withdrawal
	for _, w := range s.w.withdrawals {
		if (userID == "" || w.UserID == userID) && (status == "" || w.Status == status) {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (s memWithdrawals) HasOpenForAccount(_ context.Context, accountID string) (bool, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, w := range s.w.withdrawals {
		if w.PayoutAccountID != nil && *w.PayoutAccountID == accountID &&
			(w.Status == models.WithdrawalPending || w.Status == models.WithdrawalProcessing) {
			return true, nil
		}
	}
	return false, nil
}

type memAccounts struct{ w *world }

func (s memAccounts) Create(_ context.Context, in store.PayoutAccountInput) (models.PayoutAccount, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	first := true
	for _, a := range s.w.accounts {
		if a.UserID == in.UserID {
			first = false
		}
	}
	a := &models.PayoutAccount{ID: in.ID, UserID: in.UserID, HolderName: in.HolderName, IBAN: in.IBAN, BankName: in.BankName, IsDefault: first}
	s.w.accounts[in.ID] = a
	return *a, nil
}

func (s memAccounts) Get(_ context.Context, userID, id string) (models.PayoutAccount, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	a, ok := s.w.accounts[id]
	if !ok || a.UserID != userID {
		return models.PayoutAccount{}, sql.ErrNoRows
	}
	return *a, nil
}

func (s memAccounts) List(_ context.Context, userID string) ([]models.PayoutAccount, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []models.PayoutAccount
	for _, a := range s.w.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s memAccounts) Delete(_ context.Context, userID, id string) (int64, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	a, ok := s.w.accounts[id]
	if !ok || a.UserID != userID {
		return 0, nil
	}
	delete(s.w.accounts, id)
	return 1, nil
}

type memRoles struct{ w *world }

func (s memRoles) GetRole(_ context.Context, userID string) (string, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if u, ok := s.w.users[userID]; ok {
		return u.Role, nil
	}
	return "", nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, payload)
}

type stubLocker struct {
	err      error
	released int
}

func (l *stubLocker) Acquire(context.Context, string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	return func() { l.released++ }, nil
}
