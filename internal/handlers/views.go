package handlers

import (
	"time"

	"kixikila/internal/models"
	"kixikila/internal/money"
	"kixikila/internal/services"
)

// Amounts leave the API as decimal strings; the service layer works in
// minor units.

func fmtMoney(v int64) string {
	return money.FormatMinor(v)
}

type userView struct {
	ID             string     `json:"id"`
	Phone          string     `json:"phone"`
	Email          *string    `json:"email,omitempty"`
	FullName       string     `json:"full_name"`
	Role           string     `json:"role"`
	KYCStatus      string     `json:"kyc_status"`
	PhoneVerified  bool       `json:"phone_verified"`
	IsVIP          bool       `json:"is_vip"`
	VIPExpiresAt   *time.Time `json:"vip_expires_at,omitempty"`
	WalletBalance  string     `json:"wallet_balance"`
	TotalSaved     string     `json:"total_saved"`
	TotalEarned    string     `json:"total_earned"`
	TotalWithdrawn string     `json:"total_withdrawn"`
	TrustScore     int        `json:"trust_score"`
	CreatedAt      time.Time  `json:"created_at"`
}

func newUserView(u models.User) userView {
	return userView{
		ID:             u.ID,
		Phone:          u.Phone,
		Email:          u.Email,
		FullName:       u.FullName,
		Role:           u.Role,
		KYCStatus:      u.KYCStatus,
		PhoneVerified:  u.PhoneVerified,
		IsVIP:          u.IsVIP,
		VIPExpiresAt:   u.VIPExpiresAt,
		WalletBalance:  fmtMoney(u.WalletBalance),
		TotalSaved:     fmtMoney(u.TotalSaved),
		TotalEarned:    fmtMoney(u.TotalEarned),
		TotalWithdrawn: fmtMoney(u.TotalWithdrawn),
		TrustScore:     u.TrustScore,
		CreatedAt:      u.CreatedAt,
	}
}

type groupView struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	Description           string    `json:"description"`
	Category              string    `json:"category"`
	Type                  string    `json:"type"`
	ContributionAmount    string    `json:"contribution_amount"`
	ContributionFrequency string    `json:"contribution_frequency"`
	MaxMembers            int       `json:"max_members"`
	CurrentMembers        int       `json:"current_members"`
	TotalPool             string    `json:"total_pool"`
	Status                string    `json:"status"`
	CurrentCycle          int       `json:"current_cycle"`
	RequiresApproval      bool      `json:"requires_approval"`
	CreatorID             string    `json:"creator_id"`
	CreatedAt             time.Time `json:"created_at"`
}

func newGroupView(g models.Group) groupView {
	return groupView{
		ID:                    g.ID,
		Name:                  g.Name,
		Description:           g.Description,
		Category:              g.Category,
		Type:                  g.Type,
		ContributionAmount:    fmtMoney(g.ContributionAmount),
		ContributionFrequency: g.ContributionFrequency,
		MaxMembers:            g.MaxMembers,
		CurrentMembers:        g.CurrentMembers,
		TotalPool:             fmtMoney(g.TotalPool),
		Status:                g.Status,
		CurrentCycle:          g.CurrentCycle,
		RequiresApproval:      g.RequiresApproval,
		CreatorID:             g.CreatorID,
		CreatedAt:             g.CreatedAt,
	}
}

func newGroupViews(groups []models.Group) []groupView {
	out := make([]groupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, newGroupView(g))
	}
	return out
}

type memberView struct {
	UserID            string    `json:"user_id"`
	FullName          string    `json:"full_name"`
	Role              string    `json:"role"`
	Status            string    `json:"status"`
	TotalContributed  string    `json:"total_contributed"`
	CurrentBalance    string    `json:"current_balance"`
	PayoutPosition    *int      `json:"payout_position,omitempty"`
	HasReceivedPayout bool      `json:"has_received_payout"`
	PayoutCycle       *int      `json:"payout_cycle,omitempty"`
	JoinedAt          time.Time `json:"joined_at"`
}

func newMemberView(m models.GroupMember) memberView {
	return memberView{
		UserID:            m.UserID,
		FullName:          m.FullName,
		Role:              m.Role,
		Status:            m.Status,
		TotalContributed:  fmtMoney(m.TotalContributed),
		CurrentBalance:    fmtMoney(m.CurrentBalance),
		PayoutPosition:    m.PayoutPosition,
		HasReceivedPayout: m.HasReceivedPayout,
		PayoutCycle:       m.PayoutCycle,
		JoinedAt:          m.JoinedAt,
	}
}

func newMemberViews(members []models.GroupMember) []memberView {
	out := make([]memberView, 0, len(members))
	for _, m := range members {
		out = append(out, newMemberView(m))
	}
	return out
}

type progressView struct {
	Contributed string `json:"contributed"`
	Required    string `json:"required"`
	Percent     int    `json:"percent"`
	CanDraw     bool   `json:"can_draw"`
}

type groupDetailView struct {
	Group    groupView    `json:"group"`
	Members  []memberView `json:"members"`
	Progress progressView `json:"progress"`
}

func newGroupDetailView(d services.GroupDetail) groupDetailView {
	return groupDetailView{
		Group:   newGroupView(d.Group),
		Members: newMemberViews(d.Members),
		Progress: progressView{
			Contributed: fmtMoney(d.Progress.Contributed),
			Required:    fmtMoney(d.Progress.Required),
			Percent:     d.Progress.Percent,
			CanDraw:     d.Progress.CanDraw,
		},
	}
}

type transactionView struct {
	ID               string     `json:"id"`
	GroupID          *string    `json:"group_id,omitempty"`
	Cycle            *int       `json:"cycle,omitempty"`
	Type             string     `json:"type"`
	Amount           string     `json:"amount"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	PaymentMethod    string     `json:"payment_method"`
	PaymentReference *string    `json:"payment_reference,omitempty"`
	Reference        string     `json:"reference"`
	Description      string     `json:"description"`
	FailureReason    *string    `json:"failure_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	UserID           string     `json:"user_id"`
}

func newTransactionView(t models.Transaction) transactionView {
	return transactionView{
		ID:               t.ID,
		UserID:           t.UserID,
		GroupID:          t.GroupID,
		Cycle:            t.Cycle,
		Type:             t.Type,
		Amount:           fmtMoney(t.Amount),
		Currency:         t.Currency,
		Status:           t.Status,
		PaymentMethod:    t.PaymentMethod,
		PaymentReference: t.PaymentReference,
		Reference:        t.Reference,
		Description:      t.Description,
		FailureReason:    t.FailureReason,
		CreatedAt:        t.CreatedAt,
		CompletedAt:      t.CompletedAt,
	}
}

func newTransactionViews(txs []models.Transaction) []transactionView {
	out := make([]transactionView, 0, len(txs))
	for _, t := range txs {
		out = append(out, newTransactionView(t))
	}
	return out
}

type withdrawalView struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	PayoutAccountID *string    `json:"payout_account_id,omitempty"`
	TransactionID   string     `json:"transaction_id"`
	Amount          string     `json:"amount"`
	Status          string     `json:"status"`
	FailureReason   *string    `json:"failure_reason,omitempty"`
	ProcessedBy     *string    `json:"processed_by,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func newWithdrawalView(w models.Withdrawal) withdrawalView {
	return withdrawalView{
		ID:              w.ID,
		UserID:          w.UserID,
		PayoutAccountID: w.PayoutAccountID,
		TransactionID:   w.TransactionID,
		Amount:          fmtMoney(w.Amount),
		Status:          w.Status,
		FailureReason:   w.FailureReason,
		ProcessedBy:     w.ProcessedBy,
		ProcessedAt:     w.ProcessedAt,
		CreatedAt:       w.CreatedAt,
	}
}

func newWithdrawalViews(ws []models.Withdrawal) []withdrawalView {
	out := make([]withdrawalView, 0, len(ws))
	for _, w := range ws {
		out = append(out, newWithdrawalView(w))
	}
	return out
}

type initiationView struct {
	TransactionID string  `json:"transaction_id"`
	Reference     string  `json:"reference"`
	Status        string  `json:"status"`
	Amount        string  `json:"amount"`
	ClientSecret  *string `json:"client_secret,omitempty"`
}

func newInitiationView(r services.InitiationResult) initiationView {
	return initiationView{
		TransactionID: r.TransactionID,
		Reference:     r.Reference,
		Status:        r.Status,
		Amount:        fmtMoney(r.Amount),
		ClientSecret:  r.ClientSecret,
	}
}

type drawView struct {
	DrawID         string   `json:"draw_id"`
	GroupID        string   `json:"group_id"`
	Cycle          int      `json:"cycle"`
	Mode           string   `json:"mode"`
	WinnerUserID   string   `json:"winner_user_id"`
	WinnerName     string   `json:"winner_name"`
	PoolAmount     string   `json:"pool_amount"`
	FeeAmount      string   `json:"fee_amount"`
	PayoutAmount   string   `json:"payout_amount"`
	TransactionID  string   `json:"transaction_id"`
	Seed           *string  `json:"seed,omitempty"`
	Candidates     []string `json:"candidates"`
	GroupCompleted bool     `json:"group_completed"`
}

func newDrawView(d services.DrawResult) drawView {
	return drawView{
		DrawID:         d.DrawID,
		GroupID:        d.GroupID,
		Cycle:          d.Cycle,
		Mode:           d.Mode,
		WinnerUserID:   d.WinnerUserID,
		WinnerName:     d.WinnerName,
		PoolAmount:     fmtMoney(d.PoolAmount),
		FeeAmount:      fmtMoney(d.FeeAmount),
		PayoutAmount:   fmtMoney(d.PayoutAmount),
		TransactionID:  d.TransactionID,
		Seed:           d.Seed,
		Candidates:     d.Candidates,
		GroupCompleted: d.GroupCompleted,
	}
}

type drawHistoryView struct {
	ID                  string    `json:"id"`
	Cycle               int       `json:"cycle"`
	Mode                string    `json:"mode"`
	WinnerUserID        string    `json:"winner_user_id"`
	PoolAmount          string    `json:"pool_amount"`
	FeeAmount           string    `json:"fee_amount"`
	PayoutTransactionID string    `json:"payout_transaction_id"`
	Seed                *string   `json:"seed,omitempty"`
	Candidates          string    `json:"candidates"`
	CreatedAt           time.Time `json:"created_at"`
}

func newDrawHistoryViews(draws []models.Draw) []drawHistoryView {
	out := make([]drawHistoryView, 0, len(draws))
	for _, d := range draws {
		out = append(out, drawHistoryView{
			ID:                  d.ID,
			Cycle:               d.Cycle,
			Mode:                d.Mode,
			WinnerUserID:        d.WinnerUserID,
			PoolAmount:          fmtMoney(d.PoolAmount),
			FeeAmount:           fmtMoney(d.FeeAmount),
			PayoutTransactionID: d.PayoutTransactionID,
			Seed:                d.Seed,
			Candidates:          d.Candidates,
			CreatedAt:           d.CreatedAt,
		})
	}
	return out
}
