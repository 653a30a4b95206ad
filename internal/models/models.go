package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	KYCPending  = "pending"
	KYCApproved = "approved"
	KYCRejected = "rejected"
)

type User struct {
	ID               string     `db:"id" json:"id"`
	Phone            string     `db:"phone" json:"phone"`
	Email            *string    `db:"email" json:"email,omitempty"`
	FullName         string     `db:"full_name" json:"full_name"`
	PasswordHash     string     `db:"password_hash" json:"-"`
	Role             string     `db:"role" json:"role"`
	KYCStatus        string     `db:"kyc_status" json:"kyc_status"`
	PhoneVerified    bool       `db:"phone_verified" json:"phone_verified"`
	IsVIP            bool       `db:"is_vip" json:"is_vip"`
	VIPExpiresAt     *time.Time `db:"vip_expires_at" json:"vip_expires_at,omitempty"`
	StripeCustomerID *string    `db:"stripe_customer_id" json:"-"`
	WalletBalance    int64      `db:"wallet_balance" json:"wallet_balance"`
	TotalSaved       int64      `db:"total_saved" json:"total_saved"`
	TotalEarned      int64      `db:"total_earned" json:"total_earned"`
	TotalWithdrawn   int64      `db:"total_withdrawn" json:"total_withdrawn"`
	TrustScore       int        `db:"trust_score" json:"trust_score"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// VIPActive reports whether the subscription covers now.
func (u User) VIPActive(now time.Time) bool {
	if !u.IsVIP {
		return false
	}
	return u.VIPExpiresAt == nil || u.VIPExpiresAt.After(now)
}

const (
	DrawLottery = "lottery"
	DrawOrder   = "order"

	GroupDraft     = "draft"
	GroupActive    = "active"
	GroupPaused    = "paused"
	GroupCompleted = "completed"
	GroupCancelled = "cancelled"
)

type Group struct {
	ID                    string    `db:"id" json:"id"`
	Name                  string    `db:"name" json:"name"`
	Description           string    `db:"description" json:"description"`
	Category              string    `db:"category" json:"category"`
	Type                  string    `db:"type" json:"type"`
	ContributionAmount    int64     `db:"contribution_amount" json:"contribution_amount"`
	ContributionFrequency string    `db:"contribution_frequency" json:"contribution_frequency"`
	MaxMembers            int       `db:"max_members" json:"max_members"`
	CurrentMembers        int       `db:"current_members" json:"current_members"`
	TotalPool             int64     `db:"total_pool" json:"total_pool"`
	Status                string    `db:"status" json:"status"`
	CurrentCycle          int       `db:"current_cycle" json:"current_cycle"`
	RequiresApproval      bool      `db:"requires_approval" json:"requires_approval"`
	CreatorID             string    `db:"creator_id" json:"creator_id"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

var groupTransitions = map[string][]string{
	GroupDraft:  {GroupActive, GroupCancelled},
	GroupActive: {GroupPaused, GroupCompleted, GroupCancelled},
	GroupPaused: {GroupActive, GroupCancelled},
}

// CanTransitionGroup enforces the one-way lifecycle; only active and paused
// may flip back and forth.
func CanTransitionGroup(from, to string) bool {
	for _, next := range groupTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

const (
	MemberRoleCreator = "creator"
	MemberRoleAdmin   = "admin"
	MemberRoleMember  = "member"

	MemberPending = "pending"
	MemberActive  = "active"
	MemberLeft    = "left"
)

type GroupMember struct {
	ID                string     `db:"id" json:"id"`
	GroupID           string     `db:"group_id" json:"group_id"`
	UserID            string     `db:"user_id" json:"user_id"`
	FullName          string     `db:"full_name" json:"full_name"`
	Role              string     `db:"role" json:"role"`
	Status            string     `db:"status" json:"status"`
	TotalContributed  int64      `db:"total_contributed" json:"total_contributed"`
	CurrentBalance    int64      `db:"current_balance" json:"current_balance"`
	PayoutPosition    *int       `db:"payout_position" json:"payout_position,omitempty"`
	HasReceivedPayout bool       `db:"has_received_payout" json:"has_received_payout"`
	PayoutCycle       *int       `db:"payout_cycle" json:"payout_cycle,omitempty"`
	JoinedAt          time.Time  `db:"joined_at" json:"joined_at"`
	LeftAt            *time.Time `db:"left_at" json:"left_at,omitempty"`
}

// CanManage is true for the roles allowed to administer a group.
func (m GroupMember) CanManage() bool {
	return m.Status == MemberActive && (m.Role == MemberRoleCreator || m.Role == MemberRoleAdmin)
}

const (
	TxDeposit           = "deposit"
	TxWithdrawal        = "withdrawal"
	TxGroupContribution = "group_contribution"
	TxGroupPayout       = "group_payout"
	TxFee               = "fee"

	TxPending   = "pending"
	TxCompleted = "completed"
	TxFailed    = "failed"

	MethodWallet       = "wallet"
	MethodCard         = "card"
	MethodBankTransfer = "bank_transfer"
	MethodSystem       = "system"
)

type Transaction struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"user_id"`
	GroupID          *string    `db:"group_id" json:"group_id,omitempty"`
	Cycle            *int       `db:"cycle" json:"cycle,omitempty"`
	Type             string     `db:"type" json:"type"`
	Amount           int64      `db:"amount" json:"amount"`
	Currency         string     `db:"currency" json:"currency"`
	Status           string     `db:"status" json:"status"`
	PaymentMethod    string     `db:"payment_method" json:"payment_method"`
	PaymentReference *string    `db:"payment_reference" json:"payment_reference,omitempty"`
	Reference        string     `db:"reference" json:"reference"`
	Description      string     `db:"description" json:"description"`
	FailureReason    *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	Metadata         string     `db:"metadata" json:"metadata"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

type Draw struct {
	ID                  string    `db:"id" json:"id"`
	GroupID             string    `db:"group_id" json:"group_id"`
	Cycle               int       `db:"cycle" json:"cycle"`
	Mode                string    `db:"mode" json:"mode"`
	WinnerUserID        string    `db:"winner_user_id" json:"winner_user_id"`
	PoolAmount          int64     `db:"pool_amount" json:"pool_amount"`
	FeeAmount           int64     `db:"fee_amount" json:"fee_amount"`
	PayoutTransactionID string    `db:"payout_transaction_id" json:"payout_transaction_id"`
	Seed                *string   `db:"seed" json:"seed,omitempty"`
	Candidates          string    `db:"candidates" json:"candidates"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

type Notification struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Type      string     `db:"type" json:"type"`
	Title     string     `db:"title" json:"title"`
	Message   string     `db:"message" json:"message"`
	Data      string     `db:"data" json:"data"`
	IsRead    bool       `db:"is_read" json:"is_read"`
	ReadAt    *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

const (
	OTPRegistration = "registration"
	OTPLogin        = "login"
	OTPPhoneChange  = "phone_change"

	OTPPending  = "pending"
	OTPUsed     = "used"
	OTPVerified = "verified"
	OTPFailed   = "failed"
)

type OTPCode struct {
	ID         string     `db:"id"`
	Phone      string     `db:"phone"`
	CodeHash   string     `db:"code_hash"`
	Type       string     `db:"type"`
	Status     string     `db:"status"`
	Attempts   int        `db:"attempts"`
	ExpiresAt  time.Time  `db:"expires_at"`
	VerifiedAt *time.Time `db:"verified_at"`
	CreatedAt  time.Time  `db:"created_at"`
}

const (
	WithdrawalPending    = "pending"
	WithdrawalProcessing = "processing"
	WithdrawalCompleted  = "completed"
	WithdrawalFailed     = "failed"
	WithdrawalCancelled  = "cancelled"
)

type Withdrawal struct {
	ID              string     `db:"id" json:"id"`
	UserID          string     `db:"user_id" json:"user_id"`
	PayoutAccountID *string    `db:"payout_account_id" json:"payout_account_id,omitempty"`
	TransactionID   string     `db:"transaction_id" json:"transaction_id"`
	Amount          int64      `db:"amount" json:"amount"`
	Status          string     `db:"status" json:"status"`
	FailureReason   *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	ProcessedBy     *string    `db:"processed_by" json:"processed_by,omitempty"`
	ProcessedAt     *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

var withdrawalTransitions = map[string][]string{
	WithdrawalPending:    {WithdrawalProcessing, WithdrawalCompleted, WithdrawalFailed, WithdrawalCancelled},
	WithdrawalProcessing: {WithdrawalCompleted, WithdrawalFailed},
}

func CanTransitionWithdrawal(from, to string) bool {
	for _, next := range withdrawalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type PayoutAccount struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	HolderName string    `db:"holder_name" json:"holder_name"`
	IBAN       string    `db:"iban" json:"iban"`
	BankName   string    `db:"bank_name" json:"bank_name"`
	IsDefault  bool      `db:"is_default" json:"is_default"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type SystemConfig struct {
	Key         string    `db:"key" json:"key"`
	Value       string    `db:"value" json:"value"`
	Description string    `db:"description" json:"description"`
	UpdatedBy   *string   `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	Data       string    `db:"data" json:"data"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
