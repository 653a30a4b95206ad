package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kixikila/internal/auth"
	"kixikila/internal/authz"
	"kixikila/internal/config"
	"kixikila/internal/models"
	"kixikila/internal/payments"
	"kixikila/internal/services"
	"kixikila/internal/store"
	"kixikila/internal/validator"

	"github.com/goccy/go-json"
)

const testSecret = "secret"

var errUnexpectedCall = errors.New("unexpected call")

type stubAuth struct {
	registerFn      func(ctx context.Context, req services.RegisterRequest) (services.RegisterResult, error)
	loginFn         func(ctx context.Context, identifier, password string) (services.LoginResult, error)
	verifyOTPFn     func(ctx context.Context, phone, code, otpType string) (services.Session, error)
	resendOTPFn     func(ctx context.Context, phone, otpType string) (time.Time, error)
	profileFn       func(ctx context.Context, userID string) (models.User, error)
	updateProfileFn func(ctx context.Context, userID, fullName string, email *string) (models.User, error)
	createAdminFn   func(ctx context.Context, actorID string, req services.RegisterRequest) (models.User, error)
}

func (s stubAuth) Register(ctx context.Context, req services.RegisterRequest) (services.RegisterResult, error) {
	if s.registerFn == nil {
		return services.RegisterResult{}, errUnexpectedCall
	}
	return s.registerFn(ctx, req)
}

func (s stubAuth) Login(ctx context.Context, identifier, password string) (services.LoginResult, error) {
	if s.loginFn == nil {
		return services.LoginResult{}, errUnexpectedCall
	}
	return s.loginFn(ctx, identifier, password)
}

func (s stubAuth) VerifyOTP(ctx context.Context, phone, code, otpType string) (services.Session, error) {
	if s.verifyOTPFn == nil {
		return services.Session{}, errUnexpectedCall
	}
	return s.verifyOTPFn(ctx, phone, code, otpType)
}

func (s stubAuth) ResendOTP(ctx context.Context, phone, otpType string) (time.Time, error) {
	if s.resendOTPFn == nil {
		return time.Time{}, errUnexpectedCall
	}
	return s.resendOTPFn(ctx, phone, otpType)
}

func (s stubAuth) Profile(ctx context.Context, userID string) (models.User, error) {
	if s.profileFn == nil {
		return models.User{}, errUnexpectedCall
	}
	return s.profileFn(ctx, userID)
}

func (s stubAuth) UpdateProfile(ctx context.Context, userID, fullName string, email *string) (models.User, error) {
	if s.updateProfileFn == nil {
		return models.User{}, errUnexpectedCall
	}
	return s.updateProfileFn(ctx, userID, fullName, email)
}

func (s stubAuth) CreateAdmin(ctx context.Context, actorID string, req services.RegisterRequest) (models.User, error) {
	if s.createAdminFn == nil {
		return models.User{}, errUnexpectedCall
	}
	return s.createAdminFn(ctx, actorID, req)
}

type stubGroups struct {
	createFn  func(ctx context.Context, userID string, req services.CreateGroupRequest) (models.Group, error)
	listFn    func(ctx context.Context, userID, scope string, limit, offset int) ([]models.Group, error)
	getFn     func(ctx context.Context, userID, groupID string) (services.GroupDetail, error)
	joinFn    func(ctx context.Context, userID, groupID string) (models.GroupMember, error)
	reorderFn func(ctx context.Context, actorID, groupID string, positions map[string]int) ([]models.GroupMember, error)
}

func (s stubGroups) Create(ctx context.Context, userID string, req services.CreateGroupRequest) (models.Group, error) {
	if s.createFn == nil {
		return models.Group{}, errUnexpectedCall
	}
	return s.createFn(ctx, userID, req)
}

func (s stubGroups) List(ctx context.Context, userID, scope string, limit, offset int) ([]models.Group, error) {
	if s.listFn == nil {
		return nil, errUnexpectedCall
	}
	return s.listFn(ctx, userID, scope, limit, offset)
}

func (s stubGroups) Get(ctx context.Context, userID, groupID string) (services.GroupDetail, error) {
	if s.getFn == nil {
		return services.GroupDetail{}, errUnexpectedCall
	}
	return s.getFn(ctx, userID, groupID)
}

func (s stubGroups) Members(context.Context, string, string) ([]models.GroupMember, error) {
	return nil, errUnexpectedCall
}

func (s stubGroups) Update(context.Context, string, string, services.UpdateGroupRequest) (models.Group, error) {
	return models.Group{}, errUnexpectedCall
}

func (s stubGroups) Delete(context.Context, string, string) error {
	return errUnexpectedCall
}

func (s stubGroups) Join(ctx context.Context, userID, groupID string) (models.GroupMember, error) {
	if s.joinFn == nil {
		return models.GroupMember{}, errUnexpectedCall
	}
	return s.joinFn(ctx, userID, groupID)
}

func (s stubGroups) Leave(context.Context, string, string) error {
	return errUnexpectedCall
}

func (s stubGroups) UpdateMember(context.Context, string, string, string, services.UpdateMemberRequest) (models.GroupMember, error) {
	return models.GroupMember{}, errUnexpectedCall
}

func (s stubGroups) ReorderPositions(ctx context.Context, actorID, groupID string, positions map[string]int) ([]models.GroupMember, error) {
	if s.reorderFn == nil {
		return nil, errUnexpectedCall
	}
	return s.reorderFn(ctx, actorID, groupID, positions)
}

type stubDraws struct {
	drawFn func(ctx context.Context, actorID, groupID string) (services.DrawResult, error)
}

func (s stubDraws) Draw(ctx context.Context, actorID, groupID string) (services.DrawResult, error) {
	if s.drawFn == nil {
		return services.DrawResult{}, errUnexpectedCall
	}
	return s.drawFn(ctx, actorID, groupID)
}

func (s stubDraws) History(context.Context, string, string) ([]models.Draw, error) {
	return nil, errUnexpectedCall
}

type stubPayments struct {
	contributionFn func(ctx context.Context, userID, groupID string, amount int64, method string) (services.InitiationResult, error)
	depositFn      func(ctx context.Context, userID string, amount int64) (services.InitiationResult, error)
	cancelFn       func(ctx context.Context, userID, transactionID string) (models.Transaction, error)
	handleEventFn  func(ctx context.Context, evt payments.Event) error
}

func (s stubPayments) InitiateContribution(ctx context.Context, userID, groupID string, amount int64, method string) (services.InitiationResult, error) {
	if s.contributionFn == nil {
		return services.InitiationResult{}, errUnexpectedCall
	}
	return s.contributionFn(ctx, userID, groupID, amount, method)
}

func (s stubPayments) InitiateDeposit(ctx context.Context, userID string, amount int64) (services.InitiationResult, error) {
	if s.depositFn == nil {
		return services.InitiationResult{}, errUnexpectedCall
	}
	return s.depositFn(ctx, userID, amount)
}

func (s stubPayments) CancelPayment(ctx context.Context, userID, transactionID string) (models.Transaction, error) {
	if s.cancelFn == nil {
		return models.Transaction{}, errUnexpectedCall
	}
	return s.cancelFn(ctx, userID, transactionID)
}

func (s stubPayments) HandleEvent(ctx context.Context, evt payments.Event) error {
	if s.handleEventFn == nil {
		return errUnexpectedCall
	}
	return s.handleEventFn(ctx, evt)
}

type stubWebhooks struct {
	parseFn func(payload []byte, signature string) (payments.Event, error)
}

func (s stubWebhooks) ParseWebhook(payload []byte, signature string) (payments.Event, error) {
	return s.parseFn(payload, signature)
}

type stubTransactions struct {
	listFn func(ctx context.Context, f store.TransactionFilter, limit, offset int) ([]models.Transaction, error)
	getFn  func(ctx context.Context, userID, transactionID string) (models.Transaction, error)
}

func (s stubTransactions) List(ctx context.Context, f store.TransactionFilter, limit, offset int) ([]models.Transaction, error) {
	if s.listFn == nil {
		return nil, errUnexpectedCall
	}
	return s.listFn(ctx, f, limit, offset)
}

func (s stubTransactions) GetForUser(ctx context.Context, userID, transactionID string) (models.Transaction, error) {
	if s.getFn == nil {
		return models.Transaction{}, errUnexpectedCall
	}
	return s.getFn(ctx, userID, transactionID)
}

type stubWithdrawals struct {
	requestFn      func(ctx context.Context, userID string, amount int64, payoutAccountID string) (models.Withdrawal, error)
	listFn         func(ctx context.Context, userID, status string, limit, offset int) ([]models.Withdrawal, error)
	updateStatusFn func(ctx context.Context, adminID, withdrawalID, status string, reason *string) (models.Withdrawal, error)
	addAccountFn   func(ctx context.Context, userID string, req services.PayoutAccountRequest) (models.PayoutAccount, error)
}

func (s stubWithdrawals) Request(ctx context.Context, userID string, amount int64, payoutAccountID string) (models.Withdrawal, error) {
	if s.requestFn == nil {
		return models.Withdrawal{}, errUnexpectedCall
	}
	return s.requestFn(ctx, userID, amount, payoutAccountID)
}

func (s stubWithdrawals) List(ctx context.Context, userID, status string, limit, offset int) ([]models.Withdrawal, error) {
	if s.listFn == nil {
		return nil, errUnexpectedCall
	}
	return s.listFn(ctx, userID, status, limit, offset)
}

func (s stubWithdrawals) Cancel(context.Context, string, string) (models.Withdrawal, error) {
	return models.Withdrawal{}, errUnexpectedCall
}

func (s stubWithdrawals) UpdateStatus(ctx context.Context, adminID, withdrawalID, status string, reason *string) (models.Withdrawal, error) {
	if s.updateStatusFn == nil {
		return models.Withdrawal{}, errUnexpectedCall
	}
	return s.updateStatusFn(ctx, adminID, withdrawalID, status, reason)
}

func (s stubWithdrawals) Accounts(context.Context, string) ([]models.PayoutAccount, error) {
	return nil, nil
}

func (s stubWithdrawals) AddAccount(ctx context.Context, userID string, req services.PayoutAccountRequest) (models.PayoutAccount, error) {
	if s.addAccountFn == nil {
		return models.PayoutAccount{}, errUnexpectedCall
	}
	return s.addAccountFn(ctx, userID, req)
}

func (s stubWithdrawals) DeleteAccount(context.Context, string, string) error {
	return errUnexpectedCall
}

type stubAdmin struct {
	usersFn     func(ctx context.Context, search string, limit, offset int) ([]models.User, error)
	setConfigFn func(ctx context.Context, adminID, key, value string) error
	healthFn    func(ctx context.Context) (map[string]string, bool)
}

func (s stubAdmin) Users(ctx context.Context, search string, limit, offset int) ([]models.User, error) {
	if s.usersFn == nil {
		return nil, errUnexpectedCall
	}
	return s.usersFn(ctx, search, limit, offset)
}

func (s stubAdmin) SetKYC(context.Context, string, string, string) error {
	return errUnexpectedCall
}

func (s stubAdmin) SetRole(context.Context, string, string, string) error {
	return errUnexpectedCall
}

func (s stubAdmin) Transactions(context.Context, store.TransactionFilter, int, int) ([]models.Transaction, error) {
	return nil, errUnexpectedCall
}

func (s stubAdmin) AuditLogs(context.Context, store.AuditFilter, int, int) ([]models.AuditLog, error) {
	return nil, errUnexpectedCall
}

func (s stubAdmin) Monitoring(context.Context) (services.MonitoringReport, error) {
	return services.MonitoringReport{}, errUnexpectedCall
}

func (s stubAdmin) Health(ctx context.Context) (map[string]string, bool) {
	if s.healthFn == nil {
		return map[string]string{"database": "ok"}, true
	}
	return s.healthFn(ctx)
}

func (s stubAdmin) Reconcile(context.Context) (services.ReconcileReport, error) {
	return services.ReconcileReport{}, errUnexpectedCall
}

func (s stubAdmin) Config(context.Context) ([]models.SystemConfig, error) {
	return nil, errUnexpectedCall
}

func (s stubAdmin) SetConfig(ctx context.Context, adminID, key, value string) error {
	if s.setConfigFn == nil {
		return errUnexpectedCall
	}
	return s.setConfigFn(ctx, adminID, key, value)
}

type stubRoles map[string]string

func (s stubRoles) GetRole(_ context.Context, userID string) (string, error) {
	return s[userID], nil
}

func testConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour},
		Security: config.SecurityConfig{
			AllowedOrigins:  []string{"http://localhost:3000"},
			AuthRateLimit:   100,
			AuthRateWindow:  time.Minute,
			MoneyRateLimit:  100,
			MoneyRateWindow: time.Minute,
		},
	}
}

// newTestRouter fills in the config, the casbin enforcer and a role lookup
// where every known user is a member unless listed in roles.
func newTestRouter(t *testing.T, deps Deps, roles stubRoles) http.Handler {
	t.Helper()
	enforcer, err := authz.NewEnforcer()
	if err != nil {
		t.Fatalf("enforcer: %v", err)
	}
	deps.Config = testConfig()
	deps.Authorizer = enforcer
	if roles == nil {
		roles = stubRoles{}
	}
	deps.Roles = roles
	if deps.Admin == nil {
		deps.Admin = stubAdmin{}
	}
	return New(deps).Routes()
}

func doRequest(t *testing.T, router http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	switch b := body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		var err error
		if payload, err = json.Marshal(b); err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := auth.GenerateToken(testSecret, userID, models.RoleUser, time.Minute)
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

type testEnvelope struct {
	Success    bool                   `json:"success"`
	Data       json.RawMessage        `json:"data"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code"`
	Errors     []validator.FieldError `json:"errors"`
	RetryAfter int                    `json:"retry_after"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return env
}

func decodeData(t *testing.T, env testEnvelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data %q: %v", env.Data, err)
	}
}

func stringPtr(value string) *string {
	return &value
}
