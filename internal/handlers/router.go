package handlers

import (
	"net/http"
	"strconv"
	"time"

	"kixikila/internal/config"
	"kixikila/internal/middleware"
	"kixikila/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Deps struct {
	Config        config.Config
	Auth          AuthService
	Groups        GroupService
	Draws         DrawService
	Payments      PaymentService
	Webhooks      WebhookVerifier
	Transactions  TransactionReader
	Withdrawals   WithdrawalService
	Notifications NotificationService
	Subscriptions SubscriptionService
	Admin         AdminService
	Cleanup       CleanupRunner
	Roles         middleware.RoleLookup
	Authorizer    middleware.Authorizer
	Maintenance   *middleware.Maintenance
	Hub           *websocket.Hub
}

type Handler struct {
	cfg           config.Config
	auth          AuthService
	groups        GroupService
	draws         DrawService
	payments      PaymentService
	webhooks      WebhookVerifier
	transactions  TransactionReader
	withdrawals   WithdrawalService
	notifications NotificationService
	subscriptions SubscriptionService
	admin         AdminService
	cleanup       CleanupRunner
	roles         middleware.RoleLookup
	authorizer    middleware.Authorizer
	maintenance   *middleware.Maintenance
	hub           *websocket.Hub
}

func New(deps Deps) *Handler {
	return &Handler{
		cfg:           deps.Config,
		auth:          deps.Auth,
		groups:        deps.Groups,
		draws:         deps.Draws,
		payments:      deps.Payments,
		webhooks:      deps.Webhooks,
		transactions:  deps.Transactions,
		withdrawals:   deps.Withdrawals,
		notifications: deps.Notifications,
		subscriptions: deps.Subscriptions,
		admin:         deps.Admin,
		cleanup:       deps.Cleanup,
		roles:         deps.Roles,
		authorizer:    deps.Authorizer,
		maintenance:   deps.Maintenance,
		hub:           deps.Hub,
	}
}

func (h *Handler) can(object, action string) func(http.Handler) http.Handler {
	return middleware.RequireAdmin(h.roles, h.authorizer, object, action)
}

// rateLimited reuses the Retry-After header httprate has already set.
func rateLimited(w http.ResponseWriter, r *http.Request) {
	retry, _ := strconv.Atoi(w.Header().Get("Retry-After"))
	respondJSON(w, http.StatusTooManyRequests, envelope{Message: "too many requests", Code: "rate_limited", RetryAfter: retry})
}

// userKey buckets authenticated callers by user id, falling back to the IP.
func userKey(r *http.Request) (string, error) {
	if userID, ok := middleware.UserIDFromContext(r.Context()); ok {
		return "user:" + userID, nil
	}
	return httprate.KeyByIP(r)
}

func (h *Handler) Routes() http.Handler {
	sec := h.cfg.Security
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestLogger)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Metrics)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   sec.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	moneyLimit := httprate.Limit(sec.MoneyRateLimit, sec.MoneyRateWindow,
		httprate.WithKeyFuncs(userKey),
		httprate.WithLimitHandler(rateLimited),
	)
	authenticated := middleware.Auth(h.cfg.Auth.JWTSecret)

	router.Get("/metrics", promhttp.Handler().ServeHTTP)
	router.Get("/ws/notifications", h.NotificationsSocket)

	router.Route("/api", func(api chi.Router) {
		api.Get("/health", h.Health)
		api.Post("/stripe/webhook", h.StripeWebhook)

		api.Route("/auth", func(r chi.Router) {
			r.Use(httprate.Limit(sec.AuthRateLimit, sec.AuthRateWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
				httprate.WithLimitHandler(rateLimited),
			))
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/verify-otp", h.VerifyOTP)
			r.Post("/resend-otp", h.ResendOTP)
			r.With(authenticated).Get("/me", h.Me)
		})

		api.Group(func(r chi.Router) {
			r.Use(authenticated)
			if h.maintenance != nil {
				r.Use(h.maintenance.Handler)
			}

			r.Get("/users/profile", h.GetProfile)
			r.Put("/users/profile", h.UpdateProfile)

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", h.ListGroups)
				r.Post("/", h.CreateGroup)
				r.Get("/{id}", h.GetGroup)
				r.Put("/{id}", h.UpdateGroup)
				r.Delete("/{id}", h.DeleteGroup)
				r.With(h.can("groups", "join")).Post("/{id}/join", h.JoinGroup)
				r.Post("/{id}/leave", h.LeaveGroup)
				r.With(moneyLimit).Post("/{id}/draw", h.Draw)
				r.Get("/{id}/draws", h.DrawHistory)
				r.Get("/{id}/members", h.ListMembers)
				r.Put("/{id}/members/{userID}", h.UpdateMember)
				r.Put("/{id}/positions", h.ReorderPositions)
			})

			r.Get("/transactions", h.ListTransactions)
			r.With(moneyLimit).Post("/transactions", h.CreateTransaction)
			r.Get("/transactions/{id}", h.GetTransaction)
			r.Post("/transactions/{id}/cancel", h.CancelTransaction)

			r.Get("/withdrawals", h.ListWithdrawals)
			r.With(moneyLimit, h.can("withdrawals", "request")).Post("/withdrawals", h.RequestWithdrawal)
			r.Post("/withdrawals/{id}/cancel", h.CancelWithdrawal)

			r.Get("/payout-accounts", h.ListPayoutAccounts)
			r.Post("/payout-accounts", h.CreatePayoutAccount)
			r.Delete("/payout-accounts/{id}", h.DeletePayoutAccount)

			r.Get("/notifications", h.ListNotifications)
			r.With(h.can("notifications", "create")).Post("/notifications", h.CreateNotification)
			r.Put("/notifications/{id}/read", h.MarkNotificationRead)
			r.Put("/notifications/{id}/unread", h.MarkNotificationUnread)
			r.Post("/notifications/read-all", h.MarkAllNotificationsRead)

			r.Post("/subscriptions/checkout", h.SubscriptionCheckout)
			r.Get("/subscriptions/status", h.SubscriptionStatus)
		})

		api.Route("/admin", func(r chi.Router) {
			r.Use(authenticated)
			r.With(h.can("users", "read")).Get("/users", h.AdminListUsers)
			r.With(h.can("users", "write")).Post("/users", h.AdminCreateUser)
			r.With(h.can("users", "write")).Put("/users/{id}/kyc", h.AdminSetKYC)
			r.With(h.can("users", "write")).Put("/users/{id}/role", h.AdminSetRole)
			r.With(h.can("transactions", "read")).Get("/transactions", h.AdminListTransactions)
			r.With(h.can("withdrawals", "read")).Get("/withdrawals", h.AdminListWithdrawals)
			r.With(h.can("withdrawals", "write")).Put("/withdrawals/{id}", h.AdminUpdateWithdrawal)
			r.With(h.can("audit", "read")).Get("/audit-logs", h.AdminAuditLogs)
			r.With(h.can("monitoring", "read")).Get("/monitoring", h.AdminMonitoring)
			r.With(h.can("monitoring", "read")).Get("/reconcile", h.AdminReconcile)
			r.With(h.can("config", "read")).Get("/config", h.AdminListConfig)
			r.With(h.can("config", "write")).Put("/config/{key}", h.AdminSetConfig)
			r.With(h.can("maintenance", "run")).Post("/cleanup", h.AdminCleanup)
		})
	})
	return router
}

// ReadHeaderTimeout and friends for the HTTP server built around Routes.
const (
	ReadHeaderTimeout = 5 * time.Second
	WriteTimeout      = 30 * time.Second
	IdleTimeout       = 120 * time.Second
)
