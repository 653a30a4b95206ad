package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kixikila/internal/authz"
	"kixikila/internal/config"
	"kixikila/internal/db"
	"kixikila/internal/events"
	"kixikila/internal/handlers"
	"kixikila/internal/lock"
	"kixikila/internal/logging"
	"kixikila/internal/messaging"
	"kixikila/internal/middleware"
	"kixikila/internal/payments"
	"kixikila/internal/services"
	"kixikila/internal/store"
	"kixikila/internal/supervisor"
	"kixikila/internal/websocket"
)

const (
	drawLockTTL       = 30 * time.Second
	maintenanceTTL    = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	healthCheckBudget = 2 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})

	database, err := db.Connect(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("connect database")
	}
	defer database.Close()

	redisClient := lock.NewClient(cfg.Redis)
	defer redisClient.Close()

	users := store.NewUserStore(database)
	groups := store.NewGroupStore(database)
	members := store.NewMemberStore(database)
	transactions := store.NewTransactionStore(database)
	ledger := store.NewLedgerStore(database)
	draws := store.NewDrawStore(database)
	notifications := store.NewNotificationStore(database)
	otps := store.NewOTPStore(database)
	audit := store.NewAuditStore(database)
	settings := store.NewConfigStore(database)
	payoutAccounts := store.NewPayoutAccountStore(database)
	withdrawals := store.NewWithdrawalStore(database)
	webhooks := store.NewWebhookEventStore(database)
	admin := store.NewAdminStore(database)
	txRunner := db.NewTxRunner(database)

	sms := messaging.NewTwilioSender(cfg.Twilio)
	gateway := payments.NewStripe(cfg.Stripe)
	hub := websocket.NewHub()

	bus := events.NewBus()
	defer bus.Close()
	notifier := events.NewNotifier(database, notifications, users, hub, sms)
	eventRouter, err := events.NewRouter(bus, notifier)
	if err != nil {
		logging.Fatal().Err(err).Msg("build event router")
	}

	enforcer, err := authz.NewEnforcer()
	if err != nil {
		logging.Fatal().Err(err).Msg("load authorization policy")
	}

	otpService := services.NewOTPService(txRunner, otps, sms,
		lock.NewThrottle(redisClient, "otp:cooldown:"),
		lock.NewThrottle(redisClient, "otp:lockout:"),
		cfg.OTP)
	authService := services.NewAuthService(txRunner, users, audit, otpService, cfg.Auth)
	groupService := services.NewGroupService(txRunner, groups, members, users, settings, audit, admin)
	drawService := services.NewDrawService(services.DrawDeps{
		TxRunner:     txRunner,
		Groups:       groups,
		Members:      members,
		Users:        users,
		Transactions: transactions,
		Ledger:       ledger,
		Draws:        draws,
		Config:       settings,
		Audit:        audit,
		Roles:        admin,
		Locker:       lock.NewLocker(redisClient, "draw:lock:", drawLockTTL),
		Publisher:    bus,
		Currency:     cfg.Stripe.Currency,
	})
	paymentService := services.NewPaymentService(services.PaymentDeps{
		TxRunner:     txRunner,
		Users:        users,
		Groups:       groups,
		Members:      members,
		Transactions: transactions,
		Ledger:       ledger,
		Webhooks:     webhooks,
		Audit:        audit,
		Gateway:      gateway,
		Publisher:    bus,
		Currency:     cfg.Stripe.Currency,
	})
	withdrawalService := services.NewWithdrawalService(services.WithdrawalDeps{
		TxRunner:     txRunner,
		Users:        users,
		Withdrawals:  withdrawals,
		Accounts:     payoutAccounts,
		Transactions: transactions,
		Ledger:       ledger,
		Config:       settings,
		Audit:        audit,
		Publisher:    bus,
		Currency:     cfg.Stripe.Currency,
	})
	adminService := services.NewAdminService(services.AdminDeps{
		TxRunner:     txRunner,
		Users:        users,
		Transactions: transactions,
		Audit:        audit,
		AuditReader:  audit,
		Monitoring:   admin,
		Reconciler:   ledger,
		Settings:     settings,
		Publisher:    bus,
		Checks: map[string]services.HealthCheck{
			"database": func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, healthCheckBudget)
				defer cancel()
				return database.PingContext(ctx)
			},
			"redis": func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, healthCheckBudget)
				defer cancel()
				return redisClient.Ping(ctx).Err()
			},
		},
	})
	cleanupService := services.NewCleanupService(otps, webhooks, notifications, users, paymentService, cfg.OTP.CleanupGrace, cfg.Cleanup)

	handler := handlers.New(handlers.Deps{
		Config:        cfg,
		Auth:          authService,
		Groups:        groupService,
		Draws:         drawService,
		Payments:      paymentService,
		Webhooks:      gateway,
		Transactions:  transactions,
		Withdrawals:   withdrawalService,
		Notifications: services.NewNotificationService(database, notifications, users, bus),
		Subscriptions: services.NewSubscriptionService(txRunner, users, gateway),
		Admin:         adminService,
		Cleanup:       cleanupService,
		Roles:         admin,
		Authorizer:    enforcer,
		Maintenance:   middleware.NewMaintenance(settings, admin, store.ConfigMaintenanceMode, maintenanceTTL),
		Hub:           hub,
	})
	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: handlers.ReadHeaderTimeout,
		WriteTimeout:      handlers.WriteTimeout,
		IdleTimeout:       handlers.IdleTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger("supervisor"), supervisor.DefaultTreeConfig())
	tree.AddAPI(supervisor.NewHTTPService(server, shutdownTimeout))
	tree.AddBackground(eventRouter)
	tree.AddBackground(cleanupService)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("env", cfg.App.Env).Str("addr", server.Addr).Msg("kixikila starting")
	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("supervisor stopped")
		os.Exit(1)
	}
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("services", len(report)).Msg("services did not stop in time")
	}
	logging.Info().Msg("kixikila stopped")
}
