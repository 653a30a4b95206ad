package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"kixikila/internal/db"
	"kixikila/internal/events"
	"kixikila/internal/payments"
	"kixikila/internal/services"
	"kixikila/internal/store"
	"kixikila/internal/validator"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

const passwordEnvVar = "KIXIKILA_ADMIN_PASSWORD"

var errUnbalanced = errors.New("ledger does not match materialized balances")

type adminInput struct {
	FullName string  `validate:"required,min=2,max=120"`
	Phone    string  `validate:"required,phone"`
	Email    *string `validate:"omitempty,email,max=254"`
	Password string  `validate:"required,min=8,max=72"`
}

func newAdminInput(name, phone, email, password string) (adminInput, error) {
	in := adminInput{
		FullName: strings.TrimSpace(name),
		Phone:    validator.NormalizePhone(phone),
		Password: password,
	}
	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		in.Email = &email
	}
	if err := validator.Struct(in); err != nil {
		return adminInput{}, err
	}
	return in, nil
}

func createAdminCmd() *cobra.Command {
	var name, phone, email, password string
	var force bool

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		Long: `Create a phone-verified admin account.

Refuses to run when an admin already exists unless --force is given. The
password may come from ` + passwordEnvVar + ` instead of the flag.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(passwordEnvVar)
			}
			in, err := newAdminInput(name, phone, email, password)
			if err != nil {
				return err
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := cmd.Context()

			if !force {
				exists, err := store.NewAdminStore(e.database).HasAnyAdmin(ctx)
				if err != nil {
					return err
				}
				if exists {
					return errors.New("an admin already exists, pass --force to add another")
				}
			}

			authService := services.NewAuthService(db.NewTxRunner(e.database), store.NewUserStore(e.database), store.NewAuditStore(e.database), nil, e.cfg.Auth)
			user, err := authService.CreateAdmin(ctx, "", services.RegisterRequest{
				FullName: in.FullName,
				Phone:    in.Phone,
				Email:    in.Email,
				Password: in.Password,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", user.ID, user.Phone)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Full name")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone in international format, e.g. +244923000000")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (min 8 characters)")
	cmd.Flags().BoolVar(&force, "force", false, "Create even if an admin exists")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run one cleanup pass now",
		Long: `Delete expired OTP codes, old webhook receipts and old read
notifications, and expire lapsed VIP subscriptions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			bus := events.NewBus()
			defer bus.Close()
			users := store.NewUserStore(e.database)
			webhooks := store.NewWebhookEventStore(e.database)
			paymentService := services.NewPaymentService(services.PaymentDeps{
				TxRunner:     db.NewTxRunner(e.database),
				Users:        users,
				Groups:       store.NewGroupStore(e.database),
				Members:      store.NewMemberStore(e.database),
				Transactions: store.NewTransactionStore(e.database),
				Ledger:       store.NewLedgerStore(e.database),
				Webhooks:     webhooks,
				Audit:        store.NewAuditStore(e.database),
				Gateway:      payments.NewStripe(e.cfg.Stripe),
				Publisher:    bus,
				Currency:     e.cfg.Stripe.Currency,
			})
			cleanup := services.NewCleanupService(
				store.NewOTPStore(e.database),
				webhooks,
				store.NewNotificationStore(e.database),
				users,
				paymentService,
				e.cfg.OTP.CleanupGrace,
				e.cfg.Cleanup,
			)
			report, err := cleanup.Run(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Compare wallet and pool balances with the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			admin := services.NewAdminService(services.AdminDeps{Reconciler: store.NewLedgerStore(e.database)})
			report, err := admin.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.Balanced {
				return errUnbalanced
			}
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
