package main

import (
	"fmt"
	"os"

	"kixikila/internal/config"
	"kixikila/internal/db"
	"kixikila/internal/logging"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kixikila-admin",
		Short:         "Operator tasks for the KIXIKILA backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(createAdminCmd())
	rootCmd.AddCommand(cleanupCmd())
	rootCmd.AddCommand(reconcileCmd())
	return rootCmd
}

// env is what every subcommand needs: loaded config and an open database.
type env struct {
	cfg      config.Config
	database *sqlx.DB
}

func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: "console"})
	database, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &env{cfg: cfg, database: database}, nil
}

func (e *env) Close() error {
	return e.database.Close()
}
