package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/abduss/filemeta/internal/auth"
	"github.com/abduss/filemeta/internal/config"
	"github.com/abduss/filemeta/internal/logger"
	"github.com/abduss/filemeta/internal/storage/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "filemeta",
	Short:        "Versioned file metadata service",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logg, err := logger.New(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer func() { _ = logg.Sync() }()

		if migrateOnStart && cfg.Store == "postgres" {
			if err := migrations.MigrateUp(cfg.Postgres.DSN()); err != nil {
				logg.Error("apply migrations", zap.Error(err))
				return err
			}
		}

		return serve(cmd.Context(), cfg, logg)
	},
}

var migrateOnStart bool

// migrate commands
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the PostgreSQL schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := migrations.MigrateUp(cfg.Postgres.DSN()); err != nil {
			return err
		}
		fmt.Println("migrations applied")
		return nil
	},
}

var migrateDownSteps int

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := migrations.MigrateDown(cfg.Postgres.DSN(), migrateDownSteps); err != nil {
			return err
		}
		fmt.Printf("reverted %d migration(s)\n", migrateDownSteps)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		version, dirty, err := migrations.Status(cfg.Postgres.DSN())
		if err != nil {
			return err
		}
		fmt.Printf("schema version: %d (dirty: %t)\n", version, dirty)
		return nil
	},
}

var (
	tokenSubject string
	tokenScopes  []string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a service token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		token, expiresAt, err := auth.NewService(cfg.Auth).IssueToken(tokenSubject, tokenScopes)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Println(token)
		fmt.Fprintf(os.Stderr, "scopes: %s, expires: %s\n", strings.Join(tokenScopes, ","), expiresAt.UTC().Format("2006-01-02T15:04:05Z"))
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply pending migrations before serving")

	migrateDownCmd.Flags().IntVar(&migrateDownSteps, "steps", 1, "number of migrations to revert")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)

	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "caller the token is issued to")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", []string{auth.ScopeRead}, "granted scopes")
	_ = tokenCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd)
}
