package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"optikpos/backend/internal/service"
	"optikpos/backend/internal/store"
	pgstore "optikpos/backend/internal/store/postgres"
)

// Backend is the storage posctl operates on.
type Backend interface {
	store.Repository
	Migrate(ctx context.Context) error
	Close() error
}

type Opener func(ctx context.Context, databaseURL string) (Backend, error)

func OpenPostgres(ctx context.Context, databaseURL string) (Backend, error) {
	pg, err := pgstore.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return pg, nil
}

const commandTimeout = 30 * time.Second

func NewRootCommand(open Opener) *cobra.Command {
	var databaseURL string

	root := &cobra.Command{
		Use:          "posctl",
		Short:        "Operate the optical POS backend from the command line",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string (defaults to DATABASE_URL)")

	withBackend := func(cmd *cobra.Command, fn func(ctx context.Context, backend Backend) error) error {
		if databaseURL == "" {
			return errors.New("DATABASE_URL or --database-url is required")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		backend, err := open(ctx, databaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer backend.Close()
		return fn(ctx, backend)
	}

	newService := func(cmd *cobra.Command, backend Backend) *service.Service {
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
		return service.New(backend, service.Options{Logger: logger})
	}

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, func(ctx context.Context, backend Backend) error {
				if err := backend.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
				return nil
			})
		},
	})

	var period string
	dashboardCmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print the bucketed sales, expense and profit series as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, func(ctx context.Context, backend Backend) error {
				series, err := newService(cmd, backend).Dashboard(ctx, period)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(series)
			})
		},
	}
	dashboardCmd.Flags().StringVar(&period, "period", "day", "Bucket period: day, week, month or year")
	root.AddCommand(dashboardCmd)

	root.AddCommand(&cobra.Command{
		Use:   "next-invoice",
		Short: "Reserve and print the next order number",
		Long: `Reserve the next order number from the per-year counter and print it.
The number is consumed; the next checkout receives the one after it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, func(ctx context.Context, backend Backend) error {
				number, err := newService(cmd, backend).NextInvoiceNumber(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), number)
				return nil
			})
		},
	})

	return root
}
