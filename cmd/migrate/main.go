package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"bloodlink.org/internal/migrate"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		dsn string
		dir string
	)
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the client_storage schema for the postgres session backend",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("BMS_STORAGE_POSTGRES_DSN"), "PostgreSQL DSN")
	root.PersistentFlags().StringVar(&dir, "dir", "", "read migrations from this directory instead of the embedded set")

	// withManager opens the database for the duration of one subcommand.
	withManager := func(fn func(ctx context.Context, m *migrate.Manager) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				return fmt.Errorf("missing DSN: provide via --dsn or BMS_STORAGE_POSTGRES_DSN")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			db, err := sql.Open("pgx", dsn)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			var fsys fs.FS = migrate.Embedded()
			if dir != "" {
				fsys = os.DirFS(dir)
			}
			return fn(ctx, migrate.NewManager(db, fsys))
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: withManager(func(ctx context.Context, m *migrate.Manager) error {
				applied, err := m.Up(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%d migration(s) applied\n", len(applied))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last applied migration",
			Args:  cobra.NoArgs,
			RunE: withManager(func(ctx context.Context, m *migrate.Manager) error {
				name, err := m.Down(ctx)
				if err != nil {
					return err
				}
				fmt.Println("rolled back", name)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: withManager(func(ctx context.Context, m *migrate.Manager) error {
				history, err := m.Status(ctx)
				if err != nil {
					return err
				}
				for _, item := range history {
					fmt.Println("applied ", item)
				}
				pending, err := m.Pending(ctx)
				if err != nil {
					return err
				}
				for _, item := range pending {
					fmt.Println("pending ", item)
				}
				return nil
			}),
		},
	)
	return root
}
