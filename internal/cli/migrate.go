package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/lib/pq" // postgres driver
	"github.com/spf13/cobra"

	"github.com/txn2/sql-gateway/pkg/database/migrate"
)

// NewMigrateCommand creates the migrate command and its subcommands.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the gateway database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(rootOpts, func(db *sql.DB) error {
				if err := migrate.Run(db); err != nil {
					return err
				}
				return printVersion(cmd, db)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withDB(rootOpts, migrate.Down)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "steps <n>",
		Short: "Apply n migrations, or roll back when n is negative",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("steps must be an integer: %w", err)
			}
			return withDB(rootOpts, func(db *sql.DB) error {
				if err := migrate.Steps(db, n); err != nil {
					return err
				}
				return printVersion(cmd, db)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(rootOpts, func(db *sql.DB) error {
				return printVersion(cmd, db)
			})
		},
	})

	return cmd
}

func withDB(opts *RootOptions, fn func(*sql.DB) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is not configured")
	}
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()
	return fn(db)
}

func printVersion(cmd *cobra.Command, db *sql.DB) error {
	version, dirty, err := migrate.Version(db)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", version, dirty)
	return err
}
