package main

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/brightdesk/crm-backend/internal/schema"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert the embedded SQL migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(mg *schema.Migrator) error {
				return mg.Up()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(mg *schema.Migrator) error {
				return mg.Down()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "to <version>",
		Short: "Migrate up or down to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return withMigrator(func(mg *schema.Migrator) error {
				return mg.To(uint(version))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(mg *schema.Migrator) error {
				version, dirty, err := mg.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d", version)
				if dirty {
					fmt.Fprint(cmd.OutOrStdout(), " (dirty)")
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	})

	return cmd
}

// withMigrator opens a dedicated connection for golang-migrate; the
// migrator closes it when fn returns.
func withMigrator(fn func(*schema.Migrator) error) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	db, err := sql.Open("postgres", cfg.Database.MigrateURL())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	mg, err := schema.NewMigrator(db, log)
	if err != nil {
		db.Close()
		return err
	}
	defer mg.Close()

	return fn(mg)
}
