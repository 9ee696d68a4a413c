package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brightdesk/crm-backend/internal/schema"
	"github.com/brightdesk/crm-backend/pkg/config"
	"github.com/brightdesk/crm-backend/pkg/database"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/messaging"
)

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect or upgrade the live database schema",
	}

	var publish bool
	upgrade := &cobra.Command{
		Use:   "upgrade",
		Short: "Run the idempotent schema upgrader",
		Long: `Runs every upgrade step and prints a JSON report of applied, skipped
and failed steps. With --publish, running API instances are told to drop
their capability caches.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, cfg *config.Config, db *database.DB, log *logger.Logger) error {
				var publisher messaging.EventPublisher = messaging.NopPublisher{}
				if publish {
					rmq, err := messaging.New(&cfg.RabbitMQ, log)
					if err != nil {
						return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
					}
					defer rmq.Close()

					p, err := messaging.NewPublisher(rmq, cfg.RabbitMQ.Exchange, serviceName, log)
					if err != nil {
						return err
					}
					publisher = p
				}

				report := schema.NewUpgrader(db, nil, publisher, log).Run(ctx)
				if err := printJSON(cmd, report); err != nil {
					return err
				}
				if len(report.Failed) > 0 {
					return fmt.Errorf("%d upgrade step(s) failed", len(report.Failed))
				}
				return nil
			})
		},
	}
	upgrade.Flags().BoolVar(&publish, "publish", false, "publish a schema.upgraded event over RabbitMQ")

	caps := &cobra.Command{
		Use:   "caps",
		Short: "Print the detected schema capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, _ *config.Config, db *database.DB, log *logger.Logger) error {
				c, err := schema.NewProbe(db, 0, log).Caps(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, c)
			})
		},
	}

	cmd.AddCommand(upgrade, caps)
	return cmd
}

func withDB(fn func(ctx context.Context, cfg *config.Config, db *database.DB, log *logger.Logger) error) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(context.Background(), cfg, db, log)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
