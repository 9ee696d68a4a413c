package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brightdesk/crm-backend/pkg/config"
	"github.com/brightdesk/crm-backend/pkg/logger"
)

const serviceName = "crmctl"

func main() {
	rootCmd := &cobra.Command{
		Use:   "crmctl",
		Short: "Operator tooling for the CRM database",
		Long: `crmctl runs the SQL migrations and the schema upgrader outside the API
process, and prints the capability set the API would detect.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(schemaCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and a logger shared by every command.
func bootstrap() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, logger.New(serviceName, cfg.Server.Environment), nil
}
