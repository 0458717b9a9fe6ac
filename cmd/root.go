package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Rezme-Inc/incentive-agent/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "incentive-agent",
	Short: "Hiring-incentive program knowledge base",
	Long:  "Maintains a durable, deduplicated knowledge base of hiring-incentive programs discovered across federal, state, county, and city jurisdictions.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
