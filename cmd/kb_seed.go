package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Rezme-Inc/incentive-agent/internal/model"
	"github.com/Rezme-Inc/incentive-agent/internal/seed"
)

var kbSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load baseline programs into the knowledge base",
	Long:  "Loads the embedded federal baseline (or a YAML file) into the store. Safe to re-run: existing records merge without losing confidence or history.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		file, _ := cmd.Flags().GetString("file")
		var candidates []model.Candidate
		if file != "" {
			candidates, err = seed.FromFile(file)
		} else {
			candidates, err = seed.Baseline()
		}
		if err != nil {
			return err
		}

		created, err := initManager(st).Seed(ctx, candidates)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d programs (%d new)\n", len(candidates), created)
		return nil
	},
}

func init() {
	kbSeedCmd.Flags().String("file", "", "YAML seed file (defaults to the embedded baseline)")
}
