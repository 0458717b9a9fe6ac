package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Rezme-Inc/incentive-agent/internal/freshness"
	"github.com/Rezme-Inc/incentive-agent/internal/identity"
	"github.com/Rezme-Inc/incentive-agent/internal/kb"
	"github.com/Rezme-Inc/incentive-agent/internal/model"
	"github.com/Rezme-Inc/incentive-agent/internal/reconcile"
	"github.com/Rezme-Inc/incentive-agent/internal/store"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Operate the program knowledge base",
}

func init() {
	rootCmd.AddCommand(kbCmd)
	kbCmd.AddCommand(kbSeedCmd)
	kbCmd.AddCommand(kbReconcileCmd)
	kbCmd.AddCommand(kbListCmd)
	kbCmd.AddCommand(kbStatsCmd)
	kbCmd.AddCommand(kbExportCmd)
}

// initStore opens the configured store backend and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	var err error
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func initManager(st store.Store) *kb.Manager {
	policy := freshness.NewPolicy(cfg.KB.TTLDays.Map())
	return kb.NewManager(st, policy, kb.Config{
		Reconcile: reconcile.Options{
			Threshold:    cfg.KB.SimilarityThreshold,
			AgencyWeight: cfg.KB.AgencyWeight,
		},
		MissThreshold:      cfg.KB.MissThreshold,
		RefreshConcurrency: cfg.KB.RefreshConcurrency,
	})
}

// scopeFlags registers the standard scope selection flags on cmd.
func scopeFlags(cmd *cobra.Command) {
	cmd.Flags().String("tier", "", "jurisdiction tier (city, county, state, federal)")
	cmd.Flags().String("state", "", "state name")
	cmd.Flags().String("county", "", "county name")
	cmd.Flags().String("city", "", "city name")
	_ = cmd.MarkFlagRequired("tier")
}

// scopeFromFlags resolves the (tier, location_key) scope from command flags.
func scopeFromFlags(cmd *cobra.Command) (model.Tier, string, error) {
	tierStr, _ := cmd.Flags().GetString("tier")
	tier := model.Tier(tierStr)
	if !tier.Valid() {
		return "", "", eris.Errorf("unknown tier %q", tierStr)
	}
	state, _ := cmd.Flags().GetString("state")
	county, _ := cmd.Flags().GetString("county")
	city, _ := cmd.Flags().GetString("city")

	loc, err := identity.LocationKey(tier, state, county, city)
	if err != nil {
		return "", "", err
	}
	return tier, loc, nil
}
