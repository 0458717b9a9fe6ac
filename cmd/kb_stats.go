package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Rezme-Inc/incentive-agent/internal/freshness"
	"github.com/Rezme-Inc/incentive-agent/internal/model"
	"github.com/Rezme-Inc/incentive-agent/internal/monitoring"
)

var kbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge-base health metrics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		collector := monitoring.NewCollector(st,
			freshness.NewPolicy(cfg.KB.TTLDays.Map()), cfg.KB.MissThreshold)
		snap, err := collector.Collect(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Total programs\t%d\n", snap.TotalPrograms)
		for _, tier := range model.Tiers() {
			if n, ok := snap.ByTier[tier]; ok {
				fmt.Fprintf(w, "  %s\t%d\n", tier, n)
			}
		}
		for _, conf := range []model.Confidence{model.ConfidenceLow, model.ConfidenceMedium, model.ConfidenceHigh} {
			if n, ok := snap.ByConfidence[conf]; ok {
				fmt.Fprintf(w, "Confidence %s\t%d\n", conf, n)
			}
		}
		fmt.Fprintf(w, "Stale\t%d\n", snap.Stale)
		fmt.Fprintf(w, "Suppressed\t%d\n", snap.Suppressed)
		fmt.Fprintf(w, "Single discovery\t%d\n", snap.SingleDiscovery)
		fmt.Fprintf(w, "Reconcile passes\t%d\n", snap.ReconcilePasses)
		return w.Flush()
	},
}
