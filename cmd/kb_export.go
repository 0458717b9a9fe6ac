package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Rezme-Inc/incentive-agent/internal/export"
	"github.com/Rezme-Inc/incentive-agent/internal/freshness"
	"github.com/Rezme-Inc/incentive-agent/internal/model"
)

var kbExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export knowledge-base records to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		records, err := st.All(ctx)
		if err != nil {
			return err
		}

		// Annotate staleness and drop suppressed records unless asked not to.
		policy := freshness.NewPolicy(cfg.KB.TTLDays.Map())
		includeSuppressed, _ := cmd.Flags().GetBool("all")
		now := time.Now().UTC()
		out := make([]model.Record, 0, len(records))
		for _, rec := range records {
			if !includeSuppressed && rec.DiscoveryCount == 1 && rec.MissCount >= cfg.KB.MissThreshold {
				continue
			}
			rec.Stale = !policy.IsFresh(rec, now)
			out = append(out, rec)
		}

		path, _ := cmd.Flags().GetString("out")
		if err := export.WriteXLSX(path, out); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "exported %d programs to %s\n", len(out), path)
		return nil
	},
}

func init() {
	kbExportCmd.Flags().String("out", "programs.xlsx", "output file path")
	kbExportCmd.Flags().Bool("all", false, "include suppressed records")
}
