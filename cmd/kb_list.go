package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Rezme-Inc/incentive-agent/internal/model"
)

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List knowledge-base records for a scope",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		tier, loc, err := scopeFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		all, _ := cmd.Flags().GetBool("all")
		var records []model.Record
		if all {
			// Raw scoped lookup, suppressed records included.
			records, err = st.Lookup(ctx, tier, loc)
		} else {
			records, err = initManager(st).VisibleRecords(ctx, tier, loc)
		}
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCONFIDENCE\tFOUND\tMISSED\tLAST CONFIRMED")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				rec.ID, rec.Name, rec.Confidence,
				rec.DiscoveryCount, rec.MissCount,
				rec.LastConfirmedAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

func init() {
	scopeFlags(kbListCmd)
	kbListCmd.Flags().Bool("all", false, "include suppressed records")
}
