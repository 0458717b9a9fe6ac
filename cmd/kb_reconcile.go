package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Rezme-Inc/incentive-agent/internal/model"
)

var kbReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a run's extracted candidates into the knowledge base",
	Long:  "Reads a JSON array of candidates for one scope, merges them with the stored records (confirming matches, creating new records, recording misses), and prints the resulting visible set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		tier, loc, err := scopeFromFlags(cmd)
		if err != nil {
			return err
		}

		file, _ := cmd.Flags().GetString("file")
		candidates, err := readCandidates(file, tier, loc)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		records, err := initManager(st).GetOrRefresh(ctx, tier, loc, candidates)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "scope %s/%s: %d candidates in, %d programs visible\n",
			tier, loc, len(candidates), len(records))
		for _, rec := range records {
			marker := ""
			if rec.Stale {
				marker = " (stale)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s [%s]%s\n", rec.ID, rec.Name, rec.Confidence, marker)
		}
		return nil
	},
}

func init() {
	scopeFlags(kbReconcileCmd)
	kbReconcileCmd.Flags().String("file", "", "JSON file with this run's candidates (empty = miss-only pass)")
}

// readCandidates loads candidates from a JSON array file. Entries without an
// explicit tier/location inherit the command's scope.
func readCandidates(path string, tier model.Tier, locationKey string) ([]model.Candidate, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read candidates %s", path)
	}
	var candidates []model.Candidate
	if err := json.Unmarshal(data, &candidates); err != nil {
		return nil, eris.Wrapf(err, "parse candidates %s", path)
	}
	for i := range candidates {
		if candidates[i].Tier == "" {
			candidates[i].Tier = tier
		}
		if candidates[i].LocationKey == "" {
			candidates[i].LocationKey = locationKey
		}
	}
	return candidates, nil
}
