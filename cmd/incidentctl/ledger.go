package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

func newLedgerCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect confirmed commits",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List local id to remote id mappings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			local, err := g.openLocal(cmd)
			if err != nil {
				return err
			}
			defer local.Close()

			records, err := local.Ledger.List(cmd.Context())
			if err != nil {
				return err
			}
			if g.asJSON {
				if records == nil {
					records = []domain.SyncRecord{}
				}
				return printJSON(cmd.OutOrStdout(), records)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LOCAL ID\tREMOTE ID\tSYNCED\tATTEMPTS")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", r.LocalID, r.RemoteID, r.SyncedAt.Format(time.RFC3339), r.Attempts)
			}
			return tw.Flush()
		},
	})
	return cmd
}
