package main

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	mysqladapter "github.com/couchcryptid/incident-risk-service/internal/adapter/mysql"
	"github.com/couchcryptid/incident-risk-service/internal/app"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
	"github.com/couchcryptid/incident-risk-service/internal/pipeline"
)

func newDrainCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Run one sync pass against the configured remote store",
		Long: `Run one sync pass. Every queued report is committed to the remote store
selected by COMMIT_BACKEND unless the ledger shows it already landed.
Do not run this while syncd is using the same queue directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			logger := g.logger(cmd.ErrOrStderr())
			clock := clockwork.NewRealClock()

			local, err := app.OpenLocal(cfg, clock, logger)
			if err != nil {
				return err
			}
			defer local.Close()

			store, err := mysqladapter.Open(cfg.MySQLDSN)
			if err != nil {
				return err
			}
			defer store.Close()

			committer, err := app.NewCommitter(cfg, store, logger)
			if err != nil {
				return err
			}
			if committer != store {
				defer committer.Close()
			}

			coord := pipeline.NewCoordinator(local.Queue, local.Ledger, committer, clock, logger, observability.NewMetricsForTesting())
			res, err := coord.Drain(cmd.Context())
			if err != nil {
				return err
			}
			if g.asJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}

			out := cmd.OutOrStdout()
			for _, e := range res.Entries {
				line := fmt.Sprintf("%-36s  %-17s", e.LocalID, e.Outcome)
				if e.RemoteID != "" {
					line += "  remote=" + e.RemoteID
				}
				if e.Error != "" {
					line += "  error=" + e.Error
				}
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "committed=%d already_committed=%d failed=%d\n", res.Committed, res.AlreadyCommitted, res.Failed)
			if res.Failed > 0 {
				return fmt.Errorf("%d report(s) failed to sync", res.Failed)
			}
			return nil
		},
	}
}
