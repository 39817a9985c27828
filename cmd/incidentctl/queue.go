package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/incident-risk-service/internal/app"
	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

func newQueueCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or edit the local submission queue",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List queued reports, oldest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				local, err := g.openLocal(cmd)
				if err != nil {
					return err
				}
				defer local.Close()

				entries, err := local.Queue.List(cmd.Context())
				if err != nil {
					return err
				}
				if g.asJSON {
					if entries == nil {
						entries = []domain.OfflineReport{}
					}
					return printJSON(cmd.OutOrStdout(), entries)
				}
				return printQueue(cmd.OutOrStdout(), entries)
			},
		},
		&cobra.Command{
			Use:   "cancel <local-id>",
			Short: "Remove a pending report before it is synced",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				local, err := g.openLocal(cmd)
				if err != nil {
					return err
				}
				defer local.Close()

				if err := local.Queue.Cancel(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func (g *globalFlags) openLocal(cmd *cobra.Command) (*app.Local, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.OpenLocal(cfg, clockwork.NewRealClock(), g.logger(cmd.ErrOrStderr()))
}

func printQueue(w io.Writer, entries []domain.OfflineReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCAL ID\tSTATUS\tATTEMPTS\tCREATED\tBARANGAY\tLAST ERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			e.LocalID,
			e.SyncStatus.Normalize(),
			e.Attempts,
			e.CreatedAt.Format(time.RFC3339),
			e.Barangay,
			e.LastError,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d queued\n", len(entries))
	return err
}
