// Command incidentctl inspects and operates the local submission queue and
// runs the hotspot and risk analyses offline against a JSON fixture.
//
// Usage:
//
//	incidentctl queue list
//	incidentctl queue cancel <local-id>
//	incidentctl ledger list
//	incidentctl drain
//	incidentctl check
//	incidentctl fixture --out reports.json --now 2024-08-01T09:00:00Z
//	incidentctl hotspots --fixture reports.json --now 2024-08-01T09:00:00Z
//	incidentctl risk --fixture reports.json --period month
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/incident-risk-service/internal/config"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	queuePath string
	logLevel  string
	asJSON    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:          "incidentctl",
		Short:        "Operate the incident submission queue and run risk analyses",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.queuePath, "queue-path", "", "queue database directory (overrides QUEUE_PATH)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level for diagnostic output")
	root.PersistentFlags().BoolVar(&g.asJSON, "json", false, "print machine-readable JSON")

	root.AddCommand(
		newQueueCmd(g),
		newLedgerCmd(g),
		newDrainCmd(g),
		newCheckCmd(g),
		newFixtureCmd(),
		newHotspotsCmd(g),
		newRiskCmd(g),
	)
	return root
}

// loadConfig reads the environment and applies flag overrides. The CLI never
// works on an in-memory queue: it would always be empty.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if g.queuePath != "" {
		cfg.QueuePath = g.queuePath
	}
	cfg.QueueInMemory = false
	return cfg, nil
}

func (g *globalFlags) logger(w io.Writer) *slog.Logger {
	return observability.NewTextLogger(w, g.logLevel)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseNow reads an RFC 3339 --now flag; empty means the current time.
func parseNow(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --now %q: %w", s, err)
	}
	return t, nil
}
