package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

// phase tracks pass/fail for one integrity check.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func newCheckCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify queue and ledger consistency",
		Long: `Verify that the queue and ledger agree. Failures usually mean a pass was
interrupted; running drain resolves them without duplicate commits.`,
		Args: cobra.NoArgs,
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
			records, err := local.Ledger.List(cmd.Context())
			if err != nil {
				return err
			}

			phases := runChecks(entries, records)
			if !report(cmd.OutOrStdout(), phases, len(entries), len(records)) {
				return errors.New("integrity check failed")
			}
			return nil
		},
	}
}

func runChecks(entries []domain.OfflineReport, records []domain.SyncRecord) []*phase {
	committed := make(map[string]bool, len(records))
	for _, r := range records {
		committed[r.LocalID] = true
	}
	return []*phase{
		checkCommittedStillQueued(entries, committed),
		checkInterrupted(entries),
		checkAttemptBookkeeping(entries),
		checkLedgerRecords(records),
	}
}

func checkCommittedStillQueued(entries []domain.OfflineReport, committed map[string]bool) *phase {
	p := &phase{name: "Committed reports removed from queue"}
	for _, e := range entries {
		if committed[e.LocalID] {
			p.errorf("%s: in ledger but still queued (%s)", e.LocalID, e.SyncStatus.Normalize())
		}
	}
	return p
}

func checkInterrupted(entries []domain.OfflineReport) *phase {
	p := &phase{name: "No interrupted sync attempts"}
	for _, e := range entries {
		switch e.SyncStatus.Normalize() {
		case domain.StatusSyncing:
			p.errorf("%s: left in syncing after attempt %d", e.LocalID, e.Attempts)
		case domain.StatusSynced:
			p.errorf("%s: marked synced but not removed", e.LocalID)
		}
	}
	return p
}

func checkAttemptBookkeeping(entries []domain.OfflineReport) *phase {
	p := &phase{name: "Attempt counters consistent"}
	for _, e := range entries {
		switch e.SyncStatus.Normalize() {
		case domain.StatusPending:
			if e.Attempts != 0 {
				p.errorf("%s: pending with %d attempts", e.LocalID, e.Attempts)
			}
		case domain.StatusFailed:
			if e.Attempts < 1 {
				p.errorf("%s: failed without an attempt", e.LocalID)
			}
			if e.LastError == "" {
				p.errorf("%s: failed without an error message", e.LocalID)
			}
		}
	}
	return p
}

func checkLedgerRecords(records []domain.SyncRecord) *phase {
	p := &phase{name: "Ledger records complete"}
	for _, r := range records {
		if r.RemoteID == "" {
			p.errorf("%s: empty remote id", r.LocalID)
		}
		if r.Attempts < 1 {
			p.errorf("%s: recorded with %d attempts", r.LocalID, r.Attempts)
		}
		if r.SyncedAt.IsZero() {
			p.errorf("%s: missing synced-at", r.LocalID)
		}
	}
	return p
}

// report prints the phase table and details, and returns whether all passed.
func report(w io.Writer, phases []*phase, queued, recorded int) bool {
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-40s %s\n", p.name, status)
	}
	fmt.Fprintf(w, "\nQueued: %d, ledger records: %d\n", queued, recorded)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}
	return allPassed
}
