package main

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

// barangaySeed places synthetic reports around real Marikina barangays.
type barangaySeed struct {
	name     string
	lat, lng float64
	weight   int // relative report volume
}

var barangays = []barangaySeed{
	{"San Roque", 14.6247, 121.0965, 8},
	{"Malanday", 14.6522, 121.0953, 6},
	{"Tumana", 14.6571, 121.0987, 5},
	{"Nangka", 14.6727, 121.1092, 4},
	{"Concepcion Uno", 14.6508, 121.1030, 3},
	{"Parang", 14.6605, 121.1116, 2},
	{"Industrial Valley", 14.6290, 121.0867, 2},
	{"Barangka", 14.6321, 121.0811, 1},
}

var incidentTypes = []string{"flood", "fire", "road obstruction", "landslide", "power outage", "crime"}

type fixtureOptions struct {
	count  int
	seed   uint64
	days   int
	now    time.Time
	spread float64 // degrees of jitter around each barangay centre
}

// generateFixture builds a deterministic set of canonical reports. Most land
// in the last few weeks and cluster tightly enough to form hotspots.
func generateFixture(opts fixtureOptions) []domain.Report {
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))

	total := 0
	for _, b := range barangays {
		total += b.weight
	}

	reports := make([]domain.Report, 0, opts.count)
	for i := range opts.count {
		b := pickBarangay(rng, total)

		var age time.Duration
		if rng.IntN(3) == 0 {
			age = time.Duration(rng.IntN(opts.days*24)) * time.Hour
		} else {
			age = time.Duration(rng.IntN(21*24)) * time.Hour
		}

		status := domain.ReportVerified
		switch n := rng.IntN(10); {
		case n == 0:
			status = domain.ReportRejected
		case n < 3:
			status = domain.ReportPending
		}

		reports = append(reports, domain.Report{
			ID:           fmt.Sprintf("fx-%05d", i+1),
			LocalID:      uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%d/%d", opts.seed, i)).String(),
			Barangay:     b.name,
			Description:  "Synthetic report for analysis fixtures",
			IncidentType: incidentTypes[rng.IntN(len(incidentTypes))],
			Sensitive:    rng.IntN(20) == 0,
			Location: domain.Coordinates{
				Lat: b.lat + (rng.Float64()*2-1)*opts.spread,
				Lng: b.lng + (rng.Float64()*2-1)*opts.spread,
			},
			SubmittedBy: fmt.Sprintf("fixture-user-%d", rng.IntN(25)+1),
			Status:      status,
			Timestamp:   opts.now.Add(-age).Truncate(time.Second),
		})
	}

	sort.SliceStable(reports, func(i, j int) bool { return reports[i].Timestamp.Before(reports[j].Timestamp) })
	return reports
}

func pickBarangay(rng *rand.Rand, total int) barangaySeed {
	n := rng.IntN(total)
	for _, b := range barangays {
		if n < b.weight {
			return b
		}
		n -= b.weight
	}
	return barangays[len(barangays)-1]
}

func newFixtureCmd() *cobra.Command {
	var (
		out    string
		nowStr string
		opts   fixtureOptions
	)
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Generate a deterministic JSON fixture of canonical reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := parseNow(nowStr)
			if err != nil {
				return err
			}
			if opts.count <= 0 || opts.days <= 0 {
				return errors.New("--count and --days must be positive")
			}
			opts.now = now

			reports := generateFixture(opts)

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			if err := printJSON(w, reports); err != nil {
				return err
			}
			if out != "" {
				printFixtureStats(cmd.ErrOrStderr(), reports)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&nowStr, "now", "", "reference time, RFC 3339 (default now)")
	cmd.Flags().IntVar(&opts.count, "count", 200, "number of reports")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 1, "random seed")
	cmd.Flags().IntVar(&opts.days, "days", 400, "oldest report age in days")
	cmd.Flags().Float64Var(&opts.spread, "spread", 0.0015, "coordinate jitter in degrees")
	return cmd
}

func printFixtureStats(w io.Writer, reports []domain.Report) {
	byStatus := map[domain.ReportStatus]int{}
	byArea := map[string]int{}
	for _, r := range reports {
		byStatus[r.Status]++
		byArea[r.Barangay]++
	}
	fmt.Fprintf(w, "Total: %d\n", len(reports))
	fmt.Fprintf(w, "By status: verified=%d, pending=%d, rejected=%d\n",
		byStatus[domain.ReportVerified], byStatus[domain.ReportPending], byStatus[domain.ReportRejected])
	for _, b := range barangays {
		fmt.Fprintf(w, "  %-18s %d\n", b.name, byArea[b.name])
	}
}
