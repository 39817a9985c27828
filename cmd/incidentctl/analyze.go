package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/incident-risk-service/internal/analytics"
	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

func loadFixture(path string) ([]domain.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var reports []domain.Report
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	return reports, nil
}

func newHotspotsCmd(g *globalFlags) *cobra.Command {
	var fixture, nowStr string
	var asGeoJSON bool
	cmd := &cobra.Command{
		Use:   "hotspots",
		Short: "Detect hotspots in a report fixture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := parseNow(nowStr)
			if err != nil {
				return err
			}
			reports, err := loadFixture(fixture)
			if err != nil {
				return err
			}

			hotspots := analytics.DetectHotspots(reports, now)
			out := cmd.OutOrStdout()
			switch {
			case asGeoJSON:
				data, err := analytics.HotspotsGeoJSON(hotspots).MarshalJSON()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			case g.asJSON:
				return printJSON(out, hotspots)
			default:
				return printHotspots(out, hotspots)
			}
		},
	}
	cmd.Flags().StringVarP(&fixture, "fixture", "f", "", "JSON array of reports")
	cmd.Flags().StringVar(&nowStr, "now", "", "reference time, RFC 3339 (default now)")
	cmd.Flags().BoolVar(&asGeoJSON, "geojson", false, "print a GeoJSON FeatureCollection")
	_ = cmd.MarkFlagRequired("fixture")
	return cmd
}

func printHotspots(w io.Writer, hotspots []analytics.Hotspot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CELL\tLAT\tLNG\tCOUNT\tLEVEL\tRADIUS")
	for _, h := range hotspots {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%d\t%s\t%.1f\n", h.Key, h.Center.Lat, h.Center.Lng, h.Count, h.RiskLevel, h.Radius)
	}
	return tw.Flush()
}

func newRiskCmd(g *globalFlags) *cobra.Command {
	var fixture, nowStr, periodStr string
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Rank barangays by risk score in a report fixture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := parseNow(nowStr)
			if err != nil {
				return err
			}
			period, err := analytics.ParsePeriod(periodStr)
			if err != nil {
				return err
			}
			reports, err := loadFixture(fixture)
			if err != nil {
				return err
			}

			profiles := analytics.AnalyzeRisk(reports, now, period)
			if g.asJSON {
				return printJSON(cmd.OutOrStdout(), profiles)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "BARANGAY\tRECENT\tTOTAL\tDAYS SINCE\tTREND %\tSCORE\tLEVEL")
			for _, p := range profiles {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f\t%.1f\t%s\n",
					p.Barangay, p.RecentCount, p.TotalCount, p.DaysSinceLastIncident, p.TrendPct, p.CompositeScore, p.RiskLevel)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&fixture, "fixture", "f", "", "JSON array of reports")
	cmd.Flags().StringVar(&nowStr, "now", "", "reference time, RFC 3339 (default now)")
	cmd.Flags().StringVar(&periodStr, "period", string(analytics.PeriodMonth), "recent window: day, month or year")
	_ = cmd.MarkFlagRequired("fixture")
	return cmd
}
