package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

// MaxRiskProfiles caps the AnalyzeRisk output.
const MaxRiskProfiles = 10

// Period is the window recent activity is measured over.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// Days returns the window length in whole days.
func (p Period) Days() int {
	switch p {
	case PeriodDay:
		return 1
	case PeriodYear:
		return 365
	default:
		return 30
	}
}

// ParsePeriod accepts day, month or year in any case.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodDay, PeriodMonth, PeriodYear:
		return p, nil
	default:
		return "", fmt.Errorf("unknown risk period %q (want day, month or year)", s)
	}
}

// AreaScore is the scored outcome for one area.
type AreaScore struct {
	TrendPct       float64   `json:"trend_pct"`
	CompositeScore float64   `json:"composite_score"`
	RiskLevel      RiskLevel `json:"risk_level"`
}

// ScoreArea applies the weighted heuristic to one area's counts. daysSinceLast
// is +Inf when the area has no incidents.
func ScoreArea(recentCount, totalCount int, daysSinceLast float64, periodDays int) AreaScore {
	recentWeight := float64(recentCount) * 4
	historicalWeight := float64(totalCount) * 0.3

	var recencyWeight float64
	switch {
	case daysSinceLast < 7:
		recencyWeight = 20
	case daysSinceLast < 30:
		recencyWeight = 10
	}

	historicalAvg := float64(totalCount) / 365
	recentAvg := float64(recentCount) / float64(periodDays)
	trendPct := (recentAvg - historicalAvg) / math.Max(historicalAvg, 0.1) * 100

	var trendWeight float64
	switch {
	case trendPct > 50:
		trendWeight = 10
	case trendPct > 0:
		trendWeight = 5
	}

	score := clamp(recentWeight+historicalWeight+recencyWeight+trendWeight, 0, 100)
	return AreaScore{
		TrendPct:       trendPct,
		CompositeScore: score,
		RiskLevel:      scoreLevel(score),
	}
}

func scoreLevel(score float64) RiskLevel {
	switch {
	case score >= 70:
		return RiskHigh
	case score >= 40:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RiskProfile is the scored activity summary of one barangay.
type RiskProfile struct {
	Barangay              string `json:"barangay"`
	RecentCount           int    `json:"recent_count"`
	TotalCount            int    `json:"total_count"`
	DaysSinceLastIncident int    `json:"days_since_last_incident"`
	AreaScore
}

type areaTally struct {
	recent, total int
	newest        time.Time
}

// AnalyzeRisk scores every barangay seen in reports and returns the
// MaxRiskProfiles highest, best first; equal scores keep discovery order.
// Every report counts regardless of moderation status; reports with no
// barangay are ignored.
func AnalyzeRisk(reports []domain.Report, now time.Time, period Period) []RiskProfile {
	since := now.AddDate(0, 0, -period.Days())

	var order []string
	tallies := make(map[string]*areaTally)
	for _, r := range reports {
		area := strings.TrimSpace(r.Barangay)
		if area == "" {
			continue
		}
		t, ok := tallies[area]
		if !ok {
			t = &areaTally{}
			tallies[area] = t
			order = append(order, area)
		}
		t.total++
		if !r.Timestamp.Before(since) && !r.Timestamp.After(now) {
			t.recent++
		}
		if r.Timestamp.After(t.newest) {
			t.newest = r.Timestamp
		}
	}

	out := make([]RiskProfile, 0, len(order))
	for _, area := range order {
		t := tallies[area]
		days := daysBetween(t.newest, now)
		out = append(out, RiskProfile{
			Barangay:              area,
			RecentCount:           t.recent,
			TotalCount:            t.total,
			DaysSinceLastIncident: days,
			AreaScore:             ScoreArea(t.recent, t.total, float64(days), period.Days()),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CompositeScore > out[j].CompositeScore })
	if len(out) > MaxRiskProfiles {
		out = out[:MaxRiskProfiles]
	}
	return out
}

// daysBetween is the whole-day age of t at now, never negative.
func daysBetween(t, now time.Time) int {
	d := now.Sub(t)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}
