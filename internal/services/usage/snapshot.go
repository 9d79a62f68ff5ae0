package usage

import (
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wesm/vibepulse/internal/datekey"
	"github.com/wesm/vibepulse/internal/hourly"
	"github.com/wesm/vibepulse/internal/models"
)

// dailyWindow is the number of days shown by the daily chart, today included.
const dailyWindow = 30

// Snapshot is everything the dashboard renders.
type Snapshot struct {
	GeneratedAt       time.Time
	LastUpdated       time.Time
	LastMaintenanceAt time.Time
	MaintenanceMode   models.MaintenanceMode
	Status            string
	MaintenanceStatus string
	Tools             []models.Tool
	Hourly            []models.SeriesPoint
	Daily             []models.SeriesPoint
	Totals            []models.ToolTotal
	Combined          float64
	Refreshing        bool
	Maintaining       bool
}

// CombinedText is the combined total formatted as US dollars.
func (s Snapshot) CombinedText() string {
	return FormatUSD(s.Combined)
}

// Total returns today's total for tool.
func (s Snapshot) Total(tool models.Tool) float64 {
	for _, t := range s.Totals {
		if t.Tool == tool {
			return t.TotalCost
		}
	}
	return 0
}

// Snapshot reads the store and builds the series for every enabled tool.
func (s *Service) Snapshot() Snapshot {
	prefs := s.prefs.Get()
	now := s.now()

	s.mu.RLock()
	snap := Snapshot{
		GeneratedAt:       now,
		LastUpdated:       s.lastUpdated,
		LastMaintenanceAt: prefs.LastMaintenanceAt,
		MaintenanceMode:   prefs.MaintenanceMode,
		Status:            s.status,
		MaintenanceStatus: s.maintenanceStatus,
		Tools:             prefs.EnabledTools(),
		Refreshing:        s.refreshing,
		Maintaining:       s.maintaining,
	}
	s.mu.RUnlock()

	snap.Hourly = s.hourlySeries(snap.Tools, now)
	snap.Daily = s.dailySeries(snap.Tools, now)
	snap.Totals = s.todayTotals(snap.Tools, now)
	for _, t := range snap.Totals {
		snap.Combined += t.TotalCost
	}
	return snap
}

func (s *Service) hourlySeries(tools []models.Tool, now time.Time) []models.SeriesPoint {
	start := datekey.StartOfDay(now)

	var points []models.SeriesPoint
	for _, tool := range tools {
		samples := s.store.FetchSamples(tool, start, now)
		slices.SortStableFunc(samples, func(a, b models.Sample) int {
			return a.RecordedAt.Compare(b.RecordedAt)
		})
		points = append(points, hourly.Allocate(tool, samples, start, now)...)
	}

	slices.SortStableFunc(points, func(a, b models.SeriesPoint) int {
		return a.Date.Compare(b.Date)
	})
	return points
}

// DailySeries returns rollups for the last days calendar days as chart points.
func (s *Service) DailySeries(days int) []models.SeriesPoint {
	return s.dailySeriesSince(s.prefs.Get().EnabledTools(), datekey.DaysAgo(s.now(), max(days, 1)-1))
}

func (s *Service) dailySeries(tools []models.Tool, now time.Time) []models.SeriesPoint {
	return s.dailySeriesSince(tools, datekey.DaysAgo(now, dailyWindow-1))
}

func (s *Service) dailySeriesSince(tools []models.Tool, since string) []models.SeriesPoint {
	var points []models.SeriesPoint
	for _, rollup := range s.store.FetchDailyRollups(since) {
		if !slices.Contains(tools, rollup.Tool) {
			continue
		}
		date, err := datekey.Parse(rollup.DateKey)
		if err != nil {
			continue
		}
		points = append(points, models.SeriesPoint{Tool: rollup.Tool, Date: date, Cost: rollup.TotalCost})
	}
	return points
}

// todayTotals prefers the reported daily total, then the latest sample.
func (s *Service) todayTotals(tools []models.Tool, now time.Time) []models.ToolTotal {
	todayKey := datekey.FromTime(now)

	totals := make([]models.ToolTotal, 0, len(tools))
	for _, tool := range tools {
		cost, ok := s.store.DailyTotal(todayKey, tool)
		if !ok {
			if sample, found := s.store.LatestSample(todayKey, tool); found {
				cost = sample.TotalCost
			}
		}
		totals = append(totals, models.ToolTotal{Tool: tool, TotalCost: cost})
	}
	return totals
}

// FormatUSD renders v as "$1,234.56".
func FormatUSD(v float64) string {
	if v < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -v)
	}
	return "$" + humanize.FormatFloat("#,###.##", v)
}
