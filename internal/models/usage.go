package models

import "time"

// DailyTotal is one row of a tool's daily breakdown as reported upstream.
type DailyTotal struct {
	DateKey string
	Cost    float64
}

// Sample is a point-in-time observation of a tool's cumulative cost for the day.
type Sample struct {
	RecordedAt time.Time
	DateKey    string
	ID         int64
	TotalCost  float64
	DeltaCost  float64
	Tool       Tool
}

// DailyRollup is the authoritative total cost for one tool on one calendar day.
type DailyRollup struct {
	UpdatedAt time.Time
	DateKey   string
	TotalCost float64
	Tool      Tool
}

// SeriesPoint is a single chart value for a tool.
type SeriesPoint struct {
	Date time.Time
	Cost float64
	Tool Tool
}

// ToolTotal is the reconciled cost for a tool over the current day.
type ToolTotal struct {
	TotalCost float64
	Tool      Tool
}

// ChartMode selects the horizon shown by the dashboard chart.
type ChartMode int

const (
	// ChartToday shows the inferred hourly curve for the current day.
	ChartToday ChartMode = iota
	// ChartThirtyDays shows daily rollups for the last thirty days.
	ChartThirtyDays
)

// Title returns the label shown for the chart mode.
func (m ChartMode) Title() string {
	switch m {
	case ChartToday:
		return "Today"
	case ChartThirtyDays:
		return "30 Days"
	default:
		return "Unknown"
	}
}

// Next cycles to the other chart mode.
func (m ChartMode) Next() ChartMode {
	if m == ChartToday {
		return ChartThirtyDays
	}
	return ChartToday
}

// MaintenanceMode controls when store maintenance runs.
type MaintenanceMode string

const (
	// MaintenanceAutomatic runs maintenance on start, at most once per day.
	MaintenanceAutomatic MaintenanceMode = "automatic"
	// MaintenanceManual only runs maintenance when explicitly requested.
	MaintenanceManual MaintenanceMode = "manual"
)

// Valid reports whether m is a known mode.
func (m MaintenanceMode) Valid() bool {
	return m == MaintenanceAutomatic || m == MaintenanceManual
}

// Detail describes the mode for help text.
func (m MaintenanceMode) Detail() string {
	switch m {
	case MaintenanceAutomatic:
		return "Runs when the app starts (at most once per day)."
	case MaintenanceManual:
		return "Only runs when requested."
	default:
		return ""
	}
}
