// Package components provides reusable UI components for the TUI.
package components

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/wesm/vibepulse/internal/models"
	"github.com/wesm/vibepulse/internal/ui/styles"
)

// NoDataText is shown in place of an empty chart.
const NoDataText = "No usage recorded yet"

// toolAnsi is the chart line color of a tool, matching styles.ToolColor.
func toolAnsi(tool models.Tool) asciigraph.AnsiColor {
	switch tool {
	case models.ToolClaude:
		return asciigraph.DarkOrange
	case models.ToolCodex:
		return asciigraph.LimeGreen
	default:
		return asciigraph.Default
	}
}

// HourlySeries buckets allocated hourly points into one row per tool. Row i
// holds tools[i]; column h is wall-clock hour h of startOfDay's calendar day.
func HourlySeries(points []models.SeriesPoint, tools []models.Tool, startOfDay time.Time, hours int) [][]float64 {
	series := emptySeries(len(tools), hours)
	loc := startOfDay.Location()
	year, month, day := startOfDay.Date()
	for _, p := range points {
		local := p.Date.In(loc)
		if y, m, d := local.Date(); y != year || m != month || d != day {
			continue
		}
		row := toolIndex(tools, p.Tool)
		col := local.Hour()
		if row < 0 || col >= hours {
			continue
		}
		series[row][col] += p.Cost
	}
	return series
}

// DailySeries places daily rollup points into one row per tool, one column
// per calendar day starting at firstDay.
func DailySeries(points []models.SeriesPoint, tools []models.Tool, firstDay time.Time, days int) [][]float64 {
	series := emptySeries(len(tools), days)
	for _, p := range points {
		row := toolIndex(tools, p.Tool)
		// Rounding absorbs the hour lost or gained across a DST change.
		col := int(math.Round(p.Date.Sub(firstDay).Hours() / 24))
		if row < 0 || col < 0 || col >= days {
			continue
		}
		series[row][col] += p.Cost
	}
	return series
}

func emptySeries(rows, cols int) [][]float64 {
	series := make([][]float64, rows)
	for i := range series {
		series[i] = make([]float64, max(cols, 0))
	}
	return series
}

func toolIndex(tools []models.Tool, tool models.Tool) int {
	for i, t := range tools {
		if t == tool {
			return i
		}
	}
	return -1
}

// minChartSpan keeps an all-zero day from collapsing into a single row.
const minChartSpan = 1.0

// RenderToolChart plots one line per tool in the tool's color.
func RenderToolChart(series [][]float64, tools []models.Tool, width, height int, caption string) string {
	if len(series) == 0 || !hasData(series) {
		return styles.HelpStyle.Render(NoDataText)
	}

	// Ensure minimum dimensions
	width = max(width, 20)
	height = max(height, 3)

	data := make([][]float64, len(series))
	colors := make([]asciigraph.AnsiColor, len(series))
	for i, row := range series {
		// A single point cannot be drawn as a line.
		if len(row) == 1 {
			row = []float64{row[0], row[0]}
		}
		data[i] = row
		if i < len(tools) {
			colors[i] = toolAnsi(tools[i])
		}
	}

	return asciigraph.PlotMany(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Precision(2),
		// Costs are never negative; keep zero on the axis and a visible span.
		asciigraph.LowerBound(0),
		asciigraph.UpperBound(minChartSpan),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(colors...),
	)
}

func hasData(series [][]float64) bool {
	for _, row := range series {
		if len(row) > 0 {
			return true
		}
	}
	return false
}

// sparkChars are the sparkline glyphs from lowest to highest.
var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// RenderSparkline creates a compact inline sparkline chart.
func RenderSparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}

	maxVal := 0.0
	for _, v := range values {
		maxVal = max(maxVal, v)
	}
	if maxVal == 0 {
		maxVal = 1
	}

	// Sample values to fit width
	var result strings.Builder
	step := max(float64(len(values))/float64(width), 1)

	for i := 0; i < width && int(float64(i)*step) < len(values); i++ {
		val := values[int(float64(i)*step)]
		level := int((val / maxVal) * float64(len(sparkChars)-1))
		level = min(max(level, 0), len(sparkChars)-1)
		result.WriteRune(sparkChars[level])
	}

	return result.String()
}

// LegendItem represents a single legend entry.
type LegendItem struct {
	Label string
	Color lipgloss.Color
}

// ToolLegend returns legend entries for tools in chart order. Short selects
// the compact tool names.
func ToolLegend(tools []models.Tool, short bool) []LegendItem {
	items := make([]LegendItem, len(tools))
	for i, tool := range tools {
		label := tool.DisplayName()
		if short {
			label = tool.ShortName()
		}
		items[i] = LegendItem{Label: label, Color: styles.ToolColor(tool)}
	}
	return items
}

// RenderLegend creates a chart legend.
func RenderLegend(items []LegendItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		colorBox := lipgloss.NewStyle().Foreground(item.Color).Render("■")
		parts = append(parts, fmt.Sprintf("%s %s", colorBox, item.Label))
	}
	return strings.Join(parts, "  ")
}
