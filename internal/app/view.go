package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"github.com/wesm/vibepulse/internal/datekey"
	"github.com/wesm/vibepulse/internal/models"
	"github.com/wesm/vibepulse/internal/services/usage"
	"github.com/wesm/vibepulse/internal/ui/components"
	"github.com/wesm/vibepulse/internal/ui/styles"
)

const (
	minChartHeight = 5
	// chrome is the number of lines used by everything except the chart.
	chrome = 14
	// axisWidth is reserved for the y-axis labels.
	axisWidth = 12
	// narrowWidth is the terminal width below which cards use short names.
	narrowWidth = 60
)

// View renders the application UI.
func (m *Model) View() string {
	if !m.ready || !m.state.Loaded() {
		if m.width > 0 {
			return styles.CenterBoth("Loading…", m.width, m.height)
		}
		return styles.DocStyle.Render("Loading…")
	}

	snap := m.state.Snapshot()

	sections := []string{
		m.renderHeader(snap),
		m.renderCards(snap),
		m.renderModeBar(snap),
		m.renderChart(snap),
		m.renderFooter(snap),
		m.help.View(m.keymap),
	}
	mainView := styles.DocStyle.Render(strings.Join(sections, "\n"))

	if m.showHelp {
		mainView = m.overlayCentered(mainView, m.renderHelp(snap))
	}

	if toasts := m.renderNotifications(); len(toasts) > 0 {
		return m.overlayToasts(mainView, toasts)
	}
	return mainView
}

func (m *Model) renderHeader(snap usage.Snapshot) string {
	title := styles.TitleStyle.Render("VibePulse")
	total := styles.TotalStyle.Render(snap.CombinedText() + " today")

	gap := max(m.width-lipgloss.Width(title)-lipgloss.Width(total)-2, 1)
	return title + strings.Repeat(" ", gap) + total
}

func (m *Model) renderCards(snap usage.Snapshot) string {
	if len(snap.Tools) == 0 {
		return styles.WarningTextStyle.Render(usage.StatusNoTools)
	}

	cards := make([]string, 0, len(snap.Tools))
	for _, tool := range snap.Tools {
		name := tool.DisplayName()
		if m.width < narrowWidth {
			name = tool.ShortName()
		}
		body := styles.ToolStyle(tool).Bold(true).Render(name) + "\n" +
			styles.CardValueStyle.Render(usage.FormatUSD(snap.Total(tool)))
		cards = append(cards, styles.CardStyle.Render(body))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func (m *Model) renderModeBar(snap usage.Snapshot) string {
	var modes []string
	for _, mode := range []models.ChartMode{models.ChartToday, models.ChartThirtyDays} {
		if mode == m.chartMode {
			modes = append(modes, styles.ActiveModeStyle.Render(mode.Title()))
		} else {
			modes = append(modes, styles.InactiveModeStyle.Render(mode.Title()))
		}
	}
	bar := lipgloss.JoinHorizontal(lipgloss.Top, modes...)
	return bar + "  " + components.RenderLegend(components.ToolLegend(snap.Tools, m.width < narrowWidth))
}

func (m *Model) renderChart(snap usage.Snapshot) string {
	width := max(m.width-axisWidth, 10)
	height := max(m.height-chrome, minChartHeight)

	now := snap.GeneratedAt
	if now.IsZero() {
		now = time.Now()
	}
	start := datekey.StartOfDay(now)

	var series [][]float64
	var caption string
	switch m.chartMode {
	case models.ChartThirtyDays:
		series = components.DailySeries(snap.Daily, snap.Tools, start.AddDate(0, 0, -29), 30)
		caption = "Daily cost, last 30 days"
	default:
		hours := now.Hour() + 1
		series = components.HourlySeries(snap.Hourly, snap.Tools, start, hours)
		caption = "Cost per hour, today"
	}

	chart := components.RenderToolChart(series, snap.Tools, width, height, caption)
	if lipgloss.Height(chart) == 1 {
		return styles.CenterHorizontal(chart, max(m.width-2, 0))
	}
	return chart
}

func (m *Model) renderFooter(snap usage.Snapshot) string {
	var parts []string

	if snap.LastUpdated.IsZero() {
		parts = append(parts, styles.HelpStyle.Render("Not updated yet"))
	} else {
		parts = append(parts, styles.HelpStyle.Render("Updated "+humanize.Time(snap.LastUpdated)))
	}

	if m.spinner.Active() {
		parts = append(parts, m.spinner.View())
	}
	if snap.Status != "" {
		parts = append(parts, styles.ErrorTextStyle.Render(snap.Status))
	}
	if snap.MaintenanceStatus != "" {
		parts = append(parts, styles.InfoTextStyle.Render(snap.MaintenanceStatus))
	}

	return strings.Join(parts, styles.HelpStyle.Render(" · "))
}

func (m *Model) renderHelp(snap usage.Snapshot) string {
	var lines []string

	lines = append(lines, styles.TitleStyle.Render("Keyboard Shortcuts"))
	lines = append(lines, "")
	lines = append(lines, m.help.FullHelpView(m.keymap.FullHelp()))
	lines = append(lines, "")

	lines = append(lines, styles.CardTitleStyle.Render("Maintenance"))
	if snap.MaintenanceMode != "" {
		lines = append(lines, fmt.Sprintf("  Mode: %s", snap.MaintenanceMode))
		lines = append(lines, "  "+snap.MaintenanceMode.Detail())
	}
	if snap.LastMaintenanceAt.IsZero() {
		lines = append(lines, "  Never run")
	} else {
		lines = append(lines, fmt.Sprintf("  Last run %s", humanize.Time(snap.LastMaintenanceAt)))
	}
	lines = append(lines, "")
	lines = append(lines, styles.HelpStyle.Render("Press ? or Esc to close"))

	return styles.HelpPanelStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) overlayCentered(mainView string, overlay string) string {
	mainLines := strings.Split(mainView, "\n")
	overlayLines := strings.Split(overlay, "\n")

	overlayWidth := lipgloss.Width(overlay)

	y := max((m.height-len(overlayLines))/2, 0)
	x := max((m.width-overlayWidth)/2, 0)

	for i, overlayLine := range overlayLines {
		mainY := y + i
		if mainY >= len(mainLines) {
			break
		}

		mainLine := mainLines[mainY]
		left := ansi.Truncate(mainLine, x, "")
		right := ansi.TruncateLeft(mainLine, x+overlayWidth, "")

		if lipgloss.Width(left) < x {
			left += strings.Repeat(" ", x-lipgloss.Width(left))
		}

		mainLines[mainY] = left + overlayLine + right
	}

	return strings.Join(mainLines, "\n")
}

func (m *Model) renderNotifications() []string {
	notifications := m.state.Notifications()
	if len(notifications) == 0 {
		return nil
	}

	toasts := make([]string, 0, len(notifications))
	for _, n := range notifications {
		var style lipgloss.Style
		var prefix string

		switch n.Type {
		case NotificationSuccess:
			style = styles.SuccessTextStyle
			prefix = "[OK]"
		case NotificationError:
			style = styles.ErrorTextStyle
			prefix = "[ERR]"
		case NotificationWarning:
			style = styles.WarningTextStyle
			prefix = "[WARN]"
		default:
			style = styles.InfoTextStyle
			prefix = "[INFO]"
		}

		toasts = append(toasts, styles.ToastStyle.Render(style.Render(prefix+" "+n.Message)))
	}
	return toasts
}

func (m *Model) overlayToasts(mainView string, toasts []string) string {
	toastStack := lipgloss.JoinVertical(lipgloss.Right, toasts...)
	toastLines := strings.Split(toastStack, "\n")
	mainLines := strings.Split(mainView, "\n")

	startX := max(m.width-lipgloss.Width(toastStack)-2, 0)
	startY := 2

	for i, toastLine := range toastLines {
		lineIdx := startY + i
		if lineIdx >= len(mainLines) {
			break
		}

		mainLine := mainLines[lineIdx]
		if w := lipgloss.Width(mainLine); w < startX {
			mainLines[lineIdx] = mainLine + strings.Repeat(" ", startX-w) + toastLine
		} else {
			mainLines[lineIdx] = ansi.Truncate(mainLine, startX, "") + toastLine
		}
	}

	return strings.Join(mainLines, "\n")
}
