package components

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wesm/vibepulse/internal/ui/styles"
)

// ActivitySpinner shows a spinner next to the name of the running job.
type ActivitySpinner struct {
	spinner spinner.Model
	style   lipgloss.Style
	label   string
}

// NewActivitySpinner creates an idle spinner.
func NewActivitySpinner() ActivitySpinner {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(styles.Primary)

	return ActivitySpinner{
		spinner: s,
		style:   lipgloss.NewStyle().Foreground(styles.TextSecondary),
	}
}

// Tick returns the tick command for the spinner.
func (a ActivitySpinner) Tick() tea.Cmd {
	return a.spinner.Tick
}

// Update handles spinner tick messages.
func (a ActivitySpinner) Update(msg tea.Msg) (ActivitySpinner, tea.Cmd) {
	var cmd tea.Cmd
	a.spinner, cmd = a.spinner.Update(msg)
	return a, cmd
}

// SetLabel sets the running job name. An empty label hides the spinner.
func (a *ActivitySpinner) SetLabel(label string) {
	a.label = label
}

// Active reports whether a job is running.
func (a ActivitySpinner) Active() bool {
	return a.label != ""
}

// View renders the spinner and label, or nothing when idle.
func (a ActivitySpinner) View() string {
	if !a.Active() {
		return ""
	}
	return a.spinner.View() + " " + a.style.Render(a.label)
}
