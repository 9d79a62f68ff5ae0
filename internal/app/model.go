package app

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wesm/vibepulse/internal/models"
	"github.com/wesm/vibepulse/internal/services"
	"github.com/wesm/vibepulse/internal/services/usage"
	"github.com/wesm/vibepulse/internal/ui/components"
	"github.com/wesm/vibepulse/internal/ui/styles"
)

// Backend is what the dashboard needs from the service layer.
type Backend interface {
	Snapshot() usage.Snapshot
	Refresh(ctx context.Context) usage.RefreshResult
	RunMaintenance(force bool) usage.MaintenanceResult
	Subscribe() (chan services.ServiceEvent, tea.Cmd)
	Unsubscribe(ch chan services.ServiceEvent)
}

// KeyMap defines the keybindings for the application.
type KeyMap struct {
	Refresh     key.Binding
	Maintenance key.Binding
	ToggleChart key.Binding
	Help        key.Binding
	Quit        key.Binding
	Escape      key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Refresh:     key.NewBinding(key.WithKeys("r", "ctrl+r"), key.WithHelp("r", "refresh")),
		Maintenance: key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "maintenance")),
		ToggleChart: key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "today/30 days")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Escape:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.ToggleChart, k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Refresh, k.Maintenance, k.ToggleChart},
		{k.Help, k.Escape, k.Quit},
	}
}

// Model is the main application model.
type Model struct {
	backend      Backend
	state        *State
	eventChannel chan services.ServiceEvent
	help         help.Model
	keymap       KeyMap
	spinner      components.ActivitySpinner
	width        int
	height       int
	chartMode    models.ChartMode
	ready        bool
	showHelp     bool
}

// NewModel creates a new application model.
func NewModel(backend Backend) *Model {
	h := help.New()
	h.Styles.ShortKey = styles.HelpStyle.Bold(true)
	h.Styles.ShortDesc = styles.HelpStyle
	h.Styles.ShortSeparator = styles.HelpStyle
	h.Styles.FullKey = styles.HelpStyle.Bold(true)
	h.Styles.FullDesc = styles.HelpStyle
	h.Styles.FullSeparator = styles.HelpStyle

	return &Model{
		backend: backend,
		state:   NewState(),
		help:    h,
		keymap:  DefaultKeyMap(),
		spinner: components.NewActivitySpinner(),
	}
}

// GetState returns the application state.
func (m *Model) GetState() *State {
	return m.state
}

// GetKeyMap returns the keybindings.
func (m *Model) GetKeyMap() KeyMap {
	return m.keymap
}

// ChartMode returns the selected chart horizon.
func (m *Model) ChartMode() models.ChartMode {
	return m.chartMode
}

// IsReady returns whether the model has received its first window size.
func (m *Model) IsReady() bool {
	return m.ready
}

// Init initializes the model and returns initial commands.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.spinner.Tick(),
		defaultTickCmd(),
	}

	if m.backend != nil {
		cmds = append(cmds, subscribeToServicesCmd(m.backend))
		cmds = append(cmds, loadSnapshotCmd(m.backend))
	}

	return tea.Batch(cmds...)
}

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.ready = true
	case tea.KeyMsg:
		cmds = append(cmds, m.handleKeyMsg(msg))
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	default:
		cmds = append(cmds, m.handleAppMsg(msg)...)
	}

	m.syncSpinner()
	return m, tea.Batch(cmds...)
}

func (m *Model) handleAppMsg(msg tea.Msg) []tea.Cmd {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case TickMsg:
		m.state.ClearExpiredNotifications()
		cmds = append(cmds, defaultTickCmd())
	case SubscriptionEventMsg:
		m.eventChannel = msg.Channel
		cmds = append(cmds, waitForServiceEventCmd(m.eventChannel))
	case ServiceEventMsg:
		cmds = append(cmds, m.handleServiceEvent(msg.Event))
		if m.eventChannel != nil {
			cmds = append(cmds, waitForServiceEventCmd(m.eventChannel))
		}
	case SnapshotLoadedMsg:
		m.state.SetSnapshot(msg.Snapshot)
	case RefreshDoneMsg:
		cmds = append(cmds, m.handleRefreshDone(msg.Result)...)
	case MaintenanceDoneMsg:
		cmds = append(cmds, m.handleMaintenanceDone(msg.Result)...)
	case AddNotificationMsg:
		id := m.state.AddNotification(msg.Type, msg.Message, msg.Duration)
		if msg.Duration > 0 {
			cmds = append(cmds, clearNotificationCmd(id, msg.Duration))
		}
	case RemoveNotificationMsg:
		m.state.RemoveNotification(msg.ID)
	}
	return cmds
}

// handleKeyMsg handles keyboard input.
func (m *Model) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keymap.Quit):
		if m.backend != nil && m.eventChannel != nil {
			m.backend.Unsubscribe(m.eventChannel)
			m.eventChannel = nil
		}
		return tea.Quit

	case key.Matches(msg, m.keymap.Help):
		m.showHelp = !m.showHelp

	case key.Matches(msg, m.keymap.Escape):
		m.showHelp = false

	case key.Matches(msg, m.keymap.ToggleChart):
		m.chartMode = m.chartMode.Next()

	case key.Matches(msg, m.keymap.Refresh):
		if m.backend == nil || m.state.Refreshing() {
			return nil
		}
		m.state.SetRefreshing(true)
		return refreshCmd(m.backend)

	case key.Matches(msg, m.keymap.Maintenance):
		if m.backend == nil || m.state.Maintaining() {
			return nil
		}
		m.state.SetMaintaining(true)
		return maintenanceCmd(m.backend)
	}
	return nil
}

func (m *Model) handleRefreshDone(result usage.RefreshResult) []tea.Cmd {
	if result.Skipped {
		return []tea.Cmd{loadSnapshotCmd(m.backend)}
	}

	m.state.SetRefreshing(false)
	cmds := []tea.Cmd{loadSnapshotCmd(m.backend)}
	switch {
	case result.NoTools:
		cmds = append(cmds, notifyWarningCmd(usage.StatusNoTools))
	case len(result.Errors) > 0:
		cmds = append(cmds, notifyErrorCmd(result.Status()))
	default:
		cmds = append(cmds, notifySuccessCmd("Usage updated"))
	}
	return cmds
}

func (m *Model) handleMaintenanceDone(result usage.MaintenanceResult) []tea.Cmd {
	m.state.SetMaintaining(false)
	cmds := []tea.Cmd{loadSnapshotCmd(m.backend)}
	if !result.Ran {
		return cmds
	}
	if result.Err != nil {
		cmds = append(cmds, notifyErrorCmd(result.Message()))
	} else {
		cmds = append(cmds, notifySuccessCmd(result.Message()))
	}
	return cmds
}

func (m *Model) handleServiceEvent(event services.ServiceEvent) tea.Cmd {
	switch e := event.(type) {
	case services.SnapshotEvent:
		m.state.SetSnapshot(e.Snapshot)

	case services.RefreshStartedEvent:
		m.state.SetRefreshing(true)

	case services.MaintenanceStartedEvent:
		m.state.SetMaintaining(true)

	case services.SettingsChangedEvent:
		return notifyInfoCmd("Settings reloaded")

	case services.ErrorEvent:
		return notifyErrorCmd(e.Service + ": " + e.Error.Error())
	}
	return nil
}

// syncSpinner points the spinner at whichever job is running.
func (m *Model) syncSpinner() {
	switch {
	case m.state.Refreshing():
		m.spinner.SetLabel("Refreshing usage…")
	case m.state.Maintaining():
		m.spinner.SetLabel("Running maintenance…")
	default:
		m.spinner.SetLabel("")
	}
}
