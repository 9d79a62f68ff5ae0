// Package services provides service orchestration for the TUI.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gen2brain/beeep"

	"github.com/wesm/vibepulse/internal/config"
	"github.com/wesm/vibepulse/internal/db"
	"github.com/wesm/vibepulse/internal/logger"
	"github.com/wesm/vibepulse/internal/models"
	"github.com/wesm/vibepulse/internal/services/fetcher"
	"github.com/wesm/vibepulse/internal/services/usage"
	"github.com/wesm/vibepulse/internal/settings"
)

type (
	// SnapshotEvent is emitted when the dashboard data may have changed.
	SnapshotEvent struct {
		Snapshot usage.Snapshot
	}

	// RefreshStartedEvent is emitted when a refresh cycle begins.
	RefreshStartedEvent struct {
		RunID string
	}

	// RefreshFinishedEvent is emitted when a refresh cycle ends.
	RefreshFinishedEvent struct {
		Result usage.RefreshResult
	}

	// MaintenanceStartedEvent is emitted when maintenance begins.
	MaintenanceStartedEvent struct{}

	// MaintenanceFinishedEvent is emitted when maintenance ends.
	MaintenanceFinishedEvent struct {
		Result usage.MaintenanceResult
	}

	// SettingsChangedEvent is emitted when the preferences change.
	SettingsChangedEvent struct {
		Settings settings.Settings
	}

	// ErrorEvent is emitted when an error occurs in any service.
	ErrorEvent struct {
		Error   error
		Service string
	}
)

// ServiceEvent is the interface implemented by all service events.
type ServiceEvent interface {
	isServiceEvent()
}

func (SnapshotEvent) isServiceEvent()            {}
func (RefreshStartedEvent) isServiceEvent()      {}
func (RefreshFinishedEvent) isServiceEvent()     {}
func (MaintenanceStartedEvent) isServiceEvent()  {}
func (MaintenanceFinishedEvent) isServiceEvent() {}
func (SettingsChangedEvent) isServiceEvent()     {}
func (ErrorEvent) isServiceEvent()               {}

// notifyFunc shows a desktop notification.
type notifyFunc func(title, message string) error

func desktopNotify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Manager orchestrates services and event routing.
type Manager struct {
	settings     *settings.Service
	usage        *usage.Service
	database     *db.DB
	notify       notifyFunc
	stopChan     chan struct{}
	cancel       context.CancelFunc
	subscribers  []chan<- ServiceEvent
	lastSettings settings.Settings
	mu           sync.RWMutex
	closeOnce    sync.Once
	persistent   bool
}

// NewManager creates a new service manager. A database that cannot be opened
// is replaced by an in-memory one; the manager still works, without history.
func NewManager(cfg *config.Config) (*Manager, error) {
	return newManager(cfg, desktopNotify)
}

func newManager(cfg *config.Config, notify notifyFunc) (*Manager, error) {
	m := &Manager{
		notify:   notify,
		stopChan: make(chan struct{}),
	}

	var err error
	m.settings, err = settings.New(cfg.SettingsPath)
	if err != nil {
		return nil, err
	}
	m.lastSettings = m.settings.Get()

	database, openErr := db.OpenOrMemory(cfg.DatabasePath)
	if database == nil {
		_ = m.settings.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", openErr)
	}
	m.database = database
	m.persistent = openErr == nil

	f := fetcher.NewCommandFetcher(cfg.CommandTimeout, func() string {
		return m.settings.Get().NpxPath
	})
	m.usage = usage.New(m.database, f, m.settings)

	if !m.persistent {
		m.usage.SetStatus(usage.StatusDatabaseUnavailable)
		m.sendNotice("VibePulse", usage.StatusDatabaseUnavailable)
	}

	go m.routeEvents()

	return m, nil
}

// Start begins background polling and automatic maintenance.
func (m *Manager) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.usage.Start(ctx)
}

// routeEvents routes events from individual services to subscribers.
func (m *Manager) routeEvents() {
	for {
		select {
		case event := <-m.settings.Events():
			m.handleSettingsEvent(event)

		case event := <-m.usage.Events():
			m.handleUsageEvent(event)

		case <-m.stopChan:
			return
		}
	}
}

// handleSettingsEvent applies changed preferences to the running services.
func (m *Manager) handleSettingsEvent(event settings.Event) {
	switch event.Type {
	case settings.EventLoaded:
		// Initial state is read directly by callers.

	case settings.EventChanged:
		m.mu.Lock()
		prev := m.lastSettings
		m.lastSettings = event.Settings
		m.mu.Unlock()

		next := event.Settings
		if next.RefreshInterval() != prev.RefreshInterval() {
			m.usage.Reschedule(next.RefreshInterval())
		}
		if next.MaintenanceMode == models.MaintenanceAutomatic && prev.MaintenanceMode != models.MaintenanceAutomatic {
			go m.usage.RunMaintenance(false)
		}

		m.broadcast(SettingsChangedEvent{Settings: next})
		m.broadcast(SnapshotEvent{Snapshot: m.usage.Snapshot()})

	case settings.EventError:
		m.broadcast(ErrorEvent{Service: "settings", Error: event.Error})
	}
}

func (m *Manager) handleUsageEvent(event usage.Event) {
	switch event.Type {
	case usage.EventRefreshStarted:
		m.broadcast(RefreshStartedEvent{RunID: event.Refresh.RunID})

	case usage.EventRefreshFinished:
		m.broadcast(RefreshFinishedEvent{Result: *event.Refresh})
		m.broadcast(SnapshotEvent{Snapshot: m.usage.Snapshot()})

	case usage.EventMaintenanceStarted:
		m.broadcast(MaintenanceStartedEvent{})

	case usage.EventMaintenanceFinished:
		result := *event.Maintenance
		if result.Err != nil {
			m.sendNotice("VibePulse maintenance failed", result.Message())
		}
		m.broadcast(MaintenanceFinishedEvent{Result: result})
		m.broadcast(SnapshotEvent{Snapshot: m.usage.Snapshot()})
	}
}

// sendNotice shows a desktop notification. Failures are only logged: the
// notification daemon is optional.
func (m *Manager) sendNotice(title, message string) {
	if err := m.notify(title, message); err != nil {
		logger.Debug("desktop notification failed", "title", title, "error", err)
	}
}

// broadcast sends an event to all subscribers.
func (m *Manager) broadcast(event ServiceEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber channel full, skip
		}
	}
}

// Subscribe creates a channel for receiving service events.
// Returns a tea.Cmd that can be used in Bubble Tea's Init or Update.
func (m *Manager) Subscribe() (chan ServiceEvent, tea.Cmd) {
	ch := make(chan ServiceEvent, 50)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	return ch, WaitForEvent(ch)
}

// WaitForEvent returns a tea.Cmd for the next event on a channel.
func WaitForEvent(ch <-chan ServiceEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return event
	}
}

// Unsubscribe removes a subscriber channel.
func (m *Manager) Unsubscribe(ch chan ServiceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// Snapshot returns the current dashboard data.
func (m *Manager) Snapshot() usage.Snapshot {
	return m.usage.Snapshot()
}

// Refresh runs one refresh cycle and waits for it to finish.
func (m *Manager) Refresh(ctx context.Context) usage.RefreshResult {
	return m.usage.Refresh(ctx)
}

// RunMaintenance runs store maintenance and waits for it to finish.
func (m *Manager) RunMaintenance(force bool) usage.MaintenanceResult {
	return m.usage.RunMaintenance(force)
}

// DailySeries returns the stored daily totals of the last days days.
func (m *Manager) DailySeries(days int) []models.SeriesPoint {
	return m.usage.DailySeries(days)
}

// Persistent reports whether data is written to disk.
func (m *Manager) Persistent() bool {
	return m.persistent
}

// Settings returns the settings service.
func (m *Manager) Settings() *settings.Service {
	return m.settings
}

// Usage returns the usage service.
func (m *Manager) Usage() *usage.Service {
	return m.usage
}

// Database returns the database instance for direct access.
func (m *Manager) Database() *db.DB {
	return m.database
}

// Close closes the manager and all its services.
func (m *Manager) Close() error {
	var errs []error

	m.closeOnce.Do(func() {
		close(m.stopChan)

		m.mu.Lock()
		if m.cancel != nil {
			m.cancel()
		}
		for _, sub := range m.subscribers {
			close(sub)
		}
		m.subscribers = nil
		m.mu.Unlock()

		if !m.waitIdle(5 * time.Second) {
			logger.Warn("closing while a refresh or maintenance is still running")
		}

		if err := m.usage.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := m.settings.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := m.database.Close(); err != nil {
			errs = append(errs, err)
		}
	})

	return errors.Join(errs...)
}

// waitIdle blocks until no refresh or maintenance is running, or timeout.
func (m *Manager) waitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		snap := m.usage.Snapshot()
		if !snap.Refreshing && !snap.Maintaining {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
